// Package metrics exports pool activity as Prometheus metrics.
//
// PoolStatsTracker satisfies pool.StatsTracker, so a pool built with
// pool.WithStatsTracker(metrics.NewPoolStatsTracker("byte_array")) counts
// its allocations, reuses, frees and trims under that pool label.
// ObserveStats copies a pool.Stats snapshot into gauges, and TrimRecorder
// counts trim levels delivered through a memory.Registry.
//
// # Basic Usage
//
//	factory, err := pool.NewFactory(cfg, registry,
//	    pool.WithStatsTrackerFactory(func(name string) pool.StatsTracker {
//	        return metrics.NewPoolStatsTracker(name)
//	    }))
//	registry.Register(metrics.NewTrimRecorder())
//
//	http.Handle("/metrics", promhttp.Handler())
//
// All metrics register with the default Prometheus registerer on package
// load.
package metrics

import (
	"sync"
	"time"

	"github.com/ajitpratap0/imagepool/pkg/memory"
	"github.com/ajitpratap0/imagepool/pkg/pool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Allocations counts values a pool had to allocate.
	Allocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagepool_allocations_total",
			Help: "Values allocated because no free value fit",
		},
		[]string{"pool"},
	)

	// AllocatedBytes counts bytes allocated.
	AllocatedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagepool_allocated_bytes_total",
			Help: "Bytes allocated by pools",
		},
		[]string{"pool"},
	)

	// Reuses counts Get calls served from a free list.
	Reuses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagepool_reuses_total",
			Help: "Values handed out again from a free list",
		},
		[]string{"pool"},
	)

	// Releases counts values returned to a free list.
	Releases = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagepool_releases_total",
			Help: "Values released back into a free list",
		},
		[]string{"pool"},
	)

	// Frees counts values freed instead of pooled.
	Frees = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagepool_frees_total",
			Help: "Values freed instead of pooled",
		},
		[]string{"pool"},
	)

	// TrimmedValues counts free values evicted by trims.
	TrimmedValues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagepool_trimmed_values_total",
			Help: "Free values evicted by trims",
		},
		[]string{"pool"},
	)

	// TrimmedBytes counts bytes evicted by trims.
	TrimmedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagepool_trimmed_bytes_total",
			Help: "Bytes evicted by trims",
		},
		[]string{"pool"},
	)

	// CapReached counts soft and hard cap events.
	CapReached = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagepool_cap_reached_total",
			Help: "Times a pool reached its soft or hard cap",
		},
		[]string{"pool", "cap"},
	)

	// PoolBytes is the last observed used and free bytes of a pool.
	PoolBytes = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "imagepool_bytes",
			Help: "Bytes held by a pool, by state",
		},
		[]string{"pool", "state"},
	)

	// PoolValues is the last observed used and free value count of a pool.
	PoolValues = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "imagepool_values",
			Help: "Values held by a pool, by state",
		},
		[]string{"pool", "state"},
	)

	// TrimEvents counts trim levels delivered to the registry.
	TrimEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "imagepool_trim_events_total",
			Help: "Trim levels delivered to registered pools",
		},
		[]string{"trim_type"},
	)

	// GetLatency is the distribution of Get latencies in nanoseconds.
	GetLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "imagepool_get_latency_nanoseconds",
			Help: "Pool Get latency in nanoseconds",
			Buckets: []float64{
				100,   // reuse from a free list
				1000,  // small allocation
				10000, // mmap
				100000,
				1e6,
				1e7,
			},
		},
		[]string{"pool"},
	)
)

// PoolStatsTracker records one pool's events. It is safe for concurrent
// use and cheap enough to call under the pool lock.
type PoolStatsTracker struct {
	allocs         prometheus.Counter
	allocatedBytes prometheus.Counter
	reuses         prometheus.Counter
	releases       prometheus.Counter
	frees          prometheus.Counter
	trimmedValues  prometheus.Counter
	trimmedBytes   prometheus.Counter
	softCap        prometheus.Counter
	hardCap        prometheus.Counter
}

// NewPoolStatsTracker binds the pool counters to name.
func NewPoolStatsTracker(name string) *PoolStatsTracker {
	return &PoolStatsTracker{
		allocs:         Allocations.WithLabelValues(name),
		allocatedBytes: AllocatedBytes.WithLabelValues(name),
		reuses:         Reuses.WithLabelValues(name),
		releases:       Releases.WithLabelValues(name),
		frees:          Frees.WithLabelValues(name),
		trimmedValues:  TrimmedValues.WithLabelValues(name),
		trimmedBytes:   TrimmedBytes.WithLabelValues(name),
		softCap:        CapReached.WithLabelValues(name, "soft"),
		hardCap:        CapReached.WithLabelValues(name, "hard"),
	}
}

var _ pool.StatsTracker = (*PoolStatsTracker)(nil)

// OnValueReuse counts a reuse.
func (t *PoolStatsTracker) OnValueReuse(int, int) { t.reuses.Inc() }

// OnAlloc counts an allocation and its bytes.
func (t *PoolStatsTracker) OnAlloc(_ int, sizeInBytes int) {
	t.allocs.Inc()
	t.allocatedBytes.Add(float64(sizeInBytes))
}

// OnFree counts a free.
func (t *PoolStatsTracker) OnFree(int, int) { t.frees.Inc() }

// OnValueRelease counts a release into a free list.
func (t *PoolStatsTracker) OnValueRelease(int, int) { t.releases.Inc() }

// OnTrim counts evicted values and bytes.
func (t *PoolStatsTracker) OnTrim(_ int, sizeInBytes int, count int) {
	t.trimmedValues.Add(float64(count))
	t.trimmedBytes.Add(float64(sizeInBytes))
}

// OnSoftCapReached counts a soft cap event.
func (t *PoolStatsTracker) OnSoftCapReached() { t.softCap.Inc() }

// OnHardCapReached counts a hard cap event.
func (t *PoolStatsTracker) OnHardCapReached() { t.hardCap.Inc() }

// ObserveStats copies a snapshot into the PoolBytes and PoolValues gauges.
func ObserveStats(s pool.Stats) {
	PoolBytes.WithLabelValues(s.Name, "used").Set(float64(s.UsedBytes))
	PoolBytes.WithLabelValues(s.Name, "free").Set(float64(s.FreeBytes))
	PoolValues.WithLabelValues(s.Name, "used").Set(float64(s.UsedCount))
	PoolValues.WithLabelValues(s.Name, "free").Set(float64(s.FreeCount))
}

// TrimRecorder is a memory.Trimmable that only counts the levels it sees.
type TrimRecorder struct{}

// NewTrimRecorder returns a recorder to register alongside the pools.
func NewTrimRecorder() *TrimRecorder {
	return &TrimRecorder{}
}

var _ memory.Trimmable = (*TrimRecorder)(nil)

// Trim counts trimType.
func (*TrimRecorder) Trim(trimType memory.TrimType) {
	TrimEvents.WithLabelValues(trimType.String()).Inc()
}

// Timer measures one operation.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer starts timing an operation of pool name.
func NewTimer(name string) *Timer {
	return &Timer{start: time.Now(), name: name}
}

// ObserveGet records the elapsed time as a Get latency and returns it.
func (t *Timer) ObserveGet() time.Duration {
	d := time.Since(t.start)
	GetLatency.WithLabelValues(t.name).Observe(float64(d.Nanoseconds()))
	return d
}

// ThroughputTracker counts operations and reports their rate.
type ThroughputTracker struct {
	mu        sync.Mutex
	count     int64
	lastReset time.Time
}

// NewThroughputTracker starts a rate window now.
func NewThroughputTracker() *ThroughputTracker {
	return &ThroughputTracker{lastReset: time.Now()}
}

// Increment adds n operations.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset returns operations per second since the last reset and
// starts a new window.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}
	rate := float64(t.count) / elapsed
	t.count = 0
	t.lastReset = time.Now()
	return rate
}
