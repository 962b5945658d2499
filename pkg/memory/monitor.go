package memory

import (
	"context"
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ajitpratap0/imagepool/pkg/logger"
	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

// Sample is one reading of memory usage.
type Sample struct {
	// SystemUsedPercent is system-wide used memory, 0-100.
	SystemUsedPercent float64
	// HeapInUse is the Go heap's in-use bytes.
	HeapInUse uint64
	// HeapLimit is the runtime soft memory limit, or 0 when unset.
	HeapLimit uint64
}

// Sampler takes one Sample.
type Sampler func(ctx context.Context) (Sample, error)

// SystemSampler reads system memory through gopsutil and heap usage from
// the Go runtime.
func SystemSampler(ctx context.Context) (Sample, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Sample{}, poolerrors.Wrap(err, poolerrors.ErrorTypeInternal, "failed to read virtual memory")
	}
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	s := Sample{SystemUsedPercent: vm.UsedPercent, HeapInUse: ms.HeapInuse}
	if limit := debug.SetMemoryLimit(-1); limit > 0 && limit < math.MaxInt64 {
		s.HeapLimit = uint64(limit)
	}
	return s, nil
}

// MonitorConfig holds PressureMonitor thresholds.
type MonitorConfig struct {
	Interval time.Duration `yaml:"interval" json:"interval"`
	// LowMemoryPercent is the system used-percent that counts as low memory.
	LowMemoryPercent float64 `yaml:"low_memory_percent" json:"low_memory_percent"`
	// CriticalMemoryPercent is the system used-percent that counts as
	// critically low memory.
	CriticalMemoryPercent float64 `yaml:"critical_memory_percent" json:"critical_memory_percent"`
	// HeapLimitFraction of the runtime memory limit counts as close to it.
	HeapLimitFraction float64 `yaml:"heap_limit_fraction" json:"heap_limit_fraction"`
}

// DefaultMonitorConfig returns thresholds suitable for most hosts.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Interval:              5 * time.Second,
		LowMemoryPercent:      85,
		CriticalMemoryPercent: 95,
		HeapLimitFraction:     0.9,
	}
}

// Validate checks threshold ordering.
func (c MonitorConfig) Validate() error {
	switch {
	case c.Interval <= 0:
		return poolerrors.New(poolerrors.ErrorTypeConfig, "monitor interval must be positive").
			WithDetail("interval", c.Interval)
	case c.LowMemoryPercent <= 0 || c.LowMemoryPercent > 100:
		return poolerrors.New(poolerrors.ErrorTypeConfig, "low memory percent out of range").
			WithDetail("low_memory_percent", c.LowMemoryPercent)
	case c.CriticalMemoryPercent < c.LowMemoryPercent || c.CriticalMemoryPercent > 100:
		return poolerrors.New(poolerrors.ErrorTypeConfig, "critical memory percent out of range").
			WithDetail("critical_memory_percent", c.CriticalMemoryPercent)
	case c.HeapLimitFraction <= 0 || c.HeapLimitFraction > 1:
		return poolerrors.New(poolerrors.ErrorTypeConfig, "heap limit fraction out of range").
			WithDetail("heap_limit_fraction", c.HeapLimitFraction)
	}
	return nil
}

// PressureMonitor turns memory samples into trims on a Registry. A trim is
// sent when a level is first reached or escalates; staying at one level
// sends nothing more until pressure clears.
type PressureMonitor struct {
	cfg      MonitorConfig
	registry *Registry
	sampler  Sampler
	log      *zap.Logger

	mu         sync.Mutex
	background bool
	active     int // severity of the last delivered level, 0 when clear
}

// NewPressureMonitor creates a monitor delivering to registry. A nil
// sampler means SystemSampler.
func NewPressureMonitor(cfg MonitorConfig, registry *Registry, sampler Sampler) (*PressureMonitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sampler == nil {
		sampler = SystemSampler
	}
	return &PressureMonitor{
		cfg:      cfg,
		registry: registry,
		sampler:  sampler,
		log:      logger.With(zap.String("component", "pressure_monitor")),
	}, nil
}

// severity orders levels by how much they ask pools to give back.
func severity(t TrimType) int {
	switch t {
	case TrimOnCloseToHeapLimit:
		return 1
	case TrimOnSystemLowMemoryWhileInForeground:
		return 2
	case TrimOnSystemMemoryCriticallyLowWhileInForeground:
		return 3
	default:
		return 4
	}
}

// Classify maps a sample to the most severe level it reaches.
func (m *PressureMonitor) Classify(s Sample) (TrimType, bool) {
	m.mu.Lock()
	background := m.background
	m.mu.Unlock()

	switch {
	case s.SystemUsedPercent >= m.cfg.LowMemoryPercent && background:
		return TrimOnSystemLowMemoryWhileInBackground, true
	case s.SystemUsedPercent >= m.cfg.CriticalMemoryPercent:
		return TrimOnSystemMemoryCriticallyLowWhileInForeground, true
	case s.SystemUsedPercent >= m.cfg.LowMemoryPercent:
		return TrimOnSystemLowMemoryWhileInForeground, true
	case s.HeapLimit > 0 && float64(s.HeapInUse) >= float64(s.HeapLimit)*m.cfg.HeapLimitFraction:
		return TrimOnCloseToHeapLimit, true
	}
	return 0, false
}

// SetBackground records whether the process is idle. Entering the
// background sends TrimOnAppBackgrounded.
func (m *PressureMonitor) SetBackground(ctx context.Context, background bool) {
	m.mu.Lock()
	entering := background && !m.background
	m.background = background
	if entering {
		m.active = severity(TrimOnAppBackgrounded)
	} else if !background {
		m.active = 0
	}
	m.mu.Unlock()

	if entering {
		m.deliver(ctx, TrimOnAppBackgrounded)
	}
}

// Check takes one sample and delivers a trim if pressure rose. It reports
// the level delivered, if any.
func (m *PressureMonitor) Check(ctx context.Context) (TrimType, bool, error) {
	s, err := m.sampler(ctx)
	if err != nil {
		return 0, false, err
	}
	level, ok := m.Classify(s)

	m.mu.Lock()
	if !ok {
		m.active = 0
		m.mu.Unlock()
		return 0, false, nil
	}
	sev := severity(level)
	if sev <= m.active {
		m.mu.Unlock()
		return level, false, nil
	}
	m.active = sev
	m.mu.Unlock()

	m.log.Warn("memory pressure detected",
		zap.Stringer("trim_type", level),
		zap.Float64("system_used_percent", s.SystemUsedPercent),
		zap.Uint64("heap_in_use", s.HeapInUse),
		zap.Uint64("heap_limit", s.HeapLimit))
	m.deliver(ctx, level)
	return level, true, nil
}

func (m *PressureMonitor) deliver(ctx context.Context, level TrimType) {
	if m.registry != nil {
		m.registry.Trim(ctx, level)
	}
}

// Run checks every Interval until ctx is done. Sampling errors are logged
// and do not stop the loop.
func (m *PressureMonitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, _, err := m.Check(ctx); err != nil {
				m.log.Error("memory sample failed", zap.Error(err))
			}
		}
	}
}
