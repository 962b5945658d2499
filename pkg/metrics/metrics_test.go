package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/ajitpratap0/imagepool/pkg/memory"
	"github.com/ajitpratap0/imagepool/pkg/pool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolStatsTrackerCounts(t *testing.T) {
	params, err := pool.NewPoolParams(1024, 2048, map[int]int{16: 4, 32: 4})
	require.NoError(t, err)
	p, err := pool.NewByteArrayPool(params, pool.WithStatsTracker(NewPoolStatsTracker("metrics_test")))
	require.NoError(t, err)

	a, err := p.Get(10)
	require.NoError(t, err)
	p.Release(a)
	b, err := p.Get(16)
	require.NoError(t, err)
	p.Release(b)
	p.TrimToNothing()

	assert.Equal(t, 1.0, testutil.ToFloat64(Allocations.WithLabelValues("metrics_test")))
	assert.Equal(t, 16.0, testutil.ToFloat64(AllocatedBytes.WithLabelValues("metrics_test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(Reuses.WithLabelValues("metrics_test")))
	assert.Equal(t, 2.0, testutil.ToFloat64(Releases.WithLabelValues("metrics_test")))
	assert.Equal(t, 1.0, testutil.ToFloat64(TrimmedValues.WithLabelValues("metrics_test")))
	assert.Equal(t, 16.0, testutil.ToFloat64(TrimmedBytes.WithLabelValues("metrics_test")))
}

func TestPoolStatsTrackerCaps(t *testing.T) {
	tr := NewPoolStatsTracker("caps_test")
	tr.OnSoftCapReached()
	tr.OnHardCapReached()
	tr.OnHardCapReached()
	tr.OnFree(4, 4)

	assert.Equal(t, 1.0, testutil.ToFloat64(CapReached.WithLabelValues("caps_test", "soft")))
	assert.Equal(t, 2.0, testutil.ToFloat64(CapReached.WithLabelValues("caps_test", "hard")))
	assert.Equal(t, 1.0, testutil.ToFloat64(Frees.WithLabelValues("caps_test")))
}

func TestObserveStats(t *testing.T) {
	ObserveStats(pool.Stats{Name: "observe_test", UsedBytes: 64, UsedCount: 2, FreeBytes: 32, FreeCount: 1})

	assert.Equal(t, 64.0, testutil.ToFloat64(PoolBytes.WithLabelValues("observe_test", "used")))
	assert.Equal(t, 32.0, testutil.ToFloat64(PoolBytes.WithLabelValues("observe_test", "free")))
	assert.Equal(t, 2.0, testutil.ToFloat64(PoolValues.WithLabelValues("observe_test", "used")))
	assert.Equal(t, 1.0, testutil.ToFloat64(PoolValues.WithLabelValues("observe_test", "free")))
}

func TestTrimRecorder(t *testing.T) {
	reg := memory.NewRegistry()
	reg.Register(NewTrimRecorder())

	before := testutil.ToFloat64(TrimEvents.WithLabelValues(memory.TrimOnAppBackgrounded.String()))
	reg.Trim(context.Background(), memory.TrimOnAppBackgrounded)
	after := testutil.ToFloat64(TrimEvents.WithLabelValues(memory.TrimOnAppBackgrounded.String()))
	assert.Equal(t, before+1, after)
}

func TestTimerObservesGet(t *testing.T) {
	timer := NewTimer("timer_test")
	d := timer.ObserveGet()
	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.GreaterOrEqual(t, testutil.CollectAndCount(GetLatency), 1)
}

func TestThroughputTracker(t *testing.T) {
	tr := NewThroughputTracker()
	tr.Increment(10)
	time.Sleep(10 * time.Millisecond)
	rate := tr.GetAndReset()
	assert.Greater(t, rate, 0.0)
	assert.LessOrEqual(t, rate, 1000.0)
}
