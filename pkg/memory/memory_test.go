package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap/zaptest"
)

type recordingTrimmable struct {
	mu    sync.Mutex
	calls []TrimType
}

func (r *recordingTrimmable) Trim(t TrimType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, t)
}

func (r *recordingTrimmable) Calls() []TrimType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]TrimType(nil), r.calls...)
}

func newTestRegistry(t *testing.T) (*Registry, *tracetest.SpanRecorder) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	return NewRegistry(WithTracerProvider(tp), WithRegistryLogger(zaptest.NewLogger(t))), sr
}

func TestSuggestedTrimRatio(t *testing.T) {
	tests := []struct {
		trimType TrimType
		want     float64
	}{
		{TrimOnCloseToHeapLimit, 0.5},
		{TrimOnSystemLowMemoryWhileInForeground, 0.5},
		{TrimOnSystemMemoryCriticallyLowWhileInForeground, 0.5},
		{TrimOnSystemLowMemoryWhileInBackground, 1.0},
		{TrimOnAppBackgrounded, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.trimType.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.trimType.SuggestedTrimRatio())
		})
	}
}

func TestParseTrimType(t *testing.T) {
	for _, tt := range AllTrimTypes {
		got, err := ParseTrimType(tt.String())
		require.NoError(t, err)
		assert.Equal(t, tt, got)
	}

	_, err := ParseTrimType("whenever")
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeValidation))
	assert.Equal(t, "trim_type(42)", TrimType(42).String())
}

func TestRegistryFansOutInOrder(t *testing.T) {
	reg, sr := newTestRegistry(t)

	var order []string
	var mu sync.Mutex
	mk := func(name string) *TrimmableFunc {
		f := TrimmableFunc(func(TrimType) {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
		})
		return &f
	}
	a, b := mk("a"), mk("b")
	reg.Register(a)
	reg.Register(b)
	reg.Register(a)
	assert.Equal(t, 2, reg.Len())

	n := reg.Trim(context.Background(), TrimOnAppBackgrounded)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"a", "b"}, order)

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "memory.trim", spans[0].Name())
}

func TestRegistryUnregister(t *testing.T) {
	reg, _ := newTestRegistry(t)
	a := &recordingTrimmable{}
	b := &recordingTrimmable{}
	reg.Register(a)
	reg.Register(b)
	reg.Unregister(a)

	reg.Trim(context.Background(), TrimOnCloseToHeapLimit)
	assert.Empty(t, a.Calls())
	assert.Equal(t, []TrimType{TrimOnCloseToHeapLimit}, b.Calls())
}

func TestRegistryAcceptsPlainTrimmableFuncs(t *testing.T) {
	reg, _ := newTestRegistry(t)
	calls := 0
	first := TrimmableFunc(func(TrimType) { calls++ })
	second := TrimmableFunc(func(TrimType) { calls++ })
	tracked := &recordingTrimmable{}

	require.NotPanics(t, func() {
		reg.Register(tracked)
		reg.Register(first)
		reg.Register(second)
		reg.Register(nil)
	})
	assert.Equal(t, 3, reg.Len())

	require.NotPanics(t, func() {
		reg.Unregister(first)
		reg.Unregister(tracked)
	})
	assert.Equal(t, 2, reg.Len(), "function values stay registered")

	n := reg.Trim(context.Background(), TrimOnAppBackgrounded)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, calls)
	assert.Empty(t, tracked.Calls())
}

func TestRegistryAllowsReentrantRegistration(t *testing.T) {
	reg, _ := newTestRegistry(t)
	late := &recordingTrimmable{}
	f := TrimmableFunc(func(TrimType) { reg.Register(late) })
	reg.Register(&f)

	reg.Trim(context.Background(), TrimOnCloseToHeapLimit)
	assert.Empty(t, late.Calls())
	assert.Equal(t, 2, reg.Len())
}

type fakeSampler struct {
	mu      sync.Mutex
	samples []Sample
	err     error
}

func (f *fakeSampler) next(context.Context) (Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Sample{}, f.err
	}
	s := f.samples[0]
	if len(f.samples) > 1 {
		f.samples = f.samples[1:]
	}
	return s, nil
}

func TestPressureMonitorClassify(t *testing.T) {
	m, err := NewPressureMonitor(DefaultMonitorConfig(), nil, (&fakeSampler{}).next)
	require.NoError(t, err)

	tests := []struct {
		name   string
		sample Sample
		want   TrimType
		ok     bool
	}{
		{"idle", Sample{SystemUsedPercent: 40}, 0, false},
		{"heap", Sample{SystemUsedPercent: 40, HeapInUse: 95, HeapLimit: 100}, TrimOnCloseToHeapLimit, true},
		{"heap without limit", Sample{SystemUsedPercent: 40, HeapInUse: 95}, 0, false},
		{"low", Sample{SystemUsedPercent: 90}, TrimOnSystemLowMemoryWhileInForeground, true},
		{"critical", Sample{SystemUsedPercent: 97}, TrimOnSystemMemoryCriticallyLowWhileInForeground, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := m.Classify(tt.sample)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestPressureMonitorDeliversOnEscalation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	rec := &recordingTrimmable{}
	reg.Register(rec)

	sampler := &fakeSampler{samples: []Sample{
		{SystemUsedPercent: 90},
		{SystemUsedPercent: 91},
		{SystemUsedPercent: 97},
		{SystemUsedPercent: 50},
		{SystemUsedPercent: 90},
	}}
	m, err := NewPressureMonitor(DefaultMonitorConfig(), reg, sampler.next)
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, _, err := m.Check(ctx)
		require.NoError(t, err)
	}

	assert.Equal(t, []TrimType{
		TrimOnSystemLowMemoryWhileInForeground,
		TrimOnSystemMemoryCriticallyLowWhileInForeground,
		TrimOnSystemLowMemoryWhileInForeground,
	}, rec.Calls())
}

func TestPressureMonitorBackground(t *testing.T) {
	reg, _ := newTestRegistry(t)
	rec := &recordingTrimmable{}
	reg.Register(rec)

	m, err := NewPressureMonitor(DefaultMonitorConfig(), reg, (&fakeSampler{samples: []Sample{{SystemUsedPercent: 90}}}).next)
	require.NoError(t, err)

	ctx := context.Background()
	m.SetBackground(ctx, true)
	m.SetBackground(ctx, true)
	level, delivered, err := m.Check(ctx)
	require.NoError(t, err)
	assert.False(t, delivered)
	assert.Equal(t, TrimOnSystemLowMemoryWhileInBackground, level)
	assert.Equal(t, []TrimType{TrimOnAppBackgrounded}, rec.Calls())
}

func TestPressureMonitorSamplerError(t *testing.T) {
	boom := errors.New("boom")
	m, err := NewPressureMonitor(DefaultMonitorConfig(), nil, (&fakeSampler{err: boom}).next)
	require.NoError(t, err)
	_, _, err = m.Check(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestPressureMonitorRunStopsOnCancel(t *testing.T) {
	reg, _ := newTestRegistry(t)
	rec := &recordingTrimmable{}
	reg.Register(rec)

	cfg := DefaultMonitorConfig()
	cfg.Interval = 5 * time.Millisecond
	m, err := NewPressureMonitor(cfg, reg, (&fakeSampler{samples: []Sample{{SystemUsedPercent: 99}}}).next)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	require.Eventually(t, func() bool { return len(rec.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Len(t, rec.Calls(), 1)
}

func TestMonitorConfigValidate(t *testing.T) {
	cfg := DefaultMonitorConfig()
	require.NoError(t, cfg.Validate())

	cfg.CriticalMemoryPercent = 50
	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeConfig))

	_, err = NewPressureMonitor(MonitorConfig{}, nil, nil)
	assert.Error(t, err)
}
