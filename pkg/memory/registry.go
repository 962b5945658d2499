package memory

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/ajitpratap0/imagepool/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const tracerName = "github.com/ajitpratap0/imagepool/pkg/memory"

// Registry fans trim signals out to registered Trimmables in registration
// order.
type Registry struct {
	mu         sync.RWMutex
	trimmables []Trimmable
	tracer     trace.Tracer
	log        *zap.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTracerProvider sets the provider fan-out spans are recorded on.
// The global provider is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) RegistryOption {
	return func(r *Registry) {
		r.tracer = tp.Tracer(tracerName)
	}
}

// WithRegistryLogger sets the registry's logger.
func WithRegistryLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) {
		r.log = l
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	if r.log == nil {
		r.log = logger.With(zap.String("component", "trim_registry"))
	}
	return r
}

// Register adds t. Registering the same Trimmable twice is a no-op.
// Trimmables of a non-comparable type, such as a plain TrimmableFunc, are
// always added and cannot be unregistered.
func (r *Registry) Register(t Trimmable) {
	if t == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.trimmables {
		if sameTrimmable(existing, t) {
			return
		}
	}
	r.trimmables = append(r.trimmables, t)
}

// Unregister removes t if present.
func (r *Registry) Unregister(t Trimmable) {
	if t == nil {
		return
	}
	if !isComparable(t) {
		r.log.Warn("cannot unregister trimmable of non-comparable type",
			zap.String("type", reflect.TypeOf(t).String()))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.trimmables {
		if sameTrimmable(existing, t) {
			r.trimmables = append(r.trimmables[:i], r.trimmables[i+1:]...)
			return
		}
	}
}

func isComparable(t Trimmable) bool {
	return reflect.TypeOf(t).Comparable()
}

// sameTrimmable compares a and b without panicking on function or other
// non-comparable dynamic types.
func sameTrimmable(a, b Trimmable) bool {
	if !isComparable(a) || !isComparable(b) {
		return false
	}
	return a == b
}

// Len returns the number of registered Trimmables.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.trimmables)
}

// Trim delivers trimType to every registered Trimmable and returns how
// many were notified. The registry lock is not held while they run, so a
// Trimmable may register or unregister from inside Trim.
func (r *Registry) Trim(ctx context.Context, trimType TrimType) int {
	r.mu.RLock()
	targets := make([]Trimmable, len(r.trimmables))
	copy(targets, r.trimmables)
	r.mu.RUnlock()

	_, span := r.tracer.Start(ctx, "memory.trim",
		trace.WithAttributes(
			attribute.String("trim.type", trimType.String()),
			attribute.Float64("trim.ratio", trimType.SuggestedTrimRatio()),
			attribute.Int("trim.targets", len(targets)),
		))
	defer span.End()

	start := time.Now()
	for _, t := range targets {
		t.Trim(trimType)
	}

	r.log.Info("trim delivered",
		zap.Stringer("trim_type", trimType),
		zap.Int("targets", len(targets)),
		zap.Duration("duration", time.Since(start)))
	return len(targets)
}
