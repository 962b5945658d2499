package references

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/ajitpratap0/imagepool/pkg/logger"
	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
	"go.uber.org/zap"
)

// ErrClosedReference is returned by accessors of a closed handle.
var ErrClosedReference = poolerrors.New(poolerrors.ErrorTypeState, "closeable reference is closed")

// LeakListener is told about handles collected without Close. valueType is
// the dynamic type of the wrapped value.
type LeakListener func(valueType string, refCount int32)

var leakListener atomic.Pointer[LeakListener]

// SetLeakListener turns leak tracking on for handles created afterwards.
// Passing nil turns it off.
func SetLeakListener(l LeakListener) {
	if l == nil {
		leakListener.Store(nil)
		return
	}
	leakListener.Store(&l)
}

// CloseableReference is one owner's handle onto a SharedReference. It
// implements io.Closer.
type CloseableReference[T any] struct {
	shared *SharedReference[T]
	closed atomic.Bool
}

// Of wraps value in a new SharedReference and returns the first handle.
func Of[T any](value T, releaser ResourceReleaser[T]) *CloseableReference[T] {
	return newHandle(NewSharedReference(value, releaser))
}

func newHandle[T any](shared *SharedReference[T]) *CloseableReference[T] {
	r := &CloseableReference[T]{shared: shared}
	if leakListener.Load() != nil {
		runtime.SetFinalizer(r, finalizeHandle[T])
	}
	return r
}

func finalizeHandle[T any](r *CloseableReference[T]) {
	if r.closed.Load() {
		return
	}
	valueType := fmt.Sprintf("%T", r.shared.value)
	refCount := r.shared.RefCount()
	logger.Warn("closeable reference garbage collected without being closed",
		zap.String("value_type", valueType),
		zap.Int32("ref_count", refCount))
	if l := leakListener.Load(); l != nil {
		(*l)(valueType, refCount)
	}
	_ = r.Close()
}

// Get returns the wrapped value, or ErrClosedReference once this handle is
// closed.
func (r *CloseableReference[T]) Get() (T, error) {
	if r.closed.Load() {
		var zero T
		return zero, ErrClosedReference
	}
	return r.shared.Get(), nil
}

// MustGet is Get for callers that already hold the handle open.
func (r *CloseableReference[T]) MustGet() T {
	v, err := r.Get()
	if err != nil {
		panic(err)
	}
	return v
}

// IsValid reports whether this handle is open and its cell still holds
// references.
func (r *CloseableReference[T]) IsValid() bool {
	return !r.closed.Load() && r.shared.IsValid()
}

// Clone returns a new handle onto the same cell.
func (r *CloseableReference[T]) Clone() (*CloseableReference[T], error) {
	if r.closed.Load() {
		return nil, ErrClosedReference
	}
	if err := r.shared.AddReference(); err != nil {
		return nil, err
	}
	return newHandle(r.shared), nil
}

// CloneOrNil is Clone that reports failure as nil.
func (r *CloseableReference[T]) CloneOrNil() *CloseableReference[T] {
	if r == nil {
		return nil
	}
	c, err := r.Clone()
	if err != nil {
		return nil
	}
	return c
}

// Close drops this handle's reference. Only the first call has an effect.
func (r *CloseableReference[T]) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	runtime.SetFinalizer(r, nil)
	r.shared.DeleteReference()
	return nil
}

// UnderlyingReferenceTestOnly exposes the shared cell for identity checks.
func (r *CloseableReference[T]) UnderlyingReferenceTestOnly() *SharedReference[T] {
	return r.shared
}

// RefCountTestOnly returns the shared cell's count.
func (r *CloseableReference[T]) RefCountTestOnly() int32 {
	return r.shared.RefCount()
}

// IsValid reports whether ref is non-nil and valid.
func IsValid[T any](ref *CloseableReference[T]) bool {
	return ref != nil && ref.IsValid()
}

// CloneOrNil clones ref, returning nil for a nil or closed handle.
func CloneOrNil[T any](ref *CloseableReference[T]) *CloseableReference[T] {
	return ref.CloneOrNil()
}

// CloseSafely closes every non-nil handle.
func CloseSafely[T any](refs ...*CloseableReference[T]) {
	for _, ref := range refs {
		if ref != nil {
			_ = ref.Close()
		}
	}
}
