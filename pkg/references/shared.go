package references

import (
	"fmt"
	"sync/atomic"

	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
)

// ErrInvalidReference is returned when adding a reference to a cell whose
// count already reached zero.
var ErrInvalidReference = poolerrors.New(poolerrors.ErrorTypeState, "shared reference is no longer valid")

// SharedReference is a reference counted cell around one value. The count
// starts at one and the releaser runs exactly once, when it reaches zero.
type SharedReference[T any] struct {
	value    T
	releaser ResourceReleaser[T]
	refCount atomic.Int32
}

// NewSharedReference wraps value with a reference count of one.
func NewSharedReference[T any](value T, releaser ResourceReleaser[T]) *SharedReference[T] {
	if releaser == nil {
		releaser = NoOpReleaser[T]()
	}
	s := &SharedReference[T]{value: value, releaser: releaser}
	s.refCount.Store(1)
	return s
}

// Get returns the wrapped value. It does not check validity; callers go
// through CloseableReference for that.
func (s *SharedReference[T]) Get() T {
	return s.value
}

// IsValid reports whether the count is still positive.
func (s *SharedReference[T]) IsValid() bool {
	return s.refCount.Load() > 0
}

// RefCount returns the current count.
func (s *SharedReference[T]) RefCount() int32 {
	return s.refCount.Load()
}

// AddReference increments the count. It fails once the count has reached
// zero, because the value may already be back in its pool.
func (s *SharedReference[T]) AddReference() error {
	for {
		n := s.refCount.Load()
		if n <= 0 {
			return ErrInvalidReference
		}
		if s.refCount.CompareAndSwap(n, n+1) {
			return nil
		}
	}
}

// DeleteReference decrements the count and runs the releaser when it hits
// zero. Deleting from a cell that is already at zero is a caller bug and
// panics.
func (s *SharedReference[T]) DeleteReference() {
	var n int32
	for {
		cur := s.refCount.Load()
		if cur <= 0 {
			panic(fmt.Sprintf("references: delete on shared reference with count %d", cur))
		}
		n = cur - 1
		if s.refCount.CompareAndSwap(cur, n) {
			break
		}
	}
	if n == 0 {
		s.releaser.Release(s.value)
	}
}
