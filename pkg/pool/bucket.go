package pool

import (
	"github.com/ajitpratap0/imagepool/pkg/logger"
	"go.uber.org/zap"
)

// Bucket is the free list for one bucketed size together with the number
// of values of that size currently handed out. MaxLength bounds free plus
// in-use values; zero or less means unbounded. A Bucket belongs to exactly
// one pool and is guarded by that pool's lock.
type Bucket[V any] struct {
	ItemSize  int
	MaxLength int

	free  []V
	inUse int
}

// NewBucket creates an empty bucket. inUse seeds the in-use count when a
// bucket is rebuilt for values already handed out.
func NewBucket[V any](itemSize, maxLength, inUse int) *Bucket[V] {
	if inUse < 0 {
		inUse = 0
	}
	return &Bucket[V]{ItemSize: itemSize, MaxLength: maxLength, inUse: inUse}
}

// Get pops the most recently released value and counts it as in use.
func (b *Bucket[V]) Get() (V, bool) {
	v, ok := b.Pop()
	if ok {
		b.inUse++
	}
	return v, ok
}

// Pop removes the most recently released value without touching the
// in-use count.
func (b *Bucket[V]) Pop() (V, bool) {
	n := len(b.free)
	if n == 0 {
		var zero V
		return zero, false
	}
	v := b.free[n-1]
	var zero V
	b.free[n-1] = zero
	b.free = b.free[:n-1]
	return v, true
}

// Release returns an in-use value. It reports false, leaving the value to
// the caller to free, when keeping it would exceed MaxLength.
func (b *Bucket[V]) Release(v V) bool {
	if b.inUse > 0 {
		b.inUse--
	} else {
		logger.Error("release into bucket with no values in use", zap.Int("item_size", b.ItemSize))
		return false
	}
	if b.MaxLength > 0 && len(b.free)+b.inUse >= b.MaxLength {
		return false
	}
	b.free = append(b.free, v)
	return true
}

// RemoveFromFreeList pops up to count values for the caller to free.
func (b *Bucket[V]) RemoveFromFreeList(count int) []V {
	if count > len(b.free) {
		count = len(b.free)
	}
	out := make([]V, 0, count)
	for i := 0; i < count; i++ {
		v, _ := b.Pop()
		out = append(out, v)
	}
	return out
}

// IncrementInUseCount records a freshly allocated value of this size.
func (b *Bucket[V]) IncrementInUseCount() {
	b.inUse++
}

// DecrementInUseCount undoes IncrementInUseCount, e.g. when a value is
// freed instead of released.
func (b *Bucket[V]) DecrementInUseCount() {
	if b.inUse == 0 {
		logger.Error("decrement of bucket with no values in use", zap.Int("item_size", b.ItemSize))
		return
	}
	b.inUse--
}

// IsMaxLengthExceeded reports whether free plus in-use values are over
// MaxLength.
func (b *Bucket[V]) IsMaxLengthExceeded() bool {
	return b.MaxLength > 0 && len(b.free)+b.inUse > b.MaxLength
}

// FreeListSize returns the number of pooled values.
func (b *Bucket[V]) FreeListSize() int {
	return len(b.free)
}

// InUseCount returns the number of values handed out.
func (b *Bucket[V]) InUseCount() int {
	return b.inUse
}

// contains reports whether v sits in the free list under the given key.
func (b *Bucket[V]) contains(id any) bool {
	for _, f := range b.free {
		if identity(f) == id {
			return true
		}
	}
	return false
}
