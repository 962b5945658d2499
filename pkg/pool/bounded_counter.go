package pool

import (
	"sync"

	"github.com/ajitpratap0/imagepool/pkg/bitmap"
	"github.com/ajitpratap0/imagepool/pkg/logger"
	"github.com/ajitpratap0/imagepool/pkg/references"
	"go.uber.org/zap"
)

// BoundedCounter counts values and their bytes against fixed limits.
type BoundedCounter struct {
	maxCount int
	maxSize  int

	mu    sync.Mutex
	count int
	size  int
}

// NewBoundedCounter creates a counter allowing at most maxCount values
// totalling at most maxSize bytes.
func NewBoundedCounter(maxCount, maxSize int) *BoundedCounter {
	return &BoundedCounter{maxCount: maxCount, maxSize: maxSize}
}

// Increase adds one value of size bytes, or reports false and changes
// nothing when that would pass either limit.
func (c *BoundedCounter) Increase(size int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count >= c.maxCount || c.size+size > c.maxSize {
		return false
	}
	c.count++
	c.size += size
	return true
}

// Decrease removes one value of size bytes. A decrease the counter cannot
// cover is logged and ignored.
func (c *BoundedCounter) Decrease(size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count <= 0 || size > c.size {
		logger.Error("bounded counter decrease out of range",
			zap.Int("size", size),
			zap.Int("count", c.count),
			zap.Int("total_size", c.size))
		return
	}
	c.count--
	c.size -= size
}

// Count returns the number of values counted.
func (c *BoundedCounter) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Size returns the bytes counted.
func (c *BoundedCounter) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// MaxCount returns the count limit.
func (c *BoundedCounter) MaxCount() int { return c.maxCount }

// MaxSize returns the byte limit.
func (c *BoundedCounter) MaxSize() int { return c.maxSize }

// BitmapCounter bounds the decoded bitmaps alive at once.
type BitmapCounter struct {
	*BoundedCounter
}

// NewBitmapCounter creates a bitmap counter.
func NewBitmapCounter(maxCount, maxSize int) *BitmapCounter {
	return &BitmapCounter{BoundedCounter: NewBoundedCounter(maxCount, maxSize)}
}

// IncreaseBitmap counts b.
func (c *BitmapCounter) IncreaseBitmap(b *bitmap.Bitmap) bool {
	return c.Increase(b.AllocationByteCount())
}

// DecreaseBitmap uncounts b.
func (c *BitmapCounter) DecreaseBitmap(b *bitmap.Bitmap) {
	c.Decrease(b.AllocationByteCount())
}

// Releaser uncounts and recycles a bitmap once its last reference closes.
func (c *BitmapCounter) Releaser() references.ResourceReleaser[*bitmap.Bitmap] {
	return references.ReleaserFunc[*bitmap.Bitmap](func(b *bitmap.Bitmap) {
		c.DecreaseBitmap(b)
		b.Recycle()
	})
}

// Track counts b and wraps it in a reference that releases it through the
// counter. It reports false and leaves b alone when the counter is full.
func (c *BitmapCounter) Track(b *bitmap.Bitmap) (*references.CloseableReference[*bitmap.Bitmap], bool) {
	if !c.IncreaseBitmap(b) {
		return nil, false
	}
	return references.Of(b, c.Releaser()), true
}
