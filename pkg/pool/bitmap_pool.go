package pool

import (
	"math"
	"sync"

	"github.com/ajitpratap0/imagepool/pkg/bitmap"
	"github.com/ajitpratap0/imagepool/pkg/memory"
)

// BitmapPool hands out bitmaps with at least size bytes of storage.
type BitmapPool interface {
	Get(size int) (*bitmap.Bitmap, error)
	Release(b *bitmap.Bitmap)
	memory.Trimmable
}

// GetBitmap takes a bitmap from p and reshapes it to width x height.
func GetBitmap(p BitmapPool, width, height int, cfg bitmap.Config) (*bitmap.Bitmap, error) {
	if width <= 0 || height <= 0 {
		return nil, bitmap.ErrInvalidDimensions
	}
	b, err := p.Get(bitmap.SizeInBytes(width, height, cfg))
	if err != nil {
		return nil, err
	}
	if err := b.Reconfigure(width, height, cfg); err != nil {
		p.Release(b)
		return nil, err
	}
	return b, nil
}

// allocARGB allocates a one-pixel-wide ARGB bitmap covering size bytes.
func allocARGB(alloc bitmap.Allocator, size int) (*bitmap.Bitmap, error) {
	rows := (size + bitmap.BytesPerARGBPixel - 1) / bitmap.BytesPerARGBPixel
	return alloc(1, rows, bitmap.ARGB8888)
}

func isReusableBitmap(b *bitmap.Bitmap) bool {
	return !b.IsRecycled() && b.IsMutable()
}

type bitmapHooks struct {
	alloc bitmap.Allocator
}

func (h bitmapHooks) Alloc(bucketedSize int) (*bitmap.Bitmap, error) {
	return allocARGB(h.alloc, bucketedSize)
}

func (bitmapHooks) Free(b *bitmap.Bitmap) { b.Recycle() }

func (bitmapHooks) IsReusable(b *bitmap.Bitmap) bool { return isReusableBitmap(b) }

// BucketedSize rounds up to whole ARGB pixels so that the allocation of
// a new bitmap maps back to the same bucket.
func (bitmapHooks) BucketedSize(requestSize int) (int, error) {
	if requestSize <= 0 {
		return 0, invalidSize(requestSize)
	}
	px := bitmap.BytesPerARGBPixel
	if limit := math.MaxInt - (px - 1); requestSize > limit {
		return 0, sizeTooLarge(requestSize, limit)
	}
	return (requestSize + px - 1) / px * px, nil
}

func (bitmapHooks) BucketedSizeForValue(b *bitmap.Bitmap) int { return b.AllocationByteCount() }

func (bitmapHooks) SizeInBytes(bucketedSize int) int { return bucketedSize }

// BucketsBitmapPool pools bitmaps in one bucket per allocation size.
type BucketsBitmapPool struct {
	*BasePool[*bitmap.Bitmap]
}

// NewBucketsBitmapPool creates a bucketed bitmap pool. A nil allocator
// means bitmap.DefaultAllocator.
func NewBucketsBitmapPool(params PoolParams, alloc bitmap.Allocator, opts ...Option) (*BucketsBitmapPool, error) {
	if alloc == nil {
		alloc = bitmap.DefaultAllocator
	}
	base, err := NewBasePool[*bitmap.Bitmap]("buckets_bitmap", bitmapHooks{alloc: alloc}, params, opts...)
	if err != nil {
		return nil, err
	}
	return &BucketsBitmapPool{BasePool: base}, nil
}

// DummyBitmapPool never pools: Get allocates and Release recycles.
type DummyBitmapPool struct {
	alloc bitmap.Allocator
	stats StatsTracker

	mu       sync.Mutex
	inUse    map[*bitmap.Bitmap]struct{}
	tracking bool
}

// NewDummyBitmapPool creates a pass-through pool. With tracking on it
// remembers which bitmaps it handed out and only recycles those.
func NewDummyBitmapPool(alloc bitmap.Allocator, tracking bool, opts ...Option) *DummyBitmapPool {
	if alloc == nil {
		alloc = bitmap.DefaultAllocator
	}
	o := buildOptions("dummy_bitmap", opts)
	return &DummyBitmapPool{
		alloc:    alloc,
		stats:    o.stats,
		inUse:    make(map[*bitmap.Bitmap]struct{}),
		tracking: tracking,
	}
}

// Get allocates a new bitmap.
func (p *DummyBitmapPool) Get(size int) (*bitmap.Bitmap, error) {
	bucketed, err := bitmapHooks{}.BucketedSize(size)
	if err != nil {
		return nil, err
	}
	b, err := allocARGB(p.alloc, bucketed)
	if err != nil {
		return nil, err
	}
	p.stats.OnAlloc(bucketed, bucketed)
	if p.tracking {
		p.mu.Lock()
		p.inUse[b] = struct{}{}
		p.mu.Unlock()
	}
	return b, nil
}

// Release recycles b.
func (p *DummyBitmapPool) Release(b *bitmap.Bitmap) {
	if p.tracking {
		p.mu.Lock()
		_, ok := p.inUse[b]
		delete(p.inUse, b)
		p.mu.Unlock()
		if !ok {
			return
		}
	}
	size := b.AllocationByteCount()
	b.Recycle()
	p.stats.OnFree(size, size)
}

// InUseCount returns how many tracked bitmaps are out.
func (p *DummyBitmapPool) InUseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.inUse)
}

// Trim is a no-op; nothing is pooled.
func (p *DummyBitmapPool) Trim(memory.TrimType) {}
