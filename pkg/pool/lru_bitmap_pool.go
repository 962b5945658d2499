package pool

import (
	"sync"

	"github.com/ajitpratap0/imagepool/pkg/bitmap"
	"github.com/ajitpratap0/imagepool/pkg/memory"
	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
	"go.uber.org/zap"
)

// LruBitmapPool reuses bitmaps of an exact allocation size, evicting the
// least recently used ones once the pooled bytes pass maxPoolSize.
// Bitmaps larger than maxBitmapSize are never pooled. An optional
// BitmapCounter bounds the bitmaps handed out; Get fails with
// ErrPoolSizeViolation when it is full.
type LruBitmapPool struct {
	backend       *LruBucketsPoolBackend[*bitmap.Bitmap]
	alloc         bitmap.Allocator
	maxPoolSize   int
	maxBitmapSize int
	inUse         *BitmapCounter
	stats         StatsTracker
	log           *zap.Logger

	mu          sync.Mutex
	currentSize int
}

// NewLruBitmapPool creates an LRU bitmap pool. inUse may be nil.
func NewLruBitmapPool(maxPoolSize, maxBitmapSize int, alloc bitmap.Allocator, inUse *BitmapCounter, opts ...Option) *LruBitmapPool {
	if alloc == nil {
		alloc = bitmap.DefaultAllocator
	}
	o := buildOptions("lru_bitmap", opts)
	return &LruBitmapPool{
		backend:       NewLruBucketsPoolBackend(func(b *bitmap.Bitmap) int { return b.AllocationByteCount() }),
		alloc:         alloc,
		maxPoolSize:   maxPoolSize,
		maxBitmapSize: maxBitmapSize,
		inUse:         inUse,
		stats:         o.stats,
		log:           o.log,
	}
}

// Get returns a pooled bitmap of exactly the bucketed size, or a new one.
func (p *LruBitmapPool) Get(size int) (*bitmap.Bitmap, error) {
	bucketed, err := bitmapHooks{}.BucketedSize(size)
	if err != nil {
		return nil, err
	}

	if p.inUse != nil && !p.inUse.Increase(bucketed) {
		return nil, p.inUseViolation(bucketed)
	}

	p.mu.Lock()
	if p.currentSize > p.maxPoolSize {
		p.trimTo(p.maxPoolSize)
	}
	b, ok := p.takeReusable(bucketed)
	p.mu.Unlock()

	if ok {
		p.stats.OnValueReuse(bucketed, bucketed)
		p.log.Debug("get (reuse)", zap.Int("bucketed_size", bucketed))
		return b, nil
	}

	b, err = allocARGB(p.alloc, bucketed)
	if err != nil {
		if p.inUse != nil {
			p.inUse.Decrease(bucketed)
		}
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeAllocation, "failed to allocate bitmap").
			WithDetail("bucketed_size", bucketed)
	}
	p.stats.OnAlloc(bucketed, bucketed)
	p.log.Debug("get (alloc)", zap.Int("bucketed_size", bucketed))
	return b, nil
}

// Release pools b if it is reusable and small enough, otherwise recycles
// it.
func (p *LruBitmapPool) Release(b *bitmap.Bitmap) {
	size := b.AllocationByteCount()
	if p.inUse != nil {
		p.inUse.Decrease(size)
	}
	if size > p.maxBitmapSize || !isReusableBitmap(b) {
		b.Recycle()
		p.stats.OnFree(size, size)
		return
	}
	p.stats.OnValueRelease(size, size)

	p.mu.Lock()
	p.backend.Put(b)
	p.currentSize += size
	p.mu.Unlock()
}

// Trim evicts least recently used bitmaps until the pool holds at most
// (1 - ratio) of maxPoolSize.
func (p *LruBitmapPool) Trim(trimType memory.TrimType) {
	target := int(float64(p.maxPoolSize) * (1 - trimType.SuggestedTrimRatio()))
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trimTo(target)
}

// CurrentSize returns the pooled bytes.
func (p *LruBitmapPool) CurrentSize() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentSize
}

// ValueCount returns the number of pooled bitmaps.
func (p *LruBitmapPool) ValueCount() int {
	return p.backend.ValueCount()
}

// trimTo must be called with mu held.
func (p *LruBitmapPool) trimTo(maxSize int) {
	evicted, bytes := 0, 0
	for p.currentSize > maxSize {
		b, ok := p.backend.RemoveFromEnd()
		if !ok {
			break
		}
		size := p.backend.SizeOf(b)
		p.currentSize -= size
		b.Recycle()
		p.stats.OnFree(size, size)
		evicted++
		bytes += size
	}
	if evicted > 0 {
		p.stats.OnTrim(0, bytes, evicted)
		p.log.Debug("trim", zap.Int("evicted", evicted), zap.Int("bytes", bytes))
	}
}

// takeReusable pops pooled bitmaps of size until one is reusable. Stale
// ones are recycled on the way. Callers hold mu.
func (p *LruBitmapPool) takeReusable(size int) (*bitmap.Bitmap, bool) {
	for {
		b, ok := p.backend.Get(size)
		if !ok {
			return nil, false
		}
		p.currentSize -= size
		if isReusableBitmap(b) {
			return b, true
		}
		b.Recycle()
		p.stats.OnFree(size, size)
		p.log.Debug("dropped stale pooled bitmap", zap.Int("bucketed_size", size))
	}
}

func (p *LruBitmapPool) inUseViolation(size int) error {
	p.stats.OnHardCapReached()
	return poolerrors.New(poolerrors.ErrorTypeCapacity, ErrPoolSizeViolation.Message).
		WithDetail("requested_bytes", size).
		WithDetail("in_use_count", p.inUse.Count()).
		WithDetail("in_use_bytes", p.inUse.Size())
}
