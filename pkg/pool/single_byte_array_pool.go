package pool

import (
	"math/bits"
	"sync"

	"github.com/ajitpratap0/imagepool/pkg/memory"
	"go.uber.org/zap"
)

// SingleByteArrayPool holds one byte array that at most one caller uses at
// a time, for work that is already serialized such as a single decode
// loop. The array grows to the next power of two when a larger one is
// requested and is dropped on any trim while not in use.
type SingleByteArrayPool struct {
	minSize int
	maxSize int
	stats   StatsTracker
	log     *zap.Logger

	mu    sync.Mutex
	array []byte
	inUse bool
}

// NewSingleByteArrayPool creates a pool whose array stays within
// [minSize, maxSize].
func NewSingleByteArrayPool(minSize, maxSize int, opts ...Option) (*SingleByteArrayPool, error) {
	if minSize <= 0 || maxSize < minSize {
		return nil, invalidParams("byte array size range is invalid", "max_size", maxSize)
	}
	o := buildOptions("single_byte_array", opts)
	return &SingleByteArrayPool{minSize: minSize, maxSize: maxSize, stats: o.stats, log: o.log}, nil
}

// BucketedSize rounds size up to a power of two.
func (p *SingleByteArrayPool) BucketedSize(size int) (int, error) {
	if size <= 0 {
		return 0, invalidSize(size)
	}
	if size&(size-1) == 0 {
		return size, nil
	}
	if bits.Len(uint(size)) >= bits.UintSize-1 {
		return 0, sizeTooLarge(size, 1<<(bits.UintSize-2))
	}
	return 1 << bits.Len(uint(size)), nil
}

// Get returns the pool's array, reallocating it when it is smaller than
// the bucketed size. It fails with ErrInUse while the array is out.
func (p *SingleByteArrayPool) Get(size int) ([]byte, error) {
	if size > p.maxSize {
		return nil, sizeTooLarge(size, p.maxSize)
	}
	bucketed, err := p.BucketedSize(size)
	if err != nil {
		return nil, err
	}
	if bucketed > p.maxSize {
		return nil, sizeTooLarge(size, p.maxSize)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inUse {
		return nil, ErrInUse
	}
	if len(p.array) < bucketed {
		bucketed = max(bucketed, p.minSize)
		p.log.Debug("get (alloc)",
			zap.Int("bucketed_size", bucketed),
			zap.Int("previous_size", len(p.array)))
		if p.array != nil {
			p.stats.OnFree(len(p.array), len(p.array))
		}
		p.array = make([]byte, bucketed)
		p.stats.OnAlloc(bucketed, bucketed)
	} else {
		p.stats.OnValueReuse(len(p.array), len(p.array))
	}
	p.inUse = true
	return p.array, nil
}

// Release marks the array free again. Anything other than the pool's
// array is ignored.
func (p *SingleByteArrayPool) Release(value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.array != nil && identity(value) == identity(p.array) {
		p.inUse = false
		p.stats.OnValueRelease(len(p.array), len(p.array))
	}
}

// Trim drops the array unless it is in use. The trim level is ignored.
func (p *SingleByteArrayPool) Trim(memory.TrimType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inUse || p.array == nil {
		return
	}
	n := len(p.array)
	p.log.Debug("discarding buffer", zap.Int("size", n))
	p.stats.OnTrim(n, n, 1)
	p.array = nil
}

// Size returns the current array length, 0 when there is none.
func (p *SingleByteArrayPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.array)
}
