package pool

import (
	"sync"

	"github.com/ajitpratap0/imagepool/pkg/bitmap"
	"github.com/ajitpratap0/imagepool/pkg/logger"
	"github.com/ajitpratap0/imagepool/pkg/memory"
	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
	"go.uber.org/zap"
)

// BitmapPoolType selects the bitmap pool a Factory builds.
type BitmapPoolType string

const (
	// BitmapPoolBuckets pools bitmaps in exact-size buckets.
	BitmapPoolBuckets BitmapPoolType = "buckets"
	// BitmapPoolLRU pools bitmaps with LRU eviction.
	BitmapPoolLRU BitmapPoolType = "lru"
	// BitmapPoolDummy allocates on every Get and recycles on every Release.
	BitmapPoolDummy BitmapPoolType = "dummy"
	// BitmapPoolDummyWithTracking is BitmapPoolDummy that tracks bitmaps out.
	BitmapPoolDummyWithTracking BitmapPoolType = "dummy_with_tracking"
)

// BitmapConfig configures the bitmap pool.
type BitmapConfig struct {
	Type          BitmapPoolType `yaml:"type" json:"type"`
	Params        PoolParams     `yaml:"params" json:"params"`
	MaxPoolSize   int            `yaml:"max_pool_size" json:"max_pool_size"`
	MaxBitmapSize int            `yaml:"max_bitmap_size" json:"max_bitmap_size"`
	MaxInUseCount int            `yaml:"max_in_use_count" json:"max_in_use_count"`
	MaxInUseSize  int            `yaml:"max_in_use_size" json:"max_in_use_size"`
}

// SingleByteArrayConfig configures the single byte array pool.
type SingleByteArrayConfig struct {
	MinSize int `yaml:"min_size" json:"min_size"`
	MaxSize int `yaml:"max_size" json:"max_size"`
}

// FactoryConfig describes every pool a Factory can build.
type FactoryConfig struct {
	IgnoreHardCap   bool                  `yaml:"ignore_hard_cap" json:"ignore_hard_cap"`
	ByteArray       PoolParams            `yaml:"byte_array" json:"byte_array"`
	MemoryChunk     PoolParams            `yaml:"memory_chunk" json:"memory_chunk"`
	Bitmap          BitmapConfig          `yaml:"bitmap" json:"bitmap"`
	SingleByteArray SingleByteArrayConfig `yaml:"single_byte_array" json:"single_byte_array"`
}

// DefaultFactoryConfig sizes every pool for a process allowed maxMemory
// bytes.
func DefaultFactoryConfig(maxMemory int) FactoryConfig {
	bitmapPool := maxMemory / 8
	maxBitmap := 2048 * 2048 * bitmap.BytesPerARGBPixel
	if maxBitmap > bitmapPool {
		maxBitmap = bitmapPool
	}
	return FactoryConfig{
		ByteArray:   DefaultByteArrayPoolParams(),
		MemoryChunk: DefaultMemoryChunkPoolParams(maxMemory),
		Bitmap: BitmapConfig{
			Type:          BitmapPoolBuckets,
			Params:        DefaultBitmapPoolParams(maxMemory),
			MaxPoolSize:   bitmapPool,
			MaxBitmapSize: maxBitmap,
			MaxInUseCount: 384,
			MaxInUseSize:  maxMemory / 2,
		},
		SingleByteArray: SingleByteArrayConfig{MinSize: 16 * KiB, MaxSize: 4 * MiB},
	}
}

// Validate checks every pool section.
func (c FactoryConfig) Validate() error {
	if err := c.ByteArray.Validate(); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "invalid byte_array params")
	}
	if err := c.MemoryChunk.Validate(); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "invalid memory_chunk params")
	}
	switch c.Bitmap.Type {
	case BitmapPoolBuckets:
		if err := c.Bitmap.Params.Validate(); err != nil {
			return poolerrors.Wrap(err, poolerrors.ErrorTypeConfig, "invalid bitmap params")
		}
	case BitmapPoolLRU:
		if c.Bitmap.MaxPoolSize < 0 || c.Bitmap.MaxBitmapSize <= 0 {
			return invalidParams("lru bitmap sizes must be positive", "max_bitmap_size", c.Bitmap.MaxBitmapSize)
		}
	case BitmapPoolDummy, BitmapPoolDummyWithTracking:
	default:
		return invalidParams("unknown bitmap pool type", "type", c.Bitmap.Type)
	}
	s := c.SingleByteArray
	if s.MinSize <= 0 || s.MaxSize < s.MinSize {
		return invalidParams("byte array size range is invalid", "max_size", s.MaxSize)
	}
	return nil
}

type lazy[T any] struct {
	mu   sync.Mutex
	done bool
	v    T
	err  error
}

func (l *lazy[T]) get(build func() (T, error)) (T, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.done {
		l.v, l.err = build()
		l.done = true
	}
	return l.v, l.err
}

// peek returns the value without building it; ok is false until built
// successfully.
func (l *lazy[T]) peek() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.v, l.done && l.err == nil
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithStatsTrackerFactory gives each pool its own tracker.
func WithStatsTrackerFactory(f func(poolName string) StatsTracker) FactoryOption {
	return func(fa *Factory) {
		fa.statsFor = f
	}
}

// WithBitmapAllocator sets the allocator bitmap pools use.
func WithBitmapAllocator(a bitmap.Allocator) FactoryOption {
	return func(fa *Factory) {
		fa.alloc = a
	}
}

// WithFactoryLogger sets the logger handed to every pool.
func WithFactoryLogger(l *zap.Logger) FactoryOption {
	return func(fa *Factory) {
		fa.log = l
	}
}

// Factory builds each pool on first request and registers it with the
// trim registry. Pools are shared: every call returns the same instance.
type Factory struct {
	cfg      FactoryConfig
	registry *memory.Registry
	statsFor func(poolName string) StatsTracker
	alloc    bitmap.Allocator
	log      *zap.Logger

	byteArray       lazy[*ByteArrayPool]
	memoryChunk     lazy[*MemoryChunkPool]
	bitmapPool      lazy[BitmapPool]
	singleByteArray lazy[*SingleByteArrayPool]
	bitmapCounter   lazy[*BitmapCounter]
}

// NewFactory creates a factory. registry may be nil, in which case pools
// are not registered for trimming.
func NewFactory(cfg FactoryConfig, registry *memory.Registry, opts ...FactoryOption) (*Factory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Factory{cfg: cfg, registry: registry}
	for _, opt := range opts {
		opt(f)
	}
	if f.statsFor == nil {
		f.statsFor = func(string) StatsTracker { return NoOpStatsTracker{} }
	}
	if f.log == nil {
		f.log = logger.Get()
	}
	if f.alloc == nil {
		f.alloc = bitmap.DefaultAllocator
	}
	return f, nil
}

func (f *Factory) poolOptions(name string) []Option {
	return []Option{
		WithStatsTracker(f.statsFor(name)),
		WithLogger(f.log),
		WithIgnoreHardCap(f.cfg.IgnoreHardCap),
	}
}

func (f *Factory) register(name string, t memory.Trimmable) {
	if f.registry != nil {
		f.registry.Register(t)
	}
	f.log.Info("pool created", zap.String("pool", name))
}

// ByteArrayPool returns the shared byte array pool.
func (f *Factory) ByteArrayPool() (*ByteArrayPool, error) {
	return f.byteArray.get(func() (*ByteArrayPool, error) {
		p, err := NewByteArrayPool(f.cfg.ByteArray, f.poolOptions("byte_array")...)
		if err == nil {
			f.register("byte_array", p)
		}
		return p, err
	})
}

// MemoryChunkPool returns the shared memory chunk pool.
func (f *Factory) MemoryChunkPool() (*MemoryChunkPool, error) {
	return f.memoryChunk.get(func() (*MemoryChunkPool, error) {
		p, err := NewMemoryChunkPool(f.cfg.MemoryChunk, f.poolOptions("memory_chunk")...)
		if err == nil {
			f.register("memory_chunk", p)
		}
		return p, err
	})
}

// SingleByteArrayPool returns the shared single byte array pool.
func (f *Factory) SingleByteArrayPool() (*SingleByteArrayPool, error) {
	return f.singleByteArray.get(func() (*SingleByteArrayPool, error) {
		s := f.cfg.SingleByteArray
		p, err := NewSingleByteArrayPool(s.MinSize, s.MaxSize, f.poolOptions("single_byte_array")...)
		if err == nil {
			f.register("single_byte_array", p)
		}
		return p, err
	})
}

// BitmapCounter returns the shared counter bounding bitmaps in use.
func (f *Factory) BitmapCounter() *BitmapCounter {
	c, _ := f.bitmapCounter.get(func() (*BitmapCounter, error) {
		return NewBitmapCounter(f.cfg.Bitmap.MaxInUseCount, f.cfg.Bitmap.MaxInUseSize), nil
	})
	return c
}

// BitmapPool returns the shared bitmap pool of the configured type.
func (f *Factory) BitmapPool() (BitmapPool, error) {
	return f.bitmapPool.get(func() (BitmapPool, error) {
		c := f.cfg.Bitmap
		var (
			p   BitmapPool
			err error
		)
		switch c.Type {
		case BitmapPoolLRU:
			var counter *BitmapCounter
			if c.MaxInUseCount > 0 {
				counter = f.BitmapCounter()
			}
			p = NewLruBitmapPool(c.MaxPoolSize, c.MaxBitmapSize, f.alloc, counter, f.poolOptions("lru_bitmap")...)
		case BitmapPoolDummy:
			p = NewDummyBitmapPool(f.alloc, false, f.poolOptions("dummy_bitmap")...)
		case BitmapPoolDummyWithTracking:
			p = NewDummyBitmapPool(f.alloc, true, f.poolOptions("dummy_bitmap")...)
		default:
			p, err = NewBucketsBitmapPool(c.Params, f.alloc, f.poolOptions("buckets_bitmap")...)
		}
		if err != nil {
			return nil, err
		}
		f.register(string(c.Type)+"_bitmap", p)
		return p, nil
	})
}

// NewOutputStream starts a pooled byte buffer stream on the memory chunk
// pool.
func (f *Factory) NewOutputStream(initialCapacity int) (*PooledByteBufferOutputStream, error) {
	p, err := f.MemoryChunkPool()
	if err != nil {
		return nil, err
	}
	return NewPooledByteBufferOutputStream(p, initialCapacity)
}

// Stats returns snapshots of the bucketed pools built so far.
func (f *Factory) Stats() []Stats {
	var out []Stats
	if p, ok := f.byteArray.peek(); ok {
		out = append(out, p.Stats())
	}
	if p, ok := f.memoryChunk.peek(); ok {
		out = append(out, p.Stats())
	}
	if p, ok := f.bitmapPool.peek(); ok {
		if b, ok := p.(*BucketsBitmapPool); ok {
			out = append(out, b.Stats())
		}
	}
	return out
}
