package pool

import (
	"sort"
	"sync"

	"github.com/ajitpratap0/imagepool/pkg/logger"
	"github.com/ajitpratap0/imagepool/pkg/memory"
	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
	"go.uber.org/zap"
)

// Hooks supply the resource-specific half of a BasePool.
type Hooks[V any] interface {
	// Alloc creates a value of the given bucketed size.
	Alloc(bucketedSize int) (V, error)
	// Free physically releases a value.
	Free(value V)
	// IsReusable reports whether a released value may be pooled.
	IsReusable(value V) bool
	// BucketedSize maps a requested size to its size class. It fails with
	// ErrInvalidSize for sizes <= 0.
	BucketedSize(requestSize int) (int, error)
	// BucketedSizeForValue returns the size class of an existing value.
	BucketedSizeForValue(value V) int
	// SizeInBytes returns the memory cost of one value of a size class.
	SizeInBytes(bucketedSize int) int
}

// Option configures a pool.
type Option func(*options)

type options struct {
	stats         StatsTracker
	log           *zap.Logger
	ignoreHardCap bool
}

// WithStatsTracker sets the tracker that observes pool activity.
func WithStatsTracker(t StatsTracker) Option {
	return func(o *options) {
		o.stats = t
	}
}

// WithLogger sets the pool's logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.log = l
	}
}

// WithIgnoreHardCap lets allocations proceed past the hard cap.
func WithIgnoreHardCap(ignore bool) Option {
	return func(o *options) {
		o.ignoreHardCap = ignore
	}
}

func buildOptions(name string, opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.stats == nil {
		o.stats = NoOpStatsTracker{}
	}
	if o.log == nil {
		o.log = logger.Get()
	}
	o.log = o.log.With(zap.String("pool", name))
	return o
}

// BasePool is a bucketed pool of values of type V. Each size class has a
// Bucket; Get serves from its free list before allocating, and Release
// returns values to it. One mutex guards the buckets, the in-use set and
// the used and free counters, and Hooks run with it held.
//
// Used bytes count values handed out; free bytes count values sitting in
// free lists. Used plus free may pass the soft cap only until the next
// trim, and used may never pass the hard cap unless the pool ignores it.
type BasePool[V any] struct {
	name          string
	hooks         Hooks[V]
	params        PoolParams
	stats         StatsTracker
	log           *zap.Logger
	ignoreHardCap bool

	mu              sync.Mutex
	buckets         map[int]*Bucket[V]
	allowNewBuckets bool
	inUse           map[any]struct{}
	used            Counter
	free            Counter
}

// NewBasePool creates a pool. Buckets listed in params are created up
// front; with an empty table they are created on first use.
func NewBasePool[V any](name string, hooks Hooks[V], params PoolParams, opts ...Option) (*BasePool[V], error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	o := buildOptions(name, opts)
	p := &BasePool[V]{
		name:            name,
		hooks:           hooks,
		params:          params,
		stats:           o.stats,
		log:             o.log,
		ignoreHardCap:   o.ignoreHardCap,
		buckets:         make(map[int]*Bucket[V], len(params.BucketSizes)),
		allowNewBuckets: len(params.BucketSizes) == 0,
		inUse:           make(map[any]struct{}),
	}
	for size, maxLength := range params.BucketSizes {
		p.buckets[size] = NewBucket[V](hooks.SizeInBytes(size), maxLength, 0)
	}
	return p, nil
}

// Name returns the pool name used in logs and metrics.
func (p *BasePool[V]) Name() string {
	return p.name
}

// Params returns the pool configuration.
func (p *BasePool[V]) Params() PoolParams {
	return p.params
}

// BucketedSize maps a requested size to its size class.
func (p *BasePool[V]) BucketedSize(requestSize int) (int, error) {
	if requestSize <= 0 {
		return 0, invalidSize(requestSize)
	}
	bucketed, err := p.hooks.BucketedSize(requestSize)
	if err != nil {
		return 0, err
	}
	if bucketed <= 0 {
		return 0, invalidSize(bucketed)
	}
	return bucketed, nil
}

// Get returns a value for at least size bytes, reusing a pooled one when
// its bucket has any. It fails with ErrInvalidSize for size <= 0 and with
// ErrPoolSizeViolation when a new value would breach the hard cap.
func (p *BasePool[V]) Get(size int) (V, error) {
	var zero V
	bucketedSize, err := p.BucketedSize(size)
	if err != nil {
		return zero, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensurePoolSizeInvariant()

	bucket := p.bucketFor(bucketedSize)
	if bucket != nil {
		if v, ok := bucket.Get(); ok {
			p.inUse[identity(v)] = struct{}{}
			valueSize := p.hooks.BucketedSizeForValue(v)
			n := p.hooks.SizeInBytes(valueSize)
			p.used.Increment(n)
			p.free.Decrement(n)
			p.stats.OnValueReuse(valueSize, n)
			p.log.Debug("get (reuse)", zap.Int("bucketed_size", valueSize))
			return v, nil
		}
	}

	n := p.hooks.SizeInBytes(bucketedSize)
	if !p.canAllocate(n) {
		return zero, poolerrors.New(poolerrors.ErrorTypeCapacity, ErrPoolSizeViolation.Message).
			WithDetail("hard_cap", p.params.MaxSizeHardCap).
			WithDetail("used_bytes", p.used.NumBytes).
			WithDetail("free_bytes", p.free.NumBytes).
			WithDetail("requested_bytes", n)
	}

	v, err := p.hooks.Alloc(bucketedSize)
	if err != nil {
		return zero, poolerrors.Wrap(err, poolerrors.ErrorTypeAllocation, "failed to allocate pooled value").
			WithDetail("bucketed_size", bucketedSize)
	}
	p.used.Increment(n)
	if bucket != nil {
		bucket.IncrementInUseCount()
	}
	p.inUse[identity(v)] = struct{}{}
	p.trimToSoftCap()
	p.stats.OnAlloc(bucketedSize, n)
	p.log.Debug("get (alloc)", zap.Int("bucketed_size", bucketedSize))
	return v, nil
}

// Release returns a value obtained from Get. The value is pooled when its
// bucket has room, the pool is under its soft cap and the value is still
// reusable; otherwise it is freed. Values this pool did not hand out are
// freed without error, except ones already pooled, which are left alone.
func (p *BasePool[V]) Release(value V) {
	bucketedSize := p.hooks.BucketedSizeForValue(value)
	n := p.hooks.SizeInBytes(bucketedSize)
	id := identity(value)

	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.buckets[bucketedSize]
	if _, ok := p.inUse[id]; !ok {
		if bucket != nil && bucket.contains(id) {
			p.log.Warn("release of pooled value ignored", zap.Int("bucketed_size", bucketedSize))
			return
		}
		p.log.Warn("release called on unknown value",
			zap.Int("bucketed_size", bucketedSize),
			zap.Error(ErrInvalidValue))
		p.hooks.Free(value)
		p.stats.OnFree(bucketedSize, n)
		return
	}
	delete(p.inUse, id)

	if bucket == nil || p.isMaxSizeSoftCapExceeded() || !p.hooks.IsReusable(value) {
		if bucket != nil {
			bucket.DecrementInUseCount()
		}
		p.freeUsed(value, bucketedSize, n)
		return
	}
	if !bucket.Release(value) {
		p.freeUsed(value, bucketedSize, n)
		return
	}
	p.free.Increment(n)
	p.used.Decrement(n)
	p.stats.OnValueRelease(bucketedSize, n)
	p.log.Debug("release (reuse)", zap.Int("bucketed_size", bucketedSize))
}

func (p *BasePool[V]) freeUsed(value V, bucketedSize, n int) {
	p.log.Debug("release (free)", zap.Int("bucketed_size", bucketedSize))
	p.hooks.Free(value)
	p.used.Decrement(n)
	p.stats.OnFree(bucketedSize, n)
}

// TrimToSize frees pooled values, largest size class first, until free
// bytes are at most targetFreeBytes or nothing is pooled. Values in use
// are not affected.
func (p *BasePool[V]) TrimToSize(targetFreeBytes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trimToSize(targetFreeBytes)
}

// TrimToNothing frees every pooled value.
func (p *BasePool[V]) TrimToNothing() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trimToSize(0)
	if p.free.Count != 0 || p.free.NumBytes != 0 {
		p.log.Error("free counter not empty after trim",
			zap.Int("free_count", p.free.Count),
			zap.Int("free_bytes", p.free.NumBytes))
		p.free.Reset()
	}
}

// Trim frees pooled memory in proportion to the trim level: everything
// at ratio 1, otherwise enough to keep (1 - ratio) of the free bytes.
func (p *BasePool[V]) Trim(trimType memory.TrimType) {
	ratio := trimType.SuggestedTrimRatio()
	if ratio >= 1 {
		p.TrimToNothing()
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trimToSize(int(float64(p.free.NumBytes) * (1 - ratio)))
}

// Stats returns a snapshot of the pool's counters and buckets.
func (p *BasePool[V]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Name:      p.name,
		SoftCap:   p.params.MaxSizeSoftCap,
		HardCap:   p.params.MaxSizeHardCap,
		UsedCount: p.used.Count,
		UsedBytes: p.used.NumBytes,
		FreeCount: p.free.Count,
		FreeBytes: p.free.NumBytes,
		Buckets:   make([]BucketStats, 0, len(p.buckets)),
	}
	for _, size := range p.sortedBucketSizes() {
		b := p.buckets[size]
		s.Buckets = append(s.Buckets, BucketStats{
			BucketedSize: size,
			SizeInBytes:  b.ItemSize,
			MaxLength:    b.MaxLength,
			InUse:        b.InUseCount(),
			Free:         b.FreeListSize(),
		})
	}
	return s
}

// eachFree calls fn on every pooled value with the lock held.
func (p *BasePool[V]) eachFree(fn func(V)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range p.buckets {
		for _, v := range b.free {
			fn(v)
		}
	}
}

func (p *BasePool[V]) bucketFor(bucketedSize int) *Bucket[V] {
	b, ok := p.buckets[bucketedSize]
	if ok || !p.allowNewBuckets {
		return b
	}
	b = NewBucket[V](p.hooks.SizeInBytes(bucketedSize), 0, 0)
	p.buckets[bucketedSize] = b
	return b
}

func (p *BasePool[V]) sortedBucketSizes() []int {
	sizes := make([]int, 0, len(p.buckets))
	for size := range p.buckets {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)
	return sizes
}

func (p *BasePool[V]) canAllocate(n int) bool {
	if p.ignoreHardCap {
		return true
	}
	hardCap := p.params.MaxSizeHardCap
	if n > hardCap-p.used.NumBytes {
		p.stats.OnHardCapReached()
		return false
	}
	softCap := p.params.MaxSizeSoftCap
	if n > softCap-(p.used.NumBytes+p.free.NumBytes) {
		p.trimToSize(max(0, softCap-n-p.used.NumBytes))
	}
	if n > hardCap-(p.used.NumBytes+p.free.NumBytes) {
		p.stats.OnHardCapReached()
		return false
	}
	return true
}

func (p *BasePool[V]) isMaxSizeSoftCapExceeded() bool {
	exceeded := p.used.NumBytes+p.free.NumBytes > p.params.MaxSizeSoftCap
	if exceeded {
		p.stats.OnSoftCapReached()
	}
	return exceeded
}

func (p *BasePool[V]) trimToSoftCap() {
	if p.isMaxSizeSoftCapExceeded() {
		p.trimToSize(max(0, p.params.MaxSizeSoftCap-p.used.NumBytes))
	}
}

// trimToSize must be called with mu held.
func (p *BasePool[V]) trimToSize(targetFreeBytes int) {
	bytesToFree := p.free.NumBytes - targetFreeBytes
	if bytesToFree <= 0 {
		return
	}
	p.log.Debug("trim",
		zap.Int("target_free_bytes", targetFreeBytes),
		zap.Int("used_bytes", p.used.NumBytes),
		zap.Int("free_bytes", p.free.NumBytes))

	sizes := p.sortedBucketSizes()
	for i := len(sizes) - 1; i >= 0 && bytesToFree > 0; i-- {
		b := p.buckets[sizes[i]]
		count := 1
		if b.ItemSize > 0 {
			count = (bytesToFree + b.ItemSize - 1) / b.ItemSize
		}
		evicted := b.RemoveFromFreeList(count)
		for _, v := range evicted {
			p.hooks.Free(v)
			p.free.Decrement(b.ItemSize)
			bytesToFree -= b.ItemSize
		}
		if len(evicted) > 0 {
			p.stats.OnTrim(sizes[i], len(evicted)*b.ItemSize, len(evicted))
		}
	}
}

// ensurePoolSizeInvariant checks that nothing is pooled while the pool is
// over its soft cap.
func (p *BasePool[V]) ensurePoolSizeInvariant() {
	if p.used.NumBytes+p.free.NumBytes > p.params.MaxSizeSoftCap && p.free.NumBytes != 0 {
		p.log.Error("pool size invariant violated",
			zap.Int("soft_cap", p.params.MaxSizeSoftCap),
			zap.Int("used_bytes", p.used.NumBytes),
			zap.Int("free_bytes", p.free.NumBytes))
	}
}
