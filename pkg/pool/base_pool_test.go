package pool

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/ajitpratap0/imagepool/pkg/memory"
	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// evenHooks allocates byte slices rounded up to the next even size.
type evenHooks struct {
	mu       sync.Mutex
	freed    int
	reusable bool
	allocErr error
}

func (h *evenHooks) Alloc(bucketedSize int) ([]byte, error) {
	if h.allocErr != nil {
		return nil, h.allocErr
	}
	return make([]byte, bucketedSize), nil
}

func (h *evenHooks) Free([]byte) {
	h.mu.Lock()
	h.freed++
	h.mu.Unlock()
}

func (h *evenHooks) IsReusable([]byte) bool { return h.reusable }

func (h *evenHooks) BucketedSize(requestSize int) (int, error) {
	if requestSize <= 0 {
		return 0, invalidSize(requestSize)
	}
	if requestSize%2 == 1 {
		return requestSize + 1, nil
	}
	return requestSize, nil
}

func (h *evenHooks) BucketedSizeForValue(v []byte) int { return cap(v) }

func (h *evenHooks) SizeInBytes(bucketedSize int) int { return bucketedSize }

func (h *evenHooks) Freed() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.freed
}

// recordingStats counts tracker callbacks.
type recordingStats struct {
	mu       sync.Mutex
	reuse    int
	alloc    int
	free     int
	release  int
	trimmed  int
	trims    int
	softCaps int
	hardCaps int
}

func (r *recordingStats) OnValueReuse(int, int)   { r.mu.Lock(); r.reuse++; r.mu.Unlock() }
func (r *recordingStats) OnAlloc(int, int)        { r.mu.Lock(); r.alloc++; r.mu.Unlock() }
func (r *recordingStats) OnFree(int, int)         { r.mu.Lock(); r.free++; r.mu.Unlock() }
func (r *recordingStats) OnValueRelease(int, int) { r.mu.Lock(); r.release++; r.mu.Unlock() }
func (r *recordingStats) OnTrim(_, _, count int) {
	r.mu.Lock()
	r.trimmed += count
	r.trims++
	r.mu.Unlock()
}
func (r *recordingStats) OnSoftCapReached()       { r.mu.Lock(); r.softCaps++; r.mu.Unlock() }
func (r *recordingStats) OnHardCapReached()       { r.mu.Lock(); r.hardCaps++; r.mu.Unlock() }

func newTestPool(t *testing.T, softCap, hardCap int, buckets map[int]int, opts ...Option) (*BasePool[[]byte], *evenHooks) {
	t.Helper()
	params, err := NewPoolParams(softCap, hardCap, buckets)
	require.NoError(t, err)
	hooks := &evenHooks{reusable: true}
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	p, err := NewBasePool[[]byte]("test", hooks, params, opts...)
	require.NoError(t, err)
	return p, hooks
}

func bucketFree(s Stats, size int) (inUse, free int) {
	for _, b := range s.Buckets {
		if b.BucketedSize == size {
			return b.InUse, b.Free
		}
	}
	return -1, -1
}

func TestBucketedSizeProperties(t *testing.T) {
	p, _ := newTestPool(t, 10, 14, nil)
	for s := 1; s <= 64; s++ {
		b, err := p.BucketedSize(s)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, b, s)
		again, err := p.BucketedSize(b)
		require.NoError(t, err)
		assert.Equal(t, b, again, "size %d", s)
	}
}

func TestInvalidSize(t *testing.T) {
	p, _ := newTestPool(t, 10, 14, nil)
	for _, s := range []int{0, -1, -100} {
		_, err := p.Get(s)
		assert.ErrorIs(t, err, ErrInvalidSize)
		_, err = p.BucketedSize(s)
		assert.ErrorIs(t, err, ErrInvalidSize)
	}
	assert.Zero(t, p.Stats().UsedCount)
}

func TestGetRejectsOverflowingBucketedSize(t *testing.T) {
	p, hooks := newTestPool(t, 10, 14, nil)

	_, err := p.Get(math.MaxInt)
	assert.ErrorIs(t, err, ErrInvalidSize)
	_, err = p.BucketedSize(math.MaxInt)
	assert.ErrorIs(t, err, ErrInvalidSize)

	s := p.Stats()
	assert.Empty(t, s.Buckets, "no bucket is created for a rejected size")
	assert.Zero(t, s.UsedCount)
	assert.Zero(t, hooks.Freed())

	v, err := p.Get(3)
	require.NoError(t, err)
	assert.Len(t, v, 4)
}

func TestGetAllocAndReuse(t *testing.T) {
	p, _ := newTestPool(t, 10, 14, nil)

	b1, err := p.Get(1)
	require.NoError(t, err)
	assert.Len(t, b1, 2)

	s := p.Stats()
	assert.Equal(t, 2, s.UsedBytes)
	assert.Equal(t, 1, s.UsedCount)
	assert.Equal(t, 0, s.FreeBytes)

	p.Release(b1)
	s = p.Stats()
	assert.Equal(t, 0, s.UsedBytes)
	assert.Equal(t, 2, s.FreeBytes)
	assert.Equal(t, 1, s.FreeCount)

	b2, err := p.Get(1)
	require.NoError(t, err)
	assert.Same(t, &b1[0], &b2[0])

	s = p.Stats()
	assert.Equal(t, 2, s.UsedBytes)
	assert.Equal(t, 0, s.FreeBytes)
	assert.Equal(t, 1, s.UsedCount)
	assert.Equal(t, 0, s.FreeCount)
}

func TestReuseIdentity(t *testing.T) {
	p, _ := newTestPool(t, 100, 100, nil)
	for _, n := range []int{1, 2, 7, 8, 33} {
		a, err := p.Get(n)
		require.NoError(t, err)
		p.Release(a)
		b, err := p.Get(n)
		require.NoError(t, err)
		assert.Same(t, &a[0], &b[0], "size %d", n)
		p.Release(b)
	}
}

func TestTrimToSizeEvictsLargestFirst(t *testing.T) {
	p, _ := newTestPool(t, 100, 100, map[int]int{2: 2, 4: 2, 6: 2})

	b2, err := p.Get(2)
	require.NoError(t, err)
	extra, err := p.Get(2)
	require.NoError(t, err)
	b4, err := p.Get(4)
	require.NoError(t, err)
	b6, err := p.Get(6)
	require.NoError(t, err)
	p.Release(b2)
	p.Release(b4)
	p.Release(b6)

	s := p.Stats()
	require.Equal(t, 12, s.FreeBytes)
	require.Equal(t, 2, s.UsedBytes)

	p.TrimToSize(8)
	s = p.Stats()
	assert.Equal(t, 6, s.FreeBytes)
	assert.Equal(t, 2, s.UsedBytes)
	_, free6 := bucketFree(s, 6)
	assert.Equal(t, 0, free6)
	_, free4 := bucketFree(s, 4)
	assert.Equal(t, 1, free4)
	inUse2, free2 := bucketFree(s, 2)
	assert.Equal(t, 1, inUse2)
	assert.Equal(t, 1, free2)

	p.Release(extra)
}

func TestTrimToSizeRemovesWholeValuesPerBucket(t *testing.T) {
	stats := &recordingStats{}
	p, hooks := newTestPool(t, 100, 100, map[int]int{4: 4}, WithStatsTracker(stats))

	values := make([][]byte, 3)
	for i := range values {
		v, err := p.Get(4)
		require.NoError(t, err)
		values[i] = v
	}
	for _, v := range values {
		p.Release(v)
	}
	require.Equal(t, 12, p.Stats().FreeBytes)

	p.TrimToSize(5)
	s := p.Stats()
	assert.Equal(t, 4, s.FreeBytes, "frees ceil(7/4) values")
	assert.Equal(t, 1, s.FreeCount)
	assert.Equal(t, 2, hooks.Freed())
	assert.Equal(t, 2, stats.trimmed)
	assert.Equal(t, 1, stats.trims, "one trim callback per bucket")
}

func TestTrimToNothing(t *testing.T) {
	p, hooks := newTestPool(t, 100, 100, map[int]int{2: 2, 4: 2})
	a, _ := p.Get(2)
	b, _ := p.Get(4)
	kept, _ := p.Get(4)
	p.Release(a)
	p.Release(b)

	p.TrimToNothing()
	s := p.Stats()
	assert.Equal(t, 0, s.FreeBytes)
	assert.Equal(t, 0, s.FreeCount)
	assert.Equal(t, 4, s.UsedBytes)
	assert.Equal(t, 2, hooks.Freed())
	inUse4, _ := bucketFree(s, 4)
	assert.Equal(t, 1, inUse4)

	p.Release(kept)
	assert.Equal(t, 4, p.Stats().FreeBytes)
}

func TestAllocTrimsToSoftCap(t *testing.T) {
	p, _ := newTestPool(t, 10, 10, map[int]int{2: 2, 4: 2, 6: 2})

	b, err := p.Get(2)
	require.NoError(t, err)
	p.Release(b)
	b, err = p.Get(6)
	require.NoError(t, err)
	p.Release(b)

	_, err = p.Get(3)
	require.NoError(t, err)

	s := p.Stats()
	assert.Equal(t, 2, s.FreeBytes)
	assert.Equal(t, 4, s.UsedBytes)
	_, free2 := bucketFree(s, 2)
	_, free6 := bucketFree(s, 6)
	assert.Equal(t, 1, free2)
	assert.Equal(t, 0, free6)
	inUse4, _ := bucketFree(s, 4)
	assert.Equal(t, 1, inUse4)
}

func TestHardCapViolation(t *testing.T) {
	stats := &recordingStats{}
	p, _ := newTestPool(t, 10, 14, nil, WithStatsTracker(stats))

	_, err := p.Get(8)
	require.NoError(t, err)
	_, err = p.Get(8)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPoolSizeViolation)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeCapacity))
	hard, ok := poolerrors.DetailOf(err, "hard_cap")
	require.True(t, ok)
	assert.Equal(t, 14, hard)
	assert.Equal(t, 1, stats.hardCaps)
	assert.Equal(t, 8, p.Stats().UsedBytes)
}

func TestIgnoreHardCap(t *testing.T) {
	p, _ := newTestPool(t, 10, 14, nil, WithIgnoreHardCap(true))
	_, err := p.Get(8)
	require.NoError(t, err)
	_, err = p.Get(8)
	require.NoError(t, err)
	assert.Equal(t, 16, p.Stats().UsedBytes)
}

func TestSoftCapFreesOnRelease(t *testing.T) {
	stats := &recordingStats{}
	p, hooks := newTestPool(t, 10, 14, nil, WithStatsTracker(stats))

	a, err := p.Get(6)
	require.NoError(t, err)
	b, err := p.Get(6)
	require.NoError(t, err)

	p.Release(a)
	s := p.Stats()
	assert.Equal(t, 0, s.FreeBytes)
	assert.Equal(t, 6, s.UsedBytes)
	assert.Equal(t, 1, hooks.Freed())
	assert.Positive(t, stats.softCaps)

	p.Release(b)
	s = p.Stats()
	assert.Equal(t, 6, s.FreeBytes)
	assert.Equal(t, 0, s.UsedBytes)
}

func TestReleaseOverMaxLengthFrees(t *testing.T) {
	p, hooks := newTestPool(t, 100, 100, map[int]int{2: 2})
	a, _ := p.Get(2)
	b, _ := p.Get(2)
	c, _ := p.Get(2)
	s := p.Stats()
	assert.Equal(t, 6, s.UsedBytes)
	assert.Equal(t, 3, s.UsedCount)

	p.Release(a)
	s = p.Stats()
	assert.Equal(t, 4, s.UsedBytes)
	assert.Equal(t, 2, s.UsedCount)
	assert.Equal(t, 0, s.FreeBytes)
	assert.Equal(t, 1, hooks.Freed())

	p.Release(b)
	p.Release(c)
	s = p.Stats()
	assert.Equal(t, 0, s.UsedBytes)
	assert.Equal(t, 4, s.FreeBytes)
	inUse, free := bucketFree(s, 2)
	assert.Equal(t, 0, inUse)
	assert.Equal(t, 2, free)
}

func TestReleaseNonReusableFrees(t *testing.T) {
	p, hooks := newTestPool(t, 100, 100, nil)
	a, _ := p.Get(4)
	hooks.reusable = false
	p.Release(a)
	s := p.Stats()
	assert.Equal(t, 0, s.UsedBytes)
	assert.Equal(t, 0, s.FreeBytes)
	assert.Equal(t, 1, hooks.Freed())
}

func TestReleaseOutsideBuckets(t *testing.T) {
	p, hooks := newTestPool(t, 10, 10, map[int]int{2: 1, 4: 1, 6: 1})
	_, err := p.Get(2)
	require.NoError(t, err)
	b1, err := p.Get(7)
	require.NoError(t, err)
	s := p.Stats()
	assert.Equal(t, 10, s.UsedBytes)
	assert.Equal(t, 2, s.UsedCount)

	p.Release(b1)
	s = p.Stats()
	assert.Equal(t, 2, s.UsedBytes)
	assert.Equal(t, 1, s.UsedCount)
	assert.Equal(t, 0, s.FreeBytes)

	p.Release(make([]byte, 3))
	s = p.Stats()
	assert.Equal(t, 2, s.UsedBytes)
	assert.Equal(t, 0, s.FreeBytes)
	assert.Equal(t, 2, hooks.Freed())
}

func TestDoubleReleaseIsIgnored(t *testing.T) {
	p, hooks := newTestPool(t, 100, 100, nil)
	a, _ := p.Get(4)
	p.Release(a)
	p.Release(a)
	s := p.Stats()
	assert.Equal(t, 4, s.FreeBytes)
	assert.Equal(t, 1, s.FreeCount)
	assert.Equal(t, 0, hooks.Freed())

	b, _ := p.Get(4)
	c, _ := p.Get(4)
	assert.NotSame(t, &b[0], &c[0])
}

func TestAllocErrorLeavesCountersUnchanged(t *testing.T) {
	p, hooks := newTestPool(t, 100, 100, map[int]int{4: 2})
	boom := errors.New("out of memory")
	hooks.allocErr = boom

	_, err := p.Get(4)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.True(t, poolerrors.IsType(err, poolerrors.ErrorTypeAllocation))
	s := p.Stats()
	assert.Equal(t, 0, s.UsedBytes)
	inUse, _ := bucketFree(s, 4)
	assert.Equal(t, 0, inUse)
}

func TestTrimByType(t *testing.T) {
	tests := []struct {
		name      string
		trimType  memory.TrimType
		wantBytes int
	}{
		{"heap limit keeps half", memory.TrimOnCloseToHeapLimit, 4},
		{"foreground keeps half", memory.TrimOnSystemLowMemoryWhileInForeground, 4},
		{"critical keeps half", memory.TrimOnSystemMemoryCriticallyLowWhileInForeground, 4},
		{"background drops all", memory.TrimOnSystemLowMemoryWhileInBackground, 0},
		{"backgrounded drops all", memory.TrimOnAppBackgrounded, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestPool(t, 100, 100, map[int]int{2: 4, 4: 4})
			var vals [][]byte
			for _, n := range []int{2, 2, 4} {
				v, err := p.Get(n)
				require.NoError(t, err)
				vals = append(vals, v)
			}
			for _, v := range vals {
				p.Release(v)
			}
			require.Equal(t, 8, p.Stats().FreeBytes)

			p.Trim(tt.trimType)
			assert.Equal(t, tt.wantBytes, p.Stats().FreeBytes)
		})
	}
}

func TestStatsTrackerCallbacks(t *testing.T) {
	stats := &recordingStats{}
	p, _ := newTestPool(t, 100, 100, nil, WithStatsTracker(stats))

	a, _ := p.Get(2)
	p.Release(a)
	a, _ = p.Get(2)
	p.Release(a)
	p.TrimToNothing()

	assert.Equal(t, 1, stats.alloc)
	assert.Equal(t, 1, stats.reuse)
	assert.Equal(t, 2, stats.release)
	assert.Equal(t, 1, stats.trimmed)
}

func TestConcurrentGetRelease(t *testing.T) {
	p, _ := newTestPool(t, 1<<20, 1<<20, map[int]int{2: 64, 4: 64, 8: 64})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				v, err := p.Get(2 << ((g + i) % 3))
				if err != nil {
					t.Error(err)
					return
				}
				p.Release(v)
			}
		}(g)
	}
	wg.Wait()

	s := p.Stats()
	assert.Equal(t, 0, s.UsedBytes)
	assert.Equal(t, 0, s.UsedCount)
	total := 0
	for _, b := range s.Buckets {
		assert.Equal(t, 0, b.InUse)
		total += b.Free * b.SizeInBytes
	}
	assert.Equal(t, s.FreeBytes, total)
}

func TestNewBasePoolRejectsBadParams(t *testing.T) {
	_, err := NewBasePool[[]byte]("bad", &evenHooks{}, PoolParams{MaxSizeSoftCap: 10, MaxSizeHardCap: 5})
	assert.ErrorIs(t, err, ErrInvalidParams)
}
