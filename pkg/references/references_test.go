package references

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReleaser struct {
	calls    atomic.Int32
	released []string
	mu       sync.Mutex
}

func (c *countingReleaser) Release(v string) {
	c.calls.Add(1)
	c.mu.Lock()
	c.released = append(c.released, v)
	c.mu.Unlock()
}

func TestOfStartsWithOneReference(t *testing.T) {
	ref := Of("value", &countingReleaser{})
	assert.Equal(t, int32(1), ref.RefCountTestOnly())
	assert.True(t, IsValid(ref))

	v, err := ref.Get()
	require.NoError(t, err)
	assert.Equal(t, "value", v)
}

func TestCloneSharesCell(t *testing.T) {
	rel := &countingReleaser{}
	ref := Of("value", rel)
	clone, err := ref.Clone()
	require.NoError(t, err)

	assert.Same(t, ref.UnderlyingReferenceTestOnly(), clone.UnderlyingReferenceTestOnly())
	assert.Equal(t, int32(2), ref.RefCountTestOnly())

	require.NoError(t, ref.Close())
	assert.Equal(t, int32(0), rel.calls.Load())
	assert.True(t, IsValid(clone))

	require.NoError(t, clone.Close())
	assert.Equal(t, int32(1), rel.calls.Load())
	assert.Equal(t, []string{"value"}, rel.released)
}

func TestRefCountConservation(t *testing.T) {
	const k = 5
	rel := &countingReleaser{}
	ref := Of("v", rel)

	handles := []*CloseableReference[string]{ref}
	for i := 0; i < k; i++ {
		c, err := ref.Clone()
		require.NoError(t, err)
		handles = append(handles, c)
	}
	for _, h := range handles {
		require.NoError(t, h.Close())
	}
	assert.Equal(t, int32(1), rel.calls.Load())

	// further closes are no-ops
	for _, h := range handles {
		require.NoError(t, h.Close())
	}
	assert.Equal(t, int32(1), rel.calls.Load())
	assert.Equal(t, int32(0), ref.RefCountTestOnly())
}

func TestClosedHandleAccessorsFail(t *testing.T) {
	ref := Of("v", &countingReleaser{})
	require.NoError(t, ref.Close())

	_, err := ref.Get()
	assert.True(t, errors.Is(err, ErrClosedReference))

	_, err = ref.Clone()
	assert.True(t, errors.Is(err, ErrClosedReference))

	assert.Nil(t, ref.CloneOrNil())
	assert.False(t, IsValid(ref))
	assert.Panics(t, func() { ref.MustGet() })
}

func TestIsValidNil(t *testing.T) {
	assert.False(t, IsValid[string](nil))
	assert.Nil(t, CloneOrNil[string](nil))
}

func TestCloseSafelySkipsNil(t *testing.T) {
	rel := &countingReleaser{}
	a := Of("a", rel)
	b := Of("b", rel)
	CloseSafely(a, nil, b)
	assert.Equal(t, int32(2), rel.calls.Load())
}

func TestSharedReferenceOverDecrementPanics(t *testing.T) {
	rel := &countingReleaser{}
	s := NewSharedReference("v", rel)
	s.DeleteReference()
	assert.Equal(t, int32(1), rel.calls.Load())
	assert.Panics(t, func() { s.DeleteReference() })
	assert.Equal(t, int32(1), rel.calls.Load())
}

func TestSharedReferenceAddAfterZeroFails(t *testing.T) {
	s := NewSharedReference("v", NoOpReleaser[string]())
	s.DeleteReference()
	assert.ErrorIs(t, s.AddReference(), ErrInvalidReference)
	assert.False(t, s.IsValid())
}

func TestConcurrentCloneAndClose(t *testing.T) {
	rel := &countingReleaser{}
	ref := Of("v", rel)

	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		c, err := ref.Clone()
		require.NoError(t, err)
		wg.Add(1)
		go func(c *CloseableReference[string]) {
			defer wg.Done()
			inner, err := c.Clone()
			if err == nil {
				_ = inner.Close()
			}
			_ = c.Close()
			_ = c.Close()
		}(c)
	}
	wg.Wait()
	assert.Equal(t, int32(0), rel.calls.Load())
	require.NoError(t, ref.Close())
	assert.Equal(t, int32(1), rel.calls.Load())
}

func TestReleaserFunc(t *testing.T) {
	var got int
	ref := Of(7, ReleaserFunc[int](func(v int) { got = v }))
	require.NoError(t, ref.Close())
	assert.Equal(t, 7, got)
}

func TestLeakListenerClosesUnreachableHandle(t *testing.T) {
	leaked := make(chan string, 1)
	SetLeakListener(func(valueType string, _ int32) {
		select {
		case leaked <- valueType:
		default:
		}
	})
	defer SetLeakListener(nil)

	rel := &countingReleaser{}
	func() {
		_ = Of("leaky", rel)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for rel.calls.Load() == 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, int32(1), rel.calls.Load())
	assert.Equal(t, "string", <-leaked)
}
