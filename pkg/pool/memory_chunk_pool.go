package pool

import (
	"github.com/ajitpratap0/imagepool/pkg/logger"
	"github.com/ajitpratap0/imagepool/pkg/memory"
	"github.com/ajitpratap0/imagepool/pkg/nativemem"
	"go.uber.org/zap"
)

type memoryChunkHooks struct {
	bucketSizeClass
}

func (memoryChunkHooks) Alloc(bucketedSize int) (*nativemem.Chunk, error) {
	return nativemem.Allocate(bucketedSize)
}

func (memoryChunkHooks) Free(c *nativemem.Chunk) {
	if err := c.Close(); err != nil {
		logger.Error("failed to free memory chunk", zap.Uint64("chunk_id", c.ID()), zap.Error(err))
	}
}

func (memoryChunkHooks) IsReusable(c *nativemem.Chunk) bool { return !c.IsClosed() }

func (h memoryChunkHooks) BucketedSize(requestSize int) (int, error) {
	return h.bucketedSize(requestSize)
}

func (memoryChunkHooks) BucketedSizeForValue(c *nativemem.Chunk) int { return c.Size() }

func (memoryChunkHooks) SizeInBytes(bucketedSize int) int { return bucketedSize }

// MemoryChunkPool pools off-heap chunks by size class. A chunk closed by
// its user is freed on release instead of pooled.
type MemoryChunkPool struct {
	*BasePool[*nativemem.Chunk]
}

// NewMemoryChunkPool creates a memory chunk pool.
func NewMemoryChunkPool(params PoolParams, opts ...Option) (*MemoryChunkPool, error) {
	base, err := NewBasePool[*nativemem.Chunk]("memory_chunk", memoryChunkHooks{newBucketSizeClass(params)}, params, opts...)
	if err != nil {
		return nil, err
	}
	return &MemoryChunkPool{BasePool: base}, nil
}

// Trim frees pooled chunks like BasePool.Trim. Chunks that stay pooled
// after a partial trim have their pages discarded, so they no longer count
// against resident memory until they are written again.
func (p *MemoryChunkPool) Trim(trimType memory.TrimType) {
	p.BasePool.Trim(trimType)
	if trimType.SuggestedTrimRatio() >= 1 {
		return
	}
	p.eachFree(func(c *nativemem.Chunk) {
		if err := c.Discard(); err != nil {
			p.log.Warn("failed to discard pooled chunk", zap.Uint64("chunk_id", c.ID()), zap.Error(err))
		}
	})
}

// MinBufferSize returns the smallest chunk size the pool hands out.
func (p *MemoryChunkPool) MinBufferSize() int {
	if s := p.params.MinBucketSize; s > 0 {
		return s
	}
	return 1
}
