// Package pool implements the pooled memory used by an image pipeline:
// bucketed pools of byte arrays, off-heap memory chunks and bitmaps, an
// LRU pool for bitmaps that do not bucket cleanly, and the buffers built
// on top of them.
//
// # Architecture
//
// BasePool[V] is the engine. It maps each requested size to a size class
// (the bucketed size), keeps a Bucket per class and serves Get from the
// bucket's free list before allocating. Resource-specific behavior comes
// from a Hooks[V] implementation:
//
//   - ByteArrayPool: heap []byte, smallest configured bucket that fits
//   - MemoryChunkPool: *nativemem.Chunk, mmap-backed, freed by Close
//   - BucketsBitmapPool: *bitmap.Bitmap, one bucket per allocation size
//
// LruBucketsPoolBackend and LruBitmapPool cover resources keyed by exact
// size with global LRU eviction. SingleByteArrayPool is the degenerate
// pool of one array for serialized work.
//
// # Capacity
//
// Each BasePool tracks used bytes (values handed out) and free bytes
// (values in free lists) against two caps from PoolParams:
//
//   - Soft cap: once used plus free passes it, idle values are trimmed and
//     released values are freed instead of pooled.
//   - Hard cap: an allocation that would push used past it fails with
//     ErrPoolSizeViolation, so callers can skip caching instead.
//
// # Trimming
//
// Every pool implements memory.Trimmable. A memory.Registry fans trim
// levels out to registered pools; bucketed pools keep (1 - ratio) of
// their free bytes, evicting the largest size classes first, and drop
// everything at ratio 1. Factory registers each pool it builds.
//
// # Usage
//
//	registry := memory.NewRegistry()
//	factory, err := pool.NewFactory(pool.DefaultFactoryConfig(512*pool.MiB), registry)
//	if err != nil {
//	    return err
//	}
//	chunks, err := factory.MemoryChunkPool()
//	if err != nil {
//	    return err
//	}
//
//	chunk, err := chunks.Get(64 * pool.KiB)
//	if err != nil {
//	    return err
//	}
//	ref := references.Of[*nativemem.Chunk](chunk, chunks)
//	defer ref.Close()
//
// # Thread Safety
//
// All pools are safe for concurrent use. A BasePool serializes Get,
// Release and trims behind one mutex, with allocation and freeing done
// while it is held.
package pool
