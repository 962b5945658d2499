// Package imagepool is a process-local pooled resource manager for image
// pipelines. It hands out reusable byte arrays, native memory chunks and
// bitmaps, takes them back deterministically, and gives idle memory back
// when the process comes under memory pressure.
//
// # Architecture
//
// Everything is built on one engine, pool.BasePool[V]: a mutex-guarded set
// of size-class buckets, each a LIFO free list with a max length, plus soft
// and hard caps on total bytes. Concrete pools plug in allocation, freeing
// and size quantization through pool.Hooks[V].
//
// Values that escape to several owners are wrapped in a reference-counted
// handle (references.CloseableReference) whose last Close hands the value
// back to its pool.
//
// Pools implement memory.Trimmable. A memory.Registry fans trim requests
// out to every registered pool, and memory.PressureMonitor raises those
// requests from system and Go heap memory samples.
//
// # Quick Start
//
//	cfg := config.New("decoder", 512)
//	registry := memory.NewRegistry()
//	factory, _ := pool.NewFactory(cfg.Pools, registry)
//
//	chunks, _ := factory.MemoryChunkPool()
//	chunk, _ := chunks.Get(64 * pool.KiB)
//	defer chunks.Release(chunk)
//
//	registry.Trim(ctx, memory.TrimOnAppBackgrounded)
//
// # Key Packages
//
//	pkg/pool          - BasePool engine, concrete pools, LRU bitmap pool, factory
//	pkg/references    - shared and closeable reference counting
//	pkg/memory        - trim types, trim registry, pressure monitor
//	pkg/nativemem     - mmap-backed memory chunks
//	pkg/bitmap        - bitmap values and pixel formats
//	pkg/compression   - codecs decoding into pooled buffers
//	pkg/config        - YAML configuration with env substitution
//	pkg/metrics       - Prometheus stats tracker
//	pkg/observability - OpenTelemetry tracing and pool gauges
//	pkg/logger        - zap global logger
//	pkg/poolerrors    - structured errors
//
// # Command Line
//
//	imagepool config show --max-memory-mb 256
//	imagepool bench --pool memory_chunk --workers 8
//	imagepool monitor --config imagepool.yaml
package imagepool
