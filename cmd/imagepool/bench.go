package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"runtime"
	"runtime/pprof"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/imagepool/pkg/compression"
	"github.com/ajitpratap0/imagepool/pkg/logger"
	"github.com/ajitpratap0/imagepool/pkg/memory"
	"github.com/ajitpratap0/imagepool/pkg/metrics"
	"github.com/ajitpratap0/imagepool/pkg/pool"
)

// Pool kinds the bench command can drive.
const (
	benchByteArray       = "byte_array"
	benchMemoryChunk     = "memory_chunk"
	benchBitmap          = "bitmap"
	benchSingleByteArray = "single_byte_array"
	benchStream          = "stream"
	benchCodec           = "codec"
)

type benchOptions struct {
	Pool       string
	Workers    int
	Iterations int
	MinSize    int
	MaxSize    int
	Seed       uint64
}

type benchResult struct {
	Pool         string        `json:"pool"`
	Workers      int           `json:"workers"`
	Operations   int64         `json:"operations"`
	Fallbacks    int64         `json:"fallbacks"`
	Duration     time.Duration `json:"duration_ns"`
	OpsPerSecond float64       `json:"ops_per_second"`
	Stats        []pool.Stats  `json:"stats"`
}

func newBenchCommand(v *viper.Viper) *cobra.Command {
	var (
		opts       benchOptions
		asJSON     bool
		cpuProfile string
		memProfile string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run a concurrent get/release workload against a pool",
		Long: `Run a concurrent get/release workload against one pool and report
throughput, hard cap fallbacks and the pool's final stats.

Pools: byte_array, memory_chunk, bitmap, single_byte_array, stream, codec.
The codec workload compresses each payload with the configured algorithm
and decodes it back into pooled chunks.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			factory, err := pool.NewFactory(cfg.Pools, memory.NewRegistry(),
				pool.WithStatsTrackerFactory(func(name string) pool.StatsTracker {
					return metrics.NewPoolStatsTracker(name)
				}),
			)
			if err != nil {
				return err
			}

			if cpuProfile != "" {
				stop, err := startCPUProfile(cpuProfile)
				if err != nil {
					return err
				}
				defer stop()
			}

			codec, err := compression.NewCodec(cfg.Compression)
			if err != nil {
				return err
			}
			res, err := runBench(cmd.Context(), factory, codec, opts)
			if err != nil {
				return err
			}

			if memProfile != "" {
				if err := writeHeapProfile(memProfile); err != nil {
					return err
				}
			}
			return printBenchResult(cmd.OutOrStdout(), res, asJSON)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Pool, "pool", benchByteArray, "Pool to exercise")
	f.IntVar(&opts.Workers, "workers", runtime.NumCPU(), "Concurrent workers")
	f.IntVar(&opts.Iterations, "iterations", 10000, "Get/release cycles per worker")
	f.IntVar(&opts.MinSize, "min-size", 1*pool.KiB, "Smallest request size in bytes")
	f.IntVar(&opts.MaxSize, "max-size", 64*pool.KiB, "Largest request size in bytes")
	f.Uint64Var(&opts.Seed, "seed", 1, "Seed for request sizes")
	f.BoolVar(&asJSON, "json", false, "Print the result as JSON")
	f.StringVar(&cpuProfile, "cpuprofile", "", "Write a CPU profile to this file")
	f.StringVar(&memProfile, "memprofile", "", "Write a heap profile to this file")
	return cmd
}

// benchOp performs one get/release cycle of size bytes.
type benchOp func(size int) error

func newBenchOp(factory *pool.Factory, codec *compression.Codec, kind string) (benchOp, func() []pool.Stats, error) {
	switch kind {
	case benchByteArray:
		p, err := factory.ByteArrayPool()
		if err != nil {
			return nil, nil, err
		}
		return func(size int) error {
			t := metrics.NewTimer("byte_array")
			b, err := p.Get(size)
			t.ObserveGet()
			if err != nil {
				return err
			}
			b[0] = 1
			p.Release(b)
			return nil
		}, factory.Stats, nil

	case benchMemoryChunk:
		p, err := factory.MemoryChunkPool()
		if err != nil {
			return nil, nil, err
		}
		return func(size int) error {
			t := metrics.NewTimer("memory_chunk")
			c, err := p.Get(size)
			t.ObserveGet()
			if err != nil {
				return err
			}
			if _, err := c.Write(0, []byte{1}); err != nil {
				return err
			}
			p.Release(c)
			return nil
		}, factory.Stats, nil

	case benchBitmap:
		p, err := factory.BitmapPool()
		if err != nil {
			return nil, nil, err
		}
		return func(size int) error {
			t := metrics.NewTimer("bitmap")
			b, err := p.Get(size)
			t.ObserveGet()
			if err != nil {
				return err
			}
			p.Release(b)
			return nil
		}, factory.Stats, nil

	case benchSingleByteArray:
		p, err := factory.SingleByteArrayPool()
		if err != nil {
			return nil, nil, err
		}
		return func(size int) error {
			t := metrics.NewTimer("single_byte_array")
			b, err := p.Get(size)
			t.ObserveGet()
			if err != nil {
				return err
			}
			p.Release(b)
			return nil
		}, factory.Stats, nil

	case benchStream:
		if _, err := factory.MemoryChunkPool(); err != nil {
			return nil, nil, err
		}
		payload := make([]byte, 4*pool.KiB)
		return func(size int) error {
			s, err := factory.NewOutputStream(0)
			if err != nil {
				return err
			}
			defer s.Close()
			for written := 0; written < size; {
				n := min(len(payload), size-written)
				if _, err := s.Write(payload[:n]); err != nil {
					return err
				}
				written += n
			}
			buf, err := s.ToByteBuffer()
			if err != nil {
				return err
			}
			return buf.Close()
		}, factory.Stats, nil

	case benchCodec:
		p, err := factory.MemoryChunkPool()
		if err != nil {
			return nil, nil, err
		}
		payload := bytes.Repeat([]byte("imagepool"), 64*pool.KiB/9+1)
		return func(size int) error {
			size = min(size, len(payload))
			var encoded bytes.Buffer
			if err := codec.Encode(&encoded, bytes.NewReader(payload[:size])); err != nil {
				return err
			}
			buf, err := codec.DecodeToBuffer(p, &encoded, size)
			if err != nil {
				return err
			}
			return buf.Close()
		}, factory.Stats, nil
	}
	return nil, nil, fmt.Errorf("unknown pool %q", kind)
}

// fallback reports errors a caller handles by doing the work unpooled.
func fallback(err error) bool {
	return errors.Is(err, pool.ErrPoolSizeViolation) || errors.Is(err, pool.ErrInUse)
}

func runBench(ctx context.Context, factory *pool.Factory, codec *compression.Codec, opts benchOptions) (*benchResult, error) {
	if opts.Workers <= 0 || opts.Iterations <= 0 {
		return nil, fmt.Errorf("workers and iterations must be positive")
	}
	if opts.MinSize <= 0 || opts.MaxSize < opts.MinSize {
		return nil, fmt.Errorf("invalid size range [%d, %d]", opts.MinSize, opts.MaxSize)
	}
	op, stats, err := newBenchOp(factory, codec, opts.Pool)
	if err != nil {
		return nil, err
	}

	var ops, fallbacks atomic.Int64
	throughput := metrics.NewThroughputTracker()
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < opts.Workers; w++ {
		rng := rand.New(rand.NewPCG(opts.Seed, uint64(w)))
		g.Go(func() error {
			span := opts.MaxSize - opts.MinSize + 1
			for i := 0; i < opts.Iterations; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				size := opts.MinSize + rng.IntN(span)
				if err := op(size); err != nil {
					if !fallback(err) {
						return err
					}
					fallbacks.Add(1)
				}
				ops.Add(1)
				throughput.Increment(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &benchResult{
		Pool:         opts.Pool,
		Workers:      opts.Workers,
		Operations:   ops.Load(),
		Fallbacks:    fallbacks.Load(),
		Duration:     time.Since(start),
		OpsPerSecond: throughput.GetAndReset(),
		Stats:        stats(),
	}
	for _, s := range res.Stats {
		metrics.ObserveStats(s)
	}
	logger.Info("benchmark finished",
		zap.String("pool", res.Pool),
		zap.Int64("operations", res.Operations),
		zap.Int64("fallbacks", res.Fallbacks),
		zap.Duration("duration", res.Duration))
	return res, nil
}

func printBenchResult(w io.Writer, res *benchResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	fmt.Fprintf(w, "pool:        %s\n", res.Pool)
	fmt.Fprintf(w, "workers:     %d\n", res.Workers)
	fmt.Fprintf(w, "operations:  %d\n", res.Operations)
	fmt.Fprintf(w, "fallbacks:   %d\n", res.Fallbacks)
	fmt.Fprintf(w, "duration:    %s\n", res.Duration)
	fmt.Fprintf(w, "throughput:  %.0f ops/s\n", res.OpsPerSecond)
	for _, s := range res.Stats {
		fmt.Fprintf(w, "%-14s used %d (%d bytes) free %d (%d bytes)\n",
			s.Name, s.UsedCount, s.UsedBytes, s.FreeCount, s.FreeBytes)
	}
	return nil
}

func startCPUProfile(path string) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("could not start CPU profile: %w", err)
	}
	return func() {
		pprof.StopCPUProfile()
		f.Close()
	}, nil
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create memory profile: %w", err)
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		return fmt.Errorf("could not write memory profile: %w", err)
	}
	return nil
}
