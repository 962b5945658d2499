package pool

import (
	"runtime"
	"sort"

	"gopkg.in/yaml.v3"
)

const (
	// KiB is 1024 bytes.
	KiB = 1024
	// MiB is 1024 KiB.
	MiB = 1024 * KiB
)

// PoolParams configures a pool. It is immutable once handed to a pool.
type PoolParams struct {
	// BucketSizes maps a bucketed size to the most values that bucket may
	// hold, free and in use together. An empty table lets the pool create
	// unbounded buckets on demand.
	BucketSizes map[int]int `yaml:"bucket_sizes" json:"bucket_sizes"`
	// MinBucketSize is the smallest size a pool hands out.
	MinBucketSize int `yaml:"min_bucket_size" json:"min_bucket_size"`
	// MaxBucketSize is the largest size a pool hands out.
	MaxBucketSize int `yaml:"max_bucket_size" json:"max_bucket_size"`
	// MaxSizeSoftCap bounds used plus free bytes before idle values are
	// trimmed and releases stop being pooled.
	MaxSizeSoftCap int `yaml:"max_size_soft_cap" json:"max_size_soft_cap"`
	// MaxSizeHardCap bounds used bytes; allocations past it fail.
	MaxSizeHardCap int `yaml:"max_size_hard_cap" json:"max_size_hard_cap"`
	// MaxNumThreads is the expected number of concurrent users, used to
	// size buckets.
	MaxNumThreads int `yaml:"max_num_threads" json:"max_num_threads"`
}

// NewPoolParams builds validated params. Min and max bucket sizes are
// taken from the bucket table when it is non-empty.
func NewPoolParams(softCap, hardCap int, bucketSizes map[int]int) (PoolParams, error) {
	p := PoolParams{
		BucketSizes:    copyBuckets(bucketSizes),
		MaxSizeSoftCap: softCap,
		MaxSizeHardCap: hardCap,
		MaxNumThreads:  -1,
	}
	if sizes := p.SortedBucketSizes(); len(sizes) > 0 {
		p.MinBucketSize = sizes[0]
		p.MaxBucketSize = sizes[len(sizes)-1]
	}
	return p, p.Validate()
}

// Validate checks that the caps and bucket table are consistent.
func (p PoolParams) Validate() error {
	switch {
	case p.MaxSizeSoftCap < 0:
		return invalidParams("soft cap must not be negative", "max_size_soft_cap", p.MaxSizeSoftCap)
	case p.MaxSizeHardCap < p.MaxSizeSoftCap:
		return invalidParams("hard cap must be at least the soft cap", "max_size_hard_cap", p.MaxSizeHardCap)
	case p.MinBucketSize < 0 || p.MaxBucketSize < p.MinBucketSize:
		return invalidParams("bucket size range is inverted", "max_bucket_size", p.MaxBucketSize)
	}
	for size, maxLen := range p.BucketSizes {
		if size <= 0 {
			return invalidParams("bucket size must be positive", "bucket_size", size)
		}
		if maxLen < 0 {
			return invalidParams("bucket length must not be negative", "bucket_length", maxLen)
		}
	}
	return nil
}

// SortedBucketSizes returns the configured bucketed sizes in ascending order.
func (p PoolParams) SortedBucketSizes() []int {
	sizes := make([]int, 0, len(p.BucketSizes))
	for size := range p.BucketSizes {
		sizes = append(sizes, size)
	}
	sort.Ints(sizes)
	return sizes
}

// UnmarshalYAML decodes over the current params. A bucket_sizes table
// replaces the existing one instead of merging into it, and the bucket
// size range follows the new table unless it is given explicitly.
func (p *PoolParams) UnmarshalYAML(value *yaml.Node) error {
	type plain PoolParams
	out := plain(*p)
	out.BucketSizes = nil
	out.MinBucketSize, out.MaxBucketSize = 0, 0
	if err := value.Decode(&out); err != nil {
		return err
	}
	switch {
	case out.BucketSizes == nil:
		out.BucketSizes = p.BucketSizes
		if out.MinBucketSize == 0 && out.MaxBucketSize == 0 {
			out.MinBucketSize, out.MaxBucketSize = p.MinBucketSize, p.MaxBucketSize
		}
	case out.MinBucketSize == 0 && out.MaxBucketSize == 0:
		if sizes := PoolParams(out).SortedBucketSizes(); len(sizes) > 0 {
			out.MinBucketSize, out.MaxBucketSize = sizes[0], sizes[len(sizes)-1]
		}
	}
	*p = PoolParams(out)
	return nil
}

func copyBuckets(in map[int]int) map[int]int {
	out := make(map[int]int, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// powerOfTwoBuckets maps every power of two in [min, max] to length.
func powerOfTwoBuckets(min, max int, length func(size int) int) map[int]int {
	buckets := make(map[int]int)
	for size := min; size <= max; size *= 2 {
		buckets[size] = length(size)
	}
	return buckets
}

// DefaultByteArrayPoolParams sizes a pool of decode buffers from 16 KiB to
// 1 MiB, a few per thread.
func DefaultByteArrayPoolParams() PoolParams {
	threads := runtime.NumCPU()
	buckets := powerOfTwoBuckets(16*KiB, MiB, func(int) int { return threads })
	soft := 4 * MiB
	hard := threads * MiB
	if hard < soft {
		hard = soft
	}
	return PoolParams{
		BucketSizes:    buckets,
		MinBucketSize:  16 * KiB,
		MaxBucketSize:  MiB,
		MaxSizeSoftCap: soft,
		MaxSizeHardCap: hard,
		MaxNumThreads:  threads,
	}
}

// DefaultMemoryChunkPoolParams sizes a native chunk pool for a process
// allowed maxMemory bytes. Small buckets hold five chunks, those from
// 128 KiB up hold two.
func DefaultMemoryChunkPoolParams(maxMemory int) PoolParams {
	buckets := powerOfTwoBuckets(KiB, MiB, func(size int) int {
		if size >= 128*KiB {
			return 2
		}
		return 5
	})

	soft := 12 * MiB
	switch {
	case maxMemory < 16*MiB:
		soft = 3 * MiB
	case maxMemory < 32*MiB:
		soft = 6 * MiB
	}
	hard := maxMemory / 4 * 3
	if maxMemory < 16*MiB {
		hard = maxMemory / 2
	}
	if hard < soft {
		hard = soft
	}
	return PoolParams{
		BucketSizes:    buckets,
		MinBucketSize:  KiB,
		MaxBucketSize:  MiB,
		MaxSizeSoftCap: soft,
		MaxSizeHardCap: hard,
		MaxNumThreads:  -1,
	}
}

// DefaultBitmapPoolParams sizes a bitmap pool for a process allowed
// maxMemory bytes. Buckets are created on demand, one per byte size.
func DefaultBitmapPoolParams(maxMemory int) PoolParams {
	hard := maxMemory / 2
	if maxMemory > 16*MiB {
		hard = maxMemory / 4 * 3
	}
	return PoolParams{
		BucketSizes:    map[int]int{},
		MaxSizeSoftCap: maxMemory / 8,
		MaxSizeHardCap: hard,
		MaxNumThreads:  -1,
	}
}
