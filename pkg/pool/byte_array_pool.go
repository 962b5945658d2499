package pool

import "sort"

// bucketSizeClass rounds a request up to the smallest configured bucket.
// With no buckets configured a request is its own class.
type bucketSizeClass struct {
	sizes []int
	max   int
}

func newBucketSizeClass(params PoolParams) bucketSizeClass {
	return bucketSizeClass{sizes: params.SortedBucketSizes(), max: params.MaxBucketSize}
}

func (c bucketSizeClass) bucketedSize(requestSize int) (int, error) {
	if requestSize <= 0 {
		return 0, invalidSize(requestSize)
	}
	if c.max > 0 && requestSize > c.max {
		return 0, sizeTooLarge(requestSize, c.max)
	}
	i := sort.SearchInts(c.sizes, requestSize)
	if i < len(c.sizes) {
		return c.sizes[i], nil
	}
	return requestSize, nil
}

type byteArrayHooks struct {
	bucketSizeClass
}

func (byteArrayHooks) Alloc(bucketedSize int) ([]byte, error) {
	return make([]byte, bucketedSize), nil
}

func (byteArrayHooks) Free([]byte) {}

func (byteArrayHooks) IsReusable([]byte) bool { return true }

func (h byteArrayHooks) BucketedSize(requestSize int) (int, error) {
	return h.bucketedSize(requestSize)
}

func (byteArrayHooks) BucketedSizeForValue(value []byte) int { return cap(value) }

func (byteArrayHooks) SizeInBytes(bucketedSize int) int { return bucketedSize }

// ByteArrayPool pools heap byte slices by size class. Get returns a slice
// whose length is the bucketed size; callers reslice as needed and pass
// back any slice that starts at the same array.
type ByteArrayPool struct {
	*BasePool[[]byte]
}

// NewByteArrayPool creates a byte array pool.
func NewByteArrayPool(params PoolParams, opts ...Option) (*ByteArrayPool, error) {
	base, err := NewBasePool[[]byte]("byte_array", byteArrayHooks{newBucketSizeClass(params)}, params, opts...)
	if err != nil {
		return nil, err
	}
	return &ByteArrayPool{BasePool: base}, nil
}
