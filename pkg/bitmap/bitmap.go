// Package bitmap defines the pixel buffers handed out by bitmap pools.
package bitmap

import (
	"fmt"
	"sync"

	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
)

// Config is a pixel format.
type Config int

const (
	// ARGB8888 stores four bytes per pixel.
	ARGB8888 Config = iota
	// RGB565 stores two bytes per pixel.
	RGB565
	// Alpha8 stores one alpha byte per pixel.
	Alpha8
	// RGBAF16 stores four half floats per pixel.
	RGBAF16
)

// BytesPerARGBPixel is the cost of the widest common format.
const BytesPerARGBPixel = 4

// BytesPerPixel returns the storage cost of one pixel.
func (c Config) BytesPerPixel() int {
	switch c {
	case RGB565:
		return 2
	case Alpha8:
		return 1
	case RGBAF16:
		return 8
	default:
		return 4
	}
}

func (c Config) String() string {
	switch c {
	case ARGB8888:
		return "ARGB_8888"
	case RGB565:
		return "RGB_565"
	case Alpha8:
		return "ALPHA_8"
	case RGBAF16:
		return "RGBA_F16"
	}
	return fmt.Sprintf("Config(%d)", int(c))
}

var (
	// ErrInvalidDimensions is returned for non-positive width or height.
	ErrInvalidDimensions = poolerrors.New(poolerrors.ErrorTypeValidation, "invalid bitmap dimensions")
	// ErrRecycled is returned when using a recycled bitmap.
	ErrRecycled = poolerrors.New(poolerrors.ErrorTypeState, "bitmap is recycled")
	// ErrImmutable is returned when reconfiguring an immutable bitmap.
	ErrImmutable = poolerrors.New(poolerrors.ErrorTypeState, "bitmap is immutable")
	// ErrTooSmall is returned when a new shape does not fit the allocation.
	ErrTooSmall = poolerrors.New(poolerrors.ErrorTypeValidation, "bitmap allocation too small")
)

// SizeInBytes returns the bytes needed for a width x height bitmap.
func SizeInBytes(width, height int, cfg Config) int {
	return width * height * cfg.BytesPerPixel()
}

// Bitmap is a mutable pixel buffer whose shape may change while its
// allocation stays fixed.
type Bitmap struct {
	mu       sync.RWMutex
	width    int
	height   int
	config   Config
	pixels   []byte
	capacity int
	mutable  bool
	recycled bool
}

// New allocates a mutable bitmap.
func New(width, height int, cfg Config) (*Bitmap, error) {
	if width <= 0 || height <= 0 {
		return nil, poolerrors.New(poolerrors.ErrorTypeValidation, ErrInvalidDimensions.Message).
			WithDetail("width", width).
			WithDetail("height", height)
	}
	size := SizeInBytes(width, height, cfg)
	return &Bitmap{
		width:    width,
		height:   height,
		config:   cfg,
		pixels:   make([]byte, size),
		capacity: size,
		mutable:  true,
	}, nil
}

// Allocator creates a width x height bitmap. Pools inject it so callers
// can supply their own storage.
type Allocator func(width, height int, cfg Config) (*Bitmap, error)

// DefaultAllocator allocates bitmaps on the Go heap.
func DefaultAllocator(width, height int, cfg Config) (*Bitmap, error) {
	return New(width, height, cfg)
}

// Width returns the current width.
func (b *Bitmap) Width() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.width
}

// Height returns the current height.
func (b *Bitmap) Height() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.height
}

// Config returns the current pixel format.
func (b *Bitmap) Config() Config {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.config
}

// ByteCount is the size of the current shape.
func (b *Bitmap) ByteCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return SizeInBytes(b.width, b.height, b.config)
}

// AllocationByteCount is the size of the backing storage. It keeps its
// value after Recycle so pools can account for the bitmap.
func (b *Bitmap) AllocationByteCount() int {
	return b.capacity
}

// IsMutable reports whether the bitmap may be reconfigured and reused.
func (b *Bitmap) IsMutable() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.mutable
}

// SetImmutable freezes the bitmap.
func (b *Bitmap) SetImmutable() {
	b.mu.Lock()
	b.mutable = false
	b.mu.Unlock()
}

// IsRecycled reports whether Recycle was called.
func (b *Bitmap) IsRecycled() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.recycled
}

// Recycle drops the pixel storage. The bitmap is unusable afterwards.
func (b *Bitmap) Recycle() {
	b.mu.Lock()
	b.recycled = true
	b.pixels = nil
	b.mu.Unlock()
}

// Pixels returns the storage of the current shape.
func (b *Bitmap) Pixels() ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.recycled {
		return nil, ErrRecycled
	}
	return b.pixels[:SizeInBytes(b.width, b.height, b.config)], nil
}

// Reconfigure changes the shape without reallocating. The new shape must
// fit the existing storage. Pixel contents are zeroed so a decoder can
// reuse the bitmap.
func (b *Bitmap) Reconfigure(width, height int, cfg Config) error {
	if width <= 0 || height <= 0 {
		return ErrInvalidDimensions
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.recycled:
		return ErrRecycled
	case !b.mutable:
		return ErrImmutable
	}
	need := SizeInBytes(width, height, cfg)
	if need > b.capacity {
		return poolerrors.New(poolerrors.ErrorTypeValidation, ErrTooSmall.Message).
			WithDetail("need", need).
			WithDetail("have", b.capacity)
	}
	b.width, b.height, b.config = width, height, cfg
	clear(b.pixels)
	return nil
}
