// Package nativemem provides fixed-size memory chunks allocated outside the
// Go heap. On unix systems chunks are anonymous private mappings, so the
// garbage collector neither scans nor moves them and freeing returns the
// pages to the OS immediately. Other platforms fall back to heap slices.
//
// A Chunk must be closed exactly once by its owner; memory pools do this
// when they free the chunk. Access after Close fails with ErrChunkClosed.
package nativemem

import (
	"sync"
	"sync/atomic"

	"github.com/ajitpratap0/imagepool/pkg/poolerrors"
)

var (
	// ErrChunkClosed is returned by any access to a closed chunk.
	ErrChunkClosed = poolerrors.New(poolerrors.ErrorTypeState, "memory chunk is closed")
	// ErrOutOfBounds is returned when an offset lies outside the chunk.
	ErrOutOfBounds = poolerrors.New(poolerrors.ErrorTypeValidation, "offset out of chunk bounds")
	// ErrInvalidSize is returned for non-positive allocation sizes.
	ErrInvalidSize = poolerrors.New(poolerrors.ErrorTypeValidation, "invalid chunk size")
)

var nextID atomic.Uint64

// Chunk is a fixed-size block of off-heap memory.
type Chunk struct {
	mu     sync.RWMutex
	id     uint64
	data   []byte
	size   int
	closed bool
}

// Allocate maps a new zeroed chunk of size bytes.
func Allocate(size int) (*Chunk, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	data, err := allocate(size)
	if err != nil {
		return nil, poolerrors.Wrap(err, poolerrors.ErrorTypeAllocation, "failed to allocate memory chunk").
			WithDetail("size", size)
	}
	return &Chunk{id: nextID.Add(1), data: data, size: size}, nil
}

// ID is unique per chunk for the life of the process.
func (c *Chunk) ID() uint64 {
	return c.id
}

// Size returns the chunk capacity in bytes. It stays valid after Close.
func (c *Chunk) Size() int {
	return c.size
}

// IsClosed reports whether Close was called.
func (c *Chunk) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close releases the memory. Later calls are no-ops.
func (c *Chunk) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	data := c.data
	c.data = nil
	if err := release(data); err != nil {
		return poolerrors.Wrap(err, poolerrors.ErrorTypeAllocation, "failed to release memory chunk").
			WithDetail("chunk_id", c.id)
	}
	return nil
}

// Write copies src into the chunk at offset and returns the number of bytes
// written, which is short when src runs past the end.
func (c *Chunk) Write(offset int, src []byte) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(offset); err != nil {
		return 0, err
	}
	return copy(c.data[offset:], src), nil
}

// Read copies from the chunk at offset into dst and returns the number of
// bytes read, which is short when dst runs past the end.
func (c *Chunk) Read(offset int, dst []byte) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(offset); err != nil {
		return 0, err
	}
	return copy(dst, c.data[offset:]), nil
}

// ReadByte returns the byte at offset.
func (c *Chunk) ReadByte(offset int) (byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if err := c.check(offset); err != nil {
		return 0, err
	}
	if offset >= c.size {
		return 0, outOfBounds(offset, c.size)
	}
	return c.data[offset], nil
}

// CopyTo copies count bytes from c at offset into other at otherOffset.
// Both ranges must fit.
func (c *Chunk) CopyTo(offset int, other *Chunk, otherOffset, count int) error {
	if other == c {
		return poolerrors.New(poolerrors.ErrorTypeValidation, "cannot copy a chunk onto itself").
			WithDetail("chunk_id", c.id)
	}
	// Lock in id order so concurrent opposite copies cannot deadlock.
	first, second := c, other
	if other.id < c.id {
		first, second = other, c
	}
	first.mu.RLock()
	defer first.mu.RUnlock()
	second.mu.RLock()
	defer second.mu.RUnlock()

	if c.closed || other.closed {
		return ErrChunkClosed
	}
	if count < 0 || offset < 0 || otherOffset < 0 ||
		offset+count > c.size || otherOffset+count > other.size {
		return poolerrors.New(poolerrors.ErrorTypeValidation, "copy range out of chunk bounds").
			WithDetail("offset", offset).
			WithDetail("other_offset", otherOffset).
			WithDetail("count", count)
	}
	copy(other.data[otherOffset:otherOffset+count], c.data[offset:offset+count])
	return nil
}

func (c *Chunk) check(offset int) error {
	if c.closed {
		return ErrChunkClosed
	}
	if offset < 0 || offset > c.size {
		return outOfBounds(offset, c.size)
	}
	return nil
}

func outOfBounds(offset, size int) error {
	return poolerrors.New(poolerrors.ErrorTypeValidation, ErrOutOfBounds.Message).
		WithDetail("offset", offset).
		WithDetail("size", size)
}
