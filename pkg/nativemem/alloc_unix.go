//go:build unix

package nativemem

import "golang.org/x/sys/unix"

func allocate(size int) ([]byte, error) {
	return unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
}

func release(b []byte) error {
	return unix.Munmap(b)
}

// Discard tells the kernel the chunk's contents are no longer needed, so
// idle pooled chunks stop counting against resident memory. The chunk
// stays mapped and reads back as zeroes.
func (c *Chunk) Discard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChunkClosed
	}
	return unix.Madvise(c.data, unix.MADV_DONTNEED)
}
