//go:build !unix

package nativemem

func allocate(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func release([]byte) error {
	return nil
}

// Discard zeroes the chunk.
func (c *Chunk) Discard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChunkClosed
	}
	clear(c.data)
	return nil
}
