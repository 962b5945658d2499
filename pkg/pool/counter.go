package pool

import (
	"github.com/ajitpratap0/imagepool/pkg/logger"
	"go.uber.org/zap"
)

// Counter tracks a number of values and their total size in bytes. It is
// not synchronized; the owning pool's lock guards it.
type Counter struct {
	Count    int
	NumBytes int
}

// Increment adds one value of numBytes.
func (c *Counter) Increment(numBytes int) {
	c.Count++
	c.NumBytes += numBytes
}

// Decrement removes one value of numBytes. Going below zero is refused
// and logged; the counter is left unchanged.
func (c *Counter) Decrement(numBytes int) {
	if c.NumBytes >= numBytes && c.Count > 0 {
		c.Count--
		c.NumBytes -= numBytes
		return
	}
	logger.Error("unexpected counter decrement",
		zap.Int("num_bytes", numBytes),
		zap.Int("count", c.Count),
		zap.Int("total_bytes", c.NumBytes))
}

// Reset zeroes the counter.
func (c *Counter) Reset() {
	c.Count = 0
	c.NumBytes = 0
}
