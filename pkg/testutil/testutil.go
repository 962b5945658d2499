// Package testutil provides testing utilities for imagepool
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ajitpratap0/imagepool/pkg/logger"
	"github.com/ajitpratap0/imagepool/pkg/memory"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger creates a test logger that writes to the test output.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// ObserveGlobalLogger swaps the global logger for one that records entries
// at level and above, restoring the previous logger when the test ends.
func ObserveGlobalLogger(t *testing.T, level zapcore.Level) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(level)
	restore := logger.ReplaceGlobal(zap.New(core))
	t.Cleanup(restore)
	return logs
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// TrimRecorder is a memory.Trimmable that remembers every level it is
// given.
type TrimRecorder struct {
	mu    sync.Mutex
	trims []memory.TrimType
}

// Trim records trimType.
func (r *TrimRecorder) Trim(trimType memory.TrimType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trims = append(r.trims, trimType)
}

// Trims returns the levels received so far, oldest first.
func (r *TrimRecorder) Trims() []memory.TrimType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]memory.TrimType(nil), r.trims...)
}
