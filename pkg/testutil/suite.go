package testutil

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"
)

// StressSuite is a base for suites that hammer a pool from many
// goroutines. Each test gets a fresh context bounded by Timeout.
type StressSuite struct {
	suite.Suite
	Timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

// SetupTest creates the per-test context.
func (s *StressSuite) SetupTest() {
	timeout := s.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	s.ctx, s.cancel = context.WithTimeout(context.Background(), timeout)
}

// TearDownTest cancels the per-test context.
func (s *StressSuite) TearDownTest() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Context returns the per-test context.
func (s *StressSuite) Context() context.Context {
	return s.ctx
}

// RunConcurrently calls fn iterations times on each of workers goroutines
// and fails the test on the first error. Workers stop early once one of
// them fails or the context ends.
func (s *StressSuite) RunConcurrently(workers, iterations int, fn func(worker, i int) error) {
	g, ctx := errgroup.WithContext(s.ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for i := 0; i < iterations; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(w, i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	s.Require().NoError(g.Wait())
}
