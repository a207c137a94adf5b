package triage

import (
	"context"

	"github.com/sourcegraph/conc/pool"
)

// BatchResult pairs an Outcome with the error Handle returned for it.
type BatchResult struct {
	Outcome Outcome
	Err     error
}

// RunBatch handles events concurrently, at most maxConcurrency at a time.
// Results are in the order of events.
func (s *Service) RunBatch(ctx context.Context, events []map[string]any, maxConcurrency int) []BatchResult {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	results := make([]BatchResult, len(events))

	p := pool.New().WithMaxGoroutines(maxConcurrency)
	for i, event := range events {
		p.Go(func() {
			out, err := s.Handle(ctx, event)
			results[i] = BatchResult{Outcome: out, Err: err}
		})
	}
	p.Wait()

	return results
}
