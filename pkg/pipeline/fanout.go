package pipeline

import (
	"context"
	"sync"
)

// fanOut runs fn over every item with at most maxConcurrent in flight at
// once, writing results[i] for item i, and blocks until all complete.
// Grounded on the platform's SubAgentRunner dispatch pattern (a buffered
// channel sized to the concurrency cap acts as the reservation gate),
// simplified here to a fixed-size worker pool since the pipeline's
// fan-out is a single bounded batch rather than a long-lived,
// incrementally-dispatched sub-agent pool.
func fanOut[T any, R any](ctx context.Context, items []T, maxConcurrent int, fn func(context.Context, int, T) R) []R {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	results := make([]R, len(items))
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for i, item := range items {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, item T) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = fn(ctx, i, item)
		}(i, item)
	}
	wg.Wait()
	return results
}
