package llm

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// EmptyResponse stands in for any call that failed or did not finish.
const EmptyResponse = "{}"

// CallResult is the outcome of one call in a batch.
type CallResult struct {
	Content  string
	Err      error
	Duration time.Duration
}

// Batch is the outcome of a Gather. Results are in request order.
type Batch struct {
	Results  []CallResult
	TimedOut bool
}

// Gather issues every request concurrently and waits for all of them under a
// single shared deadline. A failed call yields EmptyResponse with its error.
// If the deadline (or ctx) expires before every call returns, the whole batch
// is reported as EmptyResponse with TimedOut set; no partial results are kept.
func Gather(ctx context.Context, p Provider, reqs []*Request, timeout time.Duration) Batch {
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make([]CallResult, len(reqs))
	var g errgroup.Group
	for i, req := range reqs {
		g.Go(func() error {
			start := time.Now()
			resp, err := p.Complete(tctx, req)
			r := CallResult{Content: EmptyResponse, Err: err, Duration: time.Since(start)}
			if err == nil {
				r.Content = resp.Content
			}
			results[i] = r
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
		if !interrupted(results) {
			return Batch{Results: results}
		}
	case <-tctx.Done():
	}

	placeholders := make([]CallResult, len(reqs))
	for i := range placeholders {
		placeholders[i] = CallResult{Content: EmptyResponse, Err: tctx.Err(), Duration: timeout}
	}
	return Batch{Results: placeholders, TimedOut: true}
}

// interrupted reports whether any call was cut short by the shared deadline.
func interrupted(results []CallResult) bool {
	for _, r := range results {
		if errors.Is(r.Err, context.DeadlineExceeded) || errors.Is(r.Err, context.Canceled) {
			return true
		}
	}
	return false
}
