package infer

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// InferBatch evaluates independent requests concurrently. Results are in
// request order. The first failure cancels the remaining requests and is
// returned alone.
func (e *Engine) InferBatch(ctx context.Context, reqs []Request) ([]*Result, error) {
	results := make([]*Result, len(reqs))

	limit := e.config.BatchConcurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)

	for i := range reqs {
		eg.Go(func() error {
			res, err := e.Infer(egCtx, reqs[i])
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
