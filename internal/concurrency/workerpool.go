package concurrency

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// RunBounded runs fn(i) for every i in [0, n) with at most `limit` concurrent
// invocations, returning the first error encountered (errgroup semantics:
// the first error cancels the ctx passed to fn; calls already running
// finish, and calls not yet started still start but receive the canceled
// ctx). Used for per-claim evidence-search fan-out
// and per-(claim,evidence) align fan-out (spec.md §5).
func RunBounded(ctx context.Context, limit, n int, fn func(ctx context.Context, i int) error) error {
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
