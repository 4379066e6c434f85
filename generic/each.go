package generic

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ParallelEach runs exec for every item with at most limit calls in flight.
// A non-positive limit runs every item at once. The context passed to exec
// is canceled after the first failure, whose error is returned.
func ParallelEach[T any](ctx context.Context, limit int, items []T, exec func(ctx context.Context, i int, item T) error) error {
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			return exec(ctx, i, item)
		})
	}
	return g.Wait()
}
