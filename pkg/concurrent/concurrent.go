package concurrent

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ForEach runs action for each element in its own goroutine, at most limit at
// a time (limit <= 0 means unbounded). The context passed to action is
// cancelled on the first error, which is returned after all goroutines end.
func ForEach[T any](ctx context.Context, items []T, limit int, action func(context.Context, T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for _, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return action(gctx, item)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ParallelMap applies mapFn to each element in parallel, preserving order.
// The workers parameter controls the number of goroutines.
func ParallelMap[T any, R any](in []T, workers int, mapFn func(T) R) []R {
	out := make([]R, len(in))
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)

	for idx, val := range in {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, v T) {
			defer wg.Done()
			out[i] = mapFn(v)
			<-sem
		}(idx, val)
	}
	wg.Wait()
	return out
}
