package concurrent

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ParallelMap applies mapFn to every element of in, at most workers at a time,
// and returns the results in input order. The first error cancels the context
// handed to the remaining calls and is returned once all of them finish.
// workers <= 0 means one goroutine per element.
func ParallelMap[T any, R any](ctx context.Context, in []T, workers int, mapFn func(context.Context, int, T) (R, error)) ([]R, error) {
	out := make([]R, len(in))
	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	for idx, val := range in {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := mapFn(gctx, idx, val)
			if err != nil {
				return err
			}
			out[idx] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ParallelMute runs action for each element in a separate goroutine and waits
// for all of them. Errors are ignored.
func ParallelMute[T any](in []T, action func(T) error) {
	wg := sync.WaitGroup{}
	for _, value := range in {
		wg.Add(1)
		go func(value T) {
			defer wg.Done()
			_ = action(value)
		}(value)
	}
	wg.Wait()
}
