// Package upload runs remote uploads with a fixed concurrency bound.
package upload

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultLimit is the number of concurrent uploads when none is configured.
const DefaultLimit = 4

// Map runs fn over items with at most limit calls in flight and returns the
// results in input order.
//
// After the first failure no new calls start. Calls already running are
// allowed to finish, their results are discarded, and the first error is
// returned.
func Map[T, R any](ctx context.Context, limit int, items []T, fn func(context.Context, T) (R, error)) ([]R, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	results := make([]R, len(items))
	if len(items) == 0 {
		return results, nil
	}

	sem := semaphore.NewWeighted(int64(limit))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	for i, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
			break
		}
		if failed() {
			sem.Release(1)
			break
		}

		wg.Add(1)
		go func(i int, item T) {
			defer wg.Done()
			defer sem.Release(1)

			r, err := fn(ctx, item)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			results[i] = r
		}(i, item)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}
