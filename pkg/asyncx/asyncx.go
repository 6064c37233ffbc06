// Package asyncx holds small concurrency helpers used for best-effort side
// effects such as webhook delivery.
package asyncx

import (
	"context"
	"sync"
)

// Do fires fn in a goroutine and forgets it.
func Do(fn func()) {
	go fn()
}

// DoCtx fires fn in a goroutine unless ctx is already done.
func DoCtx(ctx context.Context, fn func(context.Context)) {
	go func() {
		select {
		case <-ctx.Done():
			return
		default:
			fn(ctx)
		}
	}()
}

// Each runs fn for every item concurrently and waits for all to finish.
func Each[T any](items []T, fn func(T)) {
	var wg sync.WaitGroup
	wg.Add(len(items))
	for _, item := range items {
		go func(it T) {
			defer wg.Done()
			fn(it)
		}(item)
	}
	wg.Wait()
}
