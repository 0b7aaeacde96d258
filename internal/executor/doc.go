/*
Package executor provides the two scheduling primitives of the host core.

Loop is the single UI-owning goroutine. Everything that touches web runtime
state, bridge queues or the presenter runs there; other goroutines hand work
over with Post and never block on it.

Pool is a bounded worker pool for blocking I/O. Results come back to the
loop with Post:

	pool.Go(ctx, func(ctx context.Context) {
		page, err := fetcher.Fetch(ctx, url, stale, nil)
		loop.Post(func() { deliver(page, err) })
	})
*/
package executor
