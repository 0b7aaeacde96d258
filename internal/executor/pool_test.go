package executor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(2, nil)

	var running, peak atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.Go(context.Background(), func(ctx context.Context) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
		}))
	}
	pool.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int32(0), running.Load())
}

func TestPoolGoDoesNotBlockWhenSaturated(t *testing.T) {
	pool := NewPool(1, nil)
	release := make(chan struct{})
	require.NoError(t, pool.Go(context.Background(), func(ctx context.Context) { <-release }))
	require.Eventually(t, func() bool { return pool.Stats().InUse == 1 }, time.Second, time.Millisecond)

	var ran atomic.Bool
	returned := make(chan struct{})
	go func() {
		defer close(returned)
		pool.Go(context.Background(), func(ctx context.Context) { ran.Store(true) })
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Go blocked on a saturated pool")
	}
	assert.Equal(t, 1, pool.Stats().Waiting)
	assert.False(t, ran.Load())

	close(release)
	pool.Wait()
	assert.True(t, ran.Load())
	assert.Equal(t, PoolStats{Size: 1}, pool.Stats())
}

func TestPoolSkipsTaskCancelledWhileWaiting(t *testing.T) {
	pool := NewPool(1, nil)
	release := make(chan struct{})
	require.NoError(t, pool.Go(context.Background(), func(ctx context.Context) { <-release }))

	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	require.NoError(t, pool.Go(ctx, func(ctx context.Context) { ran.Store(true) }))
	cancel()
	require.Eventually(t, func() bool { return pool.Stats().Waiting == 0 }, time.Second, time.Millisecond)

	close(release)
	pool.Wait()
	assert.False(t, ran.Load())
}

func TestLoopStaysResponsiveWithSaturatedPool(t *testing.T) {
	loop := NewLoop(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	loop.Start(ctx)
	defer loop.Stop()

	pool := NewPool(1, nil)
	release := make(chan struct{})
	defer func() {
		close(release)
		pool.Wait()
	}()

	// every task blocks, as a sign-in waiting on the user would
	for i := 0; i < 3; i++ {
		require.True(t, loop.Post(func() {
			pool.Go(ctx, func(ctx context.Context) { <-release })
		}))
	}

	callCtx, callCancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer callCancel()
	require.NoError(t, loop.Call(callCtx, func() {}))
	require.Eventually(t, func() bool { return pool.Stats().Waiting == 2 }, time.Second, time.Millisecond)
}

func TestPoolClose(t *testing.T) {
	pool := NewPool(1, nil)
	pool.Close()

	err := pool.Go(context.Background(), func(ctx context.Context) {})
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.True(t, pool.Stats().Closed)
}

func TestPoolRecoversPanics(t *testing.T) {
	pool := NewPool(1, nil)
	require.NoError(t, pool.Go(context.Background(), func(ctx context.Context) { panic("boom") }))
	pool.Wait()

	done := make(chan struct{})
	require.NoError(t, pool.Go(context.Background(), func(ctx context.Context) { close(done) }))
	<-done
}
