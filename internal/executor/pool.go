package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	ErrPoolClosed = errors.New("executor: worker pool is closed")
)

// Pool runs blocking work (network, disk) on a bounded set of goroutines.
type Pool struct {
	slots   chan struct{}
	size    int
	logger  *zap.Logger
	waiting atomic.Int32

	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// PoolStats is a point-in-time view of a pool.
type PoolStats struct {
	Size    int  `json:"size"`
	InUse   int  `json:"inUse"`
	Waiting int  `json:"waiting"`
	Closed  bool `json:"closed"`
}

// NewPool creates a pool allowing size concurrent tasks.
func NewPool(size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		slots:  make(chan struct{}, size),
		size:   size,
		logger: logger,
	}
}

// Go schedules fn and returns at once, so it is safe to call from the UI
// loop. fn runs once a slot is free; if ctx is done first it is skipped.
// fn receives ctx and should honor its cancellation.
func (p *Pool) Go(ctx context.Context, fn func(ctx context.Context)) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrPoolClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	p.waiting.Add(1)
	go func() {
		defer p.wg.Done()

		select {
		case p.slots <- struct{}{}:
			p.waiting.Add(-1)
		case <-ctx.Done():
			p.waiting.Add(-1)
			p.logger.Debug("Task cancelled before a worker was free", zap.Error(ctx.Err()))
			return
		}

		defer func() {
			<-p.slots
			if r := recover(); r != nil {
				p.logger.Error("worker task panicked", zap.Any("panic", r), zap.Stack("stack"))
			}
		}()
		fn(ctx)
	}()
	return nil
}

// Wait blocks until all scheduled tasks have finished or been skipped.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close rejects new tasks and waits for scheduled ones.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

// Stats returns pool statistics.
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return PoolStats{
		Size:    p.size,
		InUse:   len(p.slots),
		Waiting: int(p.waiting.Load()),
		Closed:  p.closed,
	}
}
