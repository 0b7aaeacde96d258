package resilience

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	// DefaultBase is the smallest delay and the unit the window grows by.
	DefaultBase = 100 * time.Millisecond
	// DefaultMaxShift caps window growth at Base * 2^14 (about 27 minutes).
	DefaultMaxShift = 14
)

// Backoff computes randomized exponential retry delays. For attempt n (1-based)
// the delay is drawn uniformly from [Base, Base * 2^min(n-1, MaxShift)].
type Backoff struct {
	base     time.Duration
	maxShift int

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewBackoff creates a backoff with the default window and a random seed.
func NewBackoff() *Backoff {
	return NewBackoffWithSource(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// NewBackoffWithSource creates a backoff drawing from src.
// Useful for testing with deterministic delays
func NewBackoffWithSource(src rand.Source) *Backoff {
	return &Backoff{
		base:     DefaultBase,
		maxShift: DefaultMaxShift,
		rnd:      rand.New(src),
	}
}

// Delay returns the wait before retrying after the given failed attempt.
func (b *Backoff) Delay(attempt int) time.Duration {
	upper := b.Window(attempt)
	if upper <= b.base {
		return b.base
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.base + time.Duration(b.rnd.Int64N(int64(upper-b.base)+1))
}

// Window returns the upper bound of the delay for the given attempt.
func (b *Backoff) Window(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > b.maxShift {
		shift = b.maxShift
	}
	return b.base * time.Duration(1<<shift)
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
