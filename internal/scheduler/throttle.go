package scheduler

import (
	"context"
	"sync"
)

// DefaultMaxInFlight caps concurrent fetches across all schedulers sharing a
// Throttler.
const DefaultMaxInFlight = 8

// Throttler limits concurrency. Callers over the limit wait in FIFO order.
type Throttler struct {
	mu      sync.Mutex
	max     int
	active  int
	waiters []chan struct{}
}

// NewThrottler allows limit concurrent holders; zero means
// DefaultMaxInFlight.
func NewThrottler(limit int) *Throttler {
	if limit <= 0 {
		limit = DefaultMaxInFlight
	}
	return &Throttler{max: limit}
}

// Acquire takes a slot, waiting behind earlier callers. If ctx ends first
// the caller leaves the queue and gets ctx.Err().
func (t *Throttler) Acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	if t.active < t.max && len(t.waiters) == 0 {
		t.active++
		t.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	t.waiters = append(t.waiters, ch)
	t.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		t.mu.Lock()
		for i, w := range t.waiters {
			if w == ch {
				t.waiters = append(t.waiters[:i], t.waiters[i+1:]...)
				t.mu.Unlock()
				return ctx.Err()
			}
		}
		t.mu.Unlock()
		// the slot was handed over while ctx ended; pass it on
		t.Release()
		return ctx.Err()
	}
}

// Release frees a slot, handing it to the oldest waiter if there is one.
func (t *Throttler) Release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.waiters) > 0 {
		ch := t.waiters[0]
		t.waiters = t.waiters[1:]
		close(ch)
		return
	}
	t.active--
}

// Stats reports slots in use and callers waiting.
func (t *Throttler) Stats() (active, queued int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active, len(t.waiters)
}

// Throttle runs fn while holding a slot of t. fn is not called once ctx has
// ended, even when the slot was granted.
func Throttle[T any](ctx context.Context, t *Throttler, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := t.Acquire(ctx); err != nil {
		return zero, err
	}
	defer t.Release()
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return fn(ctx)
}
