package guard

import (
	"context"
	"sync"
	"time"
)

// RateLimiter bounds upstream attempts to MaxRequests per rolling Window.
//
// Every accepted call is recorded, including calls whose upstream request
// later fails: the limiter counts attempts, not successes.
type RateLimiter struct {
	mu     *sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time // accepted calls, oldest first
	clock  Clock
	onWait func(time.Duration)
}

// NewRateLimiter creates a standalone limiter with its own lock.
func NewRateLimiter(maxRequests int, window time.Duration, opts ...Option) *RateLimiter {
	return newRateLimiter(&sync.Mutex{}, maxRequests, window, buildOptions(opts))
}

func newRateLimiter(mu *sync.Mutex, maxRequests int, window time.Duration, o options) *RateLimiter {
	return &RateLimiter{
		mu:     mu,
		max:    maxRequests,
		window: window,
		clock:  o.clock,
		onWait: o.onWait,
	}
}

// Acquire returns once the caller may make an upstream call. When the window
// is full it sleeps until the oldest accepted call leaves the window and then
// re-checks, so concurrent callers that lose the race wait again.
// The only error is ctx's, when the caller gives up while waiting.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	if l.max <= 0 {
		return nil
	}

	var waited time.Duration
	for {
		l.mu.Lock()
		now := l.clock.Now()
		l.pruneLocked(now)
		if len(l.stamps) < l.max {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			if waited > 0 && l.onWait != nil {
				l.onWait(waited)
			}
			return nil
		}
		wait := l.window - now.Sub(l.stamps[0])
		l.mu.Unlock()

		if err := l.clock.Sleep(ctx, wait); err != nil {
			return err
		}
		waited += wait
	}
}

// Occupancy returns the number of accepted calls in the current window and
// the configured maximum.
func (l *RateLimiter) Occupancy() (used, limit int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pruneLocked(l.clock.Now())
	return len(l.stamps), l.max
}

// pruneLocked drops timestamps that are a full window old or older.
// Caller must hold the lock.
func (l *RateLimiter) pruneLocked(now time.Time) {
	i := 0
	for i < len(l.stamps) && now.Sub(l.stamps[i]) >= l.window {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}
