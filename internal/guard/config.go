package guard

import (
	"context"
	"fmt"
	"time"
)

// Config holds the process-wide protection parameters for upstream calls.
type Config struct {
	// MaxRequests is the number of upstream attempts accepted per Window.
	// Zero or negative disables rate limiting.
	MaxRequests int `yaml:"max_requests"`

	// Window is the rolling window length. Default: 60s.
	Window time.Duration `yaml:"window"`

	// FailureThreshold is the consecutive failure count that opens the circuit.
	FailureThreshold int `yaml:"failure_threshold"`

	// ResetTimeout is how long the circuit stays open after the last failure
	// before a half-open trial is allowed. Default: 5m.
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRequests:      10,
		Window:           60 * time.Second,
		FailureThreshold: 5,
		ResetTimeout:     5 * time.Minute,
	}
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.MaxRequests > 0 && c.Window <= 0 {
		return fmt.Errorf("rate window must be positive when max_requests is set")
	}
	if c.FailureThreshold < 1 {
		return fmt.Errorf("failure_threshold must be at least 1, got %d", c.FailureThreshold)
	}
	if c.ResetTimeout <= 0 {
		return fmt.Errorf("reset_timeout must be positive")
	}
	return nil
}

// Clock abstracts time so limiter and breaker tests run without real sleeps.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Option customizes a RateLimiter, CircuitBreaker or ProtectionState.
type Option func(*options)

type options struct {
	clock        Clock
	onWait       func(time.Duration)
	onTransition func(Transition)
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithWaitHook is called with the total delay each time Acquire had to wait.
func WithWaitHook(fn func(time.Duration)) Option {
	return func(o *options) { o.onWait = fn }
}

// WithTransitionHook is called after every circuit state change, outside the lock.
func WithTransitionHook(fn func(Transition)) Option {
	return func(o *options) { o.onTransition = fn }
}

func buildOptions(opts []Option) options {
	o := options{clock: systemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
