// Package guard protects the upstream model with a sliding-window rate
// limiter and a circuit breaker.
//
// A ProtectionState is constructed once at process start and passed by
// reference to every component that calls the upstream. Both substructures
// share one mutex, so all concurrent requests see a single serialized view of
// the window and the circuit.
package guard

import (
	"context"
	"sync"
	"time"
)

// ProtectionState is the process-wide rate window and circuit state.
type ProtectionState struct {
	mu      sync.Mutex
	limiter *RateLimiter
	breaker *CircuitBreaker
}

// NewProtectionState builds the shared state from cfg.
func NewProtectionState(cfg Config, opts ...Option) *ProtectionState {
	o := buildOptions(opts)
	p := &ProtectionState{}
	p.limiter = newRateLimiter(&p.mu, cfg.MaxRequests, cfg.Window, o)
	p.breaker = newCircuitBreaker(&p.mu, cfg.FailureThreshold, cfg.ResetTimeout, o)
	return p
}

// Limiter returns the shared rate limiter.
func (p *ProtectionState) Limiter() *RateLimiter { return p.limiter }

// Breaker returns the shared circuit breaker.
func (p *ProtectionState) Breaker() *CircuitBreaker { return p.breaker }

// Acquire waits for rate limiter capacity.
func (p *ProtectionState) Acquire(ctx context.Context) error {
	return p.limiter.Acquire(ctx)
}

// Execute runs op through the circuit breaker.
func (p *ProtectionState) Execute(ctx context.Context, op func(context.Context) error) error {
	return p.breaker.Execute(ctx, op)
}

// Check reports whether the circuit would reject a call right now.
func (p *ProtectionState) Check() error {
	return p.breaker.Check()
}

// Reset closes the circuit. The rate window is left untouched.
func (p *ProtectionState) Reset() {
	p.breaker.Reset()
}

// Snapshot is a combined view used by the admin endpoint.
type Snapshot struct {
	Circuit     CircuitSnapshot
	WindowUsed  int
	WindowLimit int
	Window      time.Duration
}

// Snapshot returns the current limiter occupancy and circuit state.
func (p *ProtectionState) Snapshot() Snapshot {
	used, limit := p.limiter.Occupancy()
	return Snapshot{
		Circuit:     p.breaker.Snapshot(),
		WindowUsed:  used,
		WindowLimit: limit,
		Window:      p.limiter.window,
	}
}

// Status is the JSON view of a Snapshot served by the admin endpoint.
type Status struct {
	State             string     `json:"state"`
	Failures          int        `json:"failures"`
	LastFailure       time.Time  `json:"last_failure,omitzero"`
	RecentErrors      []string   `json:"recent_errors"`
	TrialInFlight     bool       `json:"trial_in_flight"`
	RetryAfterSeconds int        `json:"retry_after_seconds,omitempty"`
	Rate              RateStatus `json:"rate"`
}

// RateStatus reports rolling window occupancy.
type RateStatus struct {
	Used          int     `json:"used"`
	Limit         int     `json:"limit"`
	WindowSeconds float64 `json:"window_seconds"`
}

// Status converts the snapshot for serialization.
func (s Snapshot) Status() Status {
	st := Status{
		State:         s.Circuit.State.String(),
		Failures:      s.Circuit.Failures,
		LastFailure:   s.Circuit.LastFailure,
		RecentErrors:  s.Circuit.RecentErrors,
		TrialInFlight: s.Circuit.TrialInFlight,
		Rate: RateStatus{
			Used:          s.WindowUsed,
			Limit:         s.WindowLimit,
			WindowSeconds: s.Window.Seconds(),
		},
	}
	if st.RecentErrors == nil {
		st.RecentErrors = []string{}
	}
	if s.Circuit.RetryAfter > 0 {
		open := CircuitOpenError{State: s.Circuit.State, RetryAfter: s.Circuit.RetryAfter}
		st.RetryAfterSeconds = open.RetryAfterSeconds()
	}
	return st
}
