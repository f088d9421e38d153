package guard

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the state of a circuit breaker.
type State int

const (
	StateClosed   State = iota // Normal operation, calls allowed.
	StateOpen                  // Upstream unhealthy, calls fast-failed.
	StateHalfOpen              // One trial call allowed.
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// maxRecentErrors bounds the error history ring.
const maxRecentErrors = 10

// maxErrorLen truncates stored error messages.
const maxErrorLen = 240

// Transition describes a single circuit state change.
type Transition struct {
	From     State
	To       State
	Failures int
	Reason   string
	At       time.Time
}

// CircuitSnapshot is a point-in-time copy of the breaker state.
type CircuitSnapshot struct {
	State         State
	Failures      int
	LastFailure   time.Time
	RecentErrors  []string
	TrialInFlight bool
	// RetryAfter is the remaining open time; zero unless State is open.
	RetryAfter time.Duration
}

// CircuitBreaker fast-fails calls to an upstream that keeps failing.
//
// CLOSED runs every call; FailureThreshold consecutive failures open it.
// OPEN rejects calls until ResetTimeout has passed since the last failure,
// then the next call becomes the single HALF_OPEN trial. A successful trial
// closes the circuit; a failed one reopens it.
type CircuitBreaker struct {
	mu           *sync.Mutex
	threshold    int
	resetTimeout time.Duration
	clock        Clock
	onTransition func(Transition)

	state         State
	failures      int
	lastFailure   time.Time
	recent        []string
	trialInFlight bool

	// epoch changes on every state change. Outcomes of calls admitted in an
	// earlier epoch are ignored.
	epoch uint64
}

// ticket identifies an admitted call.
type ticket struct {
	trial bool
	epoch uint64
}

// NewCircuitBreaker creates a standalone breaker with its own lock.
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	return newCircuitBreaker(&sync.Mutex{}, failureThreshold, resetTimeout, buildOptions(opts))
}

func newCircuitBreaker(mu *sync.Mutex, failureThreshold int, resetTimeout time.Duration, o options) *CircuitBreaker {
	if failureThreshold < 1 {
		failureThreshold = 1
	}
	return &CircuitBreaker{
		mu:           mu,
		threshold:    failureThreshold,
		resetTimeout: resetTimeout,
		clock:        o.clock,
		onTransition: o.onTransition,
		state:        StateClosed,
	}
}

// Execute runs op unless the circuit is open. The error from op is returned
// unchanged; a rejected call returns *CircuitOpenError without running op.
//
// If op fails because ctx was canceled by the caller, or returns an error
// wrapping ErrAbandoned, the outcome is not counted: the upstream did not
// fail, the caller went away. A call that finishes after the state it was
// admitted in has changed is not counted either.
func (b *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	t, err := b.admit()
	if err != nil {
		return err
	}

	opErr := op(ctx)
	b.record(ctx, t, opErr)
	return opErr
}

// Check reports whether a call would currently be rejected, without claiming
// the half-open trial or changing state.
func (b *CircuitBreaker) Check() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		elapsed := b.clock.Now().Sub(b.lastFailure)
		if elapsed <= b.resetTimeout {
			return &CircuitOpenError{State: StateOpen, RetryAfter: b.resetTimeout - elapsed}
		}
	case StateHalfOpen:
		if b.trialInFlight {
			return &CircuitOpenError{State: StateHalfOpen}
		}
	}
	return nil
}

// Reset forces the circuit closed with zero failures and no error history.
// It is an operator action and never runs automatically.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	var fired []Transition
	if b.state != StateClosed {
		fired = append(fired, b.setStateLocked(StateClosed, "manual reset"))
	}
	b.failures = 0
	b.recent = nil
	b.trialInFlight = false
	b.mu.Unlock()

	b.fire(fired)
}

// State returns the current state.
func (b *CircuitBreaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot returns a copy of the breaker state.
func (b *CircuitBreaker) Snapshot() CircuitSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := CircuitSnapshot{
		State:         b.state,
		Failures:      b.failures,
		LastFailure:   b.lastFailure,
		RecentErrors:  append([]string(nil), b.recent...),
		TrialInFlight: b.trialInFlight,
	}
	if b.state == StateOpen {
		if remaining := b.resetTimeout - b.clock.Now().Sub(b.lastFailure); remaining > 0 {
			snap.RetryAfter = remaining
		}
	}
	return snap
}

// admit decides whether a call may run.
func (b *CircuitBreaker) admit() (ticket, error) {
	b.mu.Lock()
	var fired []Transition
	defer func() {
		b.mu.Unlock()
		b.fire(fired)
	}()

	if b.state == StateOpen {
		elapsed := b.clock.Now().Sub(b.lastFailure)
		if elapsed <= b.resetTimeout {
			return ticket{}, &CircuitOpenError{State: StateOpen, RetryAfter: b.resetTimeout - elapsed}
		}
		fired = append(fired, b.setStateLocked(StateHalfOpen, "reset timeout elapsed"))
	}

	if b.state == StateHalfOpen {
		if b.trialInFlight {
			return ticket{}, &CircuitOpenError{State: StateHalfOpen}
		}
		b.trialInFlight = true
		return ticket{trial: true, epoch: b.epoch}, nil
	}

	return ticket{epoch: b.epoch}, nil
}

// record folds the outcome of an admitted call into the breaker state.
//
// A call admitted as CLOSED only counts while the circuit is still in that
// same CLOSED epoch, so a slow success cannot clear the counter of a circuit
// that has opened meanwhile.
func (b *CircuitBreaker) record(ctx context.Context, t ticket, err error) {
	b.mu.Lock()
	var fired []Transition
	defer func() {
		b.mu.Unlock()
		b.fire(fired)
	}()

	if t.epoch != b.epoch {
		return
	}
	if t.trial {
		b.trialInFlight = false
	}
	if notCounted(ctx, err) {
		return
	}

	if err == nil {
		b.failures = 0
		if t.trial {
			b.recent = nil
			fired = append(fired, b.setStateLocked(StateClosed, "trial succeeded"))
		}
		return
	}

	b.failures++
	b.lastFailure = b.clock.Now()
	b.pushErrorLocked(err.Error())

	switch {
	case t.trial:
		fired = append(fired, b.setStateLocked(StateOpen, "trial failed"))
	case b.failures >= b.threshold:
		fired = append(fired, b.setStateLocked(StateOpen, "failure threshold reached"))
	}
}

func notCounted(ctx context.Context, err error) bool {
	if errors.Is(err, ErrAbandoned) {
		return true
	}
	return errors.Is(err, context.Canceled) && ctx.Err() != nil
}

func (b *CircuitBreaker) pushErrorLocked(msg string) {
	if len(msg) > maxErrorLen {
		msg = msg[:maxErrorLen]
	}
	if len(b.recent) == maxRecentErrors {
		b.recent = append(b.recent[:0], b.recent[1:]...)
	}
	b.recent = append(b.recent, msg)
}

func (b *CircuitBreaker) setStateLocked(to State, reason string) Transition {
	t := Transition{
		From:     b.state,
		To:       to,
		Failures: b.failures,
		Reason:   reason,
		At:       b.clock.Now(),
	}
	b.state = to
	b.epoch++
	return t
}

func (b *CircuitBreaker) fire(ts []Transition) {
	if b.onTransition == nil {
		return
	}
	for _, t := range ts {
		b.onTransition(t)
	}
}
