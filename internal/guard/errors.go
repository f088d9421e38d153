package guard

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrAbandoned marks a call the caller stopped consuming before the upstream
// finished. The breaker counts it as neither success nor failure.
var ErrAbandoned = errors.New("call abandoned by caller")

// CircuitOpenError is returned by Execute and Check when the upstream is
// considered unhealthy and the wrapped operation was not run.
type CircuitOpenError struct {
	// State is StateOpen, or StateHalfOpen when a trial call is already in flight.
	State State

	// RetryAfter is the remaining open time.
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	if e.State == StateHalfOpen {
		return fmt.Sprintf("circuit half-open, trial in progress, retry in %ds", e.RetryAfterSeconds())
	}
	return fmt.Sprintf("circuit open, retry in %ds", e.RetryAfterSeconds())
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below 1.
func (e *CircuitOpenError) RetryAfterSeconds() int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
