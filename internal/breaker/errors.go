package breaker

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for breaker rejections. Typed errors below wrap these so
// callers can branch with errors.Is without losing the retry-after detail.
var (
	// ErrCircuitOpen is returned when a call is rejected because the
	// circuit is open. Distinguishable from a genuine operation failure.
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// ErrCallTimeout is returned when the guarded call exceeded its
	// configured timeout.
	ErrCallTimeout = errors.New("call timed out")
)

// OpenError is the rejection returned while the circuit is open. RetryAfter
// estimates how long until the breaker will allow a probe.
type OpenError struct {
	Dependency string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open for %s, retry after %s", e.Dependency, e.RetryAfter.Round(time.Millisecond))
}

func (e *OpenError) Unwrap() error {
	return ErrCircuitOpen
}

// TimeoutError is returned when a guarded call exceeded the per-call timeout.
// It counts as a failure for breaker bookkeeping but is tagged separately in
// cumulative stats.
type TimeoutError struct {
	Dependency string
	Timeout    time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("call to %s timed out after %s", e.Dependency, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return ErrCallTimeout
}
