// Package breaker implements a per-dependency circuit breaker used to guard
// outbound calls (the LLM provider, the database, generic HTTP) against
// cascading failure. Each guarded dependency gets its own independently
// configured Breaker instance; breakers never share state.
package breaker

import (
	"context"
	"sync"
	"time"
)

// State represents the current circuit state.
type State int

const (
	// StateClosed means calls pass through normally.
	StateClosed State = iota
	// StateOpen means calls are rejected without invoking the operation.
	StateOpen
	// StateHalfOpen means probe calls are allowed through to test recovery.
	StateHalfOpen
)

// String returns the lowercase name of the state.
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

// Config holds the tunables for a single Breaker instance.
type Config struct {
	// FailureThreshold is the number of consecutive failures while closed
	// that opens the circuit. Default: 5.
	FailureThreshold int

	// ResetTimeout is how long the circuit stays open before allowing a
	// probe call through. Default: 30s.
	ResetTimeout time.Duration

	// CallTimeout bounds each guarded call. A call that exceeds it counts
	// as a failure and is tagged separately in stats. Default: 10s.
	CallTimeout time.Duration

	// ProbeSuccessThreshold is the number of consecutive half-open
	// successes required to close the circuit. Default: 3.
	ProbeSuccessThreshold int

	// OnStateChange, if set, is called synchronously on every transition.
	OnStateChange func(name string, from, to State)
}

// Stats holds cumulative counters for a breaker instance.
type Stats struct {
	TotalRequests    uint64 `json:"total_requests"`
	Successes        uint64 `json:"successes"`
	Failures         uint64 `json:"failures"`
	Timeouts         uint64 `json:"timeouts"`
	Rejections       uint64 `json:"rejections"`
	StateTransitions uint64 `json:"state_transitions"`
}

// Snapshot is a point-in-time view of a breaker, suitable for the health
// endpoint and periodic log emission.
type Snapshot struct {
	Name             string    `json:"name"`
	State            string    `json:"state"`
	ConsecutiveFails int       `json:"consecutive_failures"`
	LastFailureAt    time.Time `json:"last_failure_at,omitempty"`
	Stats            Stats     `json:"stats"`
}

// Operation is an argument-free asynchronous callable guarded by the
// breaker. The breaker has no knowledge of its semantics.
type Operation func(ctx context.Context) (any, error)

// Breaker is a failure-tracking state machine around calls to one
// unreliable dependency. All methods are safe for concurrent use.
type Breaker struct {
	name   string
	config Config

	mu           sync.Mutex
	state        State
	failures     int       // consecutive failures while closed
	probeSuccess int       // consecutive successes while half-open
	lastFailure  time.Time // drives the open -> half-open transition
	openedAt     time.Time
	forced       bool      // operator override active; state does not self-transition
	stats        Stats
	nowFunc      func() time.Time
}

// New creates a Breaker for the named dependency, applying defaults for any
// zero-valued config fields.
func New(name string, config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 10 * time.Second
	}
	if config.ProbeSuccessThreshold <= 0 {
		config.ProbeSuccessThreshold = 3
	}

	return &Breaker{
		name:    name,
		config:  config,
		state:   StateClosed,
		nowFunc: time.Now,
	}
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// Execute runs op through the breaker with no fallback.
func (b *Breaker) Execute(ctx context.Context, op Operation) (any, error) {
	return b.ExecuteWithFallback(ctx, op, nil)
}

// ExecuteWithFallback runs op through the breaker. If the call is rejected
// or fails and a fallback is supplied, the fallback is invoked; a fallback
// failure never masks the primary error.
func (b *Breaker) ExecuteWithFallback(ctx context.Context, op Operation, fallback Operation) (any, error) {
	if err := b.allow(); err != nil {
		if fallback != nil {
			if result, fbErr := fallback(ctx); fbErr == nil {
				return result, nil
			}
		}
		return nil, err
	}

	result, err := b.call(ctx, op)
	if err != nil {
		if fallback != nil {
			if fbResult, fbErr := fallback(ctx); fbErr == nil {
				return fbResult, nil
			}
		}
		return nil, err
	}

	return result, nil
}

// call invokes op racing it against the configured timeout and records the
// outcome exactly once. A completion arriving after the timeout fired is
// discarded so it cannot mutate breaker state a second time.
func (b *Breaker) call(ctx context.Context, op Operation) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.config.CallTimeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		result, err := op(callCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			b.onFailure(false)
			return nil, out.err
		}
		b.onSuccess()
		return out.result, nil
	case <-callCtx.Done():
		b.onFailure(true)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TimeoutError{Dependency: b.name, Timeout: b.config.CallTimeout}
	}
}

// allow evaluates the state machine for an incoming call. It returns nil if
// the call may proceed, or an OpenError carrying a retry-after estimate.
func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.TotalRequests++

	switch b.currentStateLocked() {
	case StateOpen:
		b.stats.Rejections++
		retryAfter := b.config.ResetTimeout - b.nowFunc().Sub(b.openedAt)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &OpenError{Dependency: b.name, RetryAfter: retryAfter}
	default:
		return nil
	}
}

// currentStateLocked resolves the effective state, lazily moving an expired
// open circuit to half-open. Caller must hold b.mu. Forced states never
// self-transition.
func (b *Breaker) currentStateLocked() State {
	if b.forced {
		return b.state
	}
	if b.state == StateOpen && b.nowFunc().Sub(b.openedAt) >= b.config.ResetTimeout {
		b.transitionLocked(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) onSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Successes++

	if b.forced {
		return
	}

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.probeSuccess++
		if b.probeSuccess >= b.config.ProbeSuccessThreshold {
			b.transitionLocked(StateClosed)
		}
	}
}

func (b *Breaker) onFailure(timedOut bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.stats.Failures++
	if timedOut {
		b.stats.Timeouts++
	}
	b.lastFailure = b.nowFunc()

	if b.forced {
		return
	}

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		// A single failed probe reopens the circuit immediately.
		b.transitionLocked(StateOpen)
	}
}

// transitionLocked moves to the given state and resets per-state counters.
// Caller must hold b.mu.
func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.stats.StateTransitions++

	switch to {
	case StateOpen:
		b.openedAt = b.nowFunc()
		b.probeSuccess = 0
	case StateHalfOpen:
		b.probeSuccess = 0
	case StateClosed:
		b.failures = 0
		b.probeSuccess = 0
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.name, from, to)
	}
}

// State returns the current effective state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentStateLocked()
}

// ForceOpen pins the breaker open until ForceClosed or Reset is called.
// In-flight calls already admitted are unaffected.
func (b *Breaker) ForceOpen() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forced = true
	b.openedAt = b.nowFunc()
	b.transitionLocked(StateOpen)
}

// ForceClosed pins the breaker closed until Reset is called.
func (b *Breaker) ForceClosed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forced = true
	b.transitionLocked(StateClosed)
}

// Reset returns the breaker to a pristine closed state, clearing any forced
// override and all consecutive counters. Cumulative stats are preserved.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forced = false
	b.failures = 0
	b.probeSuccess = 0
	b.transitionLocked(StateClosed)
}

// Snapshot returns a point-in-time view of the breaker for health reporting.
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Snapshot{
		Name:             b.name,
		State:            b.currentStateLocked().String(),
		ConsecutiveFails: b.failures,
		LastFailureAt:    b.lastFailure,
		Stats:            b.stats,
	}
}
