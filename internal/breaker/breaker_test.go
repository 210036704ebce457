package breaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// fakeClock lets tests advance breaker time deterministically instead of
// sleeping through reset timeouts.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(config Config) (*Breaker, *fakeClock) {
	b := New("test-dep", config)
	clock := newFakeClock()
	b.nowFunc = clock.Now
	return b, clock
}

func failingOp(ctx context.Context) (any, error) {
	return nil, errBoom
}

func succeedingOp(ctx context.Context) (any, error) {
	return "ok", nil
}

func TestBreakerStaysClosedBelowThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3})

	for i := 0; i < 2; i++ {
		_, err := b.Execute(context.Background(), failingOp)
		require.ErrorIs(t, err, errBoom)
	}

	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3})

	for i := 0; i < 3; i++ {
		_, err := b.Execute(context.Background(), failingOp)
		require.ErrorIs(t, err, errBoom)
	}

	require.Equal(t, StateOpen, b.State())

	// The very next call must be rejected without invoking the operation.
	invoked := false
	_, err := b.Execute(context.Background(), func(ctx context.Context) (any, error) {
		invoked = true
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, invoked, "operation must not run while circuit is open")
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3})

	_, err := b.Execute(context.Background(), failingOp)
	require.ErrorIs(t, err, errBoom)
	_, err = b.Execute(context.Background(), failingOp)
	require.ErrorIs(t, err, errBoom)

	_, err = b.Execute(context.Background(), succeedingOp)
	require.NoError(t, err)

	// Two more failures should not reach the threshold again.
	_, _ = b.Execute(context.Background(), failingOp)
	_, _ = b.Execute(context.Background(), failingOp)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreakerRecovery(t *testing.T) {
	b, clock := newTestBreaker(Config{
		FailureThreshold:      3,
		ResetTimeout:          time.Second,
		ProbeSuccessThreshold: 3,
	})

	for i := 0; i < 3; i++ {
		_, _ = b.Execute(context.Background(), failingOp)
	}
	require.Equal(t, StateOpen, b.State())

	// Before the reset timeout elapses calls are rejected.
	clock.Advance(500 * time.Millisecond)
	_, err := b.Execute(context.Background(), succeedingOp)
	require.ErrorIs(t, err, ErrCircuitOpen)

	var openErr *OpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, "test-dep", openErr.Dependency)
	assert.Greater(t, openErr.RetryAfter, time.Duration(0))

	// After the reset timeout the breaker admits probes.
	clock.Advance(600 * time.Millisecond)
	_, err = b.Execute(context.Background(), succeedingOp)
	require.NoError(t, err)
	assert.Equal(t, StateHalfOpen, b.State())

	// Two more successful probes close the circuit.
	_, err = b.Execute(context.Background(), succeedingOp)
	require.NoError(t, err)
	_, err = b.Execute(context.Background(), succeedingOp)
	require.NoError(t, err)

	snap := b.Snapshot()
	assert.Equal(t, "closed", snap.State)
	assert.Equal(t, 0, snap.ConsecutiveFails)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(Config{
		FailureThreshold:      2,
		ResetTimeout:          time.Second,
		ProbeSuccessThreshold: 3,
	})

	_, _ = b.Execute(context.Background(), failingOp)
	_, _ = b.Execute(context.Background(), failingOp)
	require.Equal(t, StateOpen, b.State())

	clock.Advance(1100 * time.Millisecond)
	require.Equal(t, StateHalfOpen, b.State())

	// A successful probe does not close the circuit yet.
	_, err := b.Execute(context.Background(), succeedingOp)
	require.NoError(t, err)
	require.Equal(t, StateHalfOpen, b.State())

	// A single failure while half-open reopens immediately.
	_, err = b.Execute(context.Background(), failingOp)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, StateOpen, b.State())

	// And the open window starts over.
	clock.Advance(500 * time.Millisecond)
	_, err = b.Execute(context.Background(), succeedingOp)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerTimeoutCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(Config{
		FailureThreshold: 2,
		CallTimeout:      20 * time.Millisecond,
	})

	slowOp := func(ctx context.Context) (any, error) {
		select {
		case <-time.After(time.Second):
			return "late", nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	_, err := b.Execute(context.Background(), slowOp)
	require.ErrorIs(t, err, ErrCallTimeout)
	_, err = b.Execute(context.Background(), slowOp)
	require.ErrorIs(t, err, ErrCallTimeout)

	snap := b.Snapshot()
	assert.Equal(t, "open", snap.State)
	assert.Equal(t, uint64(2), snap.Stats.Failures)
	assert.Equal(t, uint64(2), snap.Stats.Timeouts)
}

func TestBreakerLateCompletionDoesNotDoubleCount(t *testing.T) {
	b, _ := newTestBreaker(Config{
		FailureThreshold: 5,
		CallTimeout:      10 * time.Millisecond,
	})

	release := make(chan struct{})
	slowOp := func(ctx context.Context) (any, error) {
		<-release
		return "late", nil
	}

	_, err := b.Execute(context.Background(), slowOp)
	require.ErrorIs(t, err, ErrCallTimeout)

	// Let the abandoned goroutine finish and give it a chance to (wrongly)
	// record a second outcome.
	close(release)
	time.Sleep(20 * time.Millisecond)

	snap := b.Snapshot()
	assert.Equal(t, uint64(1), snap.Stats.Failures)
	assert.Equal(t, uint64(0), snap.Stats.Successes)
}

func TestBreakerFallbackOnOpenCircuit(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 1})

	_, _ = b.Execute(context.Background(), failingOp)
	require.Equal(t, StateOpen, b.State())

	result, err := b.ExecuteWithFallback(context.Background(), failingOp,
		func(ctx context.Context) (any, error) {
			return "fallback-value", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "fallback-value", result)
}

func TestBreakerFallbackFailureSurfacesPrimaryError(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 5})

	// Primary fails, fallback also fails: the primary's error wins.
	_, err := b.ExecuteWithFallback(context.Background(), failingOp,
		func(ctx context.Context) (any, error) {
			return nil, errors.New("fallback broke too")
		})
	assert.ErrorIs(t, err, errBoom)

	// Same rule for an open-circuit rejection.
	b2, _ := newTestBreaker(Config{FailureThreshold: 1})
	_, _ = b2.Execute(context.Background(), failingOp)
	require.Equal(t, StateOpen, b2.State())

	_, err = b2.ExecuteWithFallback(context.Background(), succeedingOp,
		func(ctx context.Context) (any, error) {
			return nil, errors.New("fallback broke too")
		})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestBreakerForcedStates(t *testing.T) {
	b, _ := newTestBreaker(Config{FailureThreshold: 3})

	b.ForceOpen()
	_, err := b.Execute(context.Background(), succeedingOp)
	require.ErrorIs(t, err, ErrCircuitOpen)

	b.ForceClosed()
	_, err = b.Execute(context.Background(), succeedingOp)
	require.NoError(t, err)

	// While forced closed, failures do not open the circuit.
	for i := 0; i < 5; i++ {
		_, _ = b.Execute(context.Background(), failingOp)
	}
	assert.Equal(t, StateClosed, b.State())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	snap := b.Snapshot()
	assert.Equal(t, 0, snap.ConsecutiveFails)
}

func TestBreakerIndependentInstances(t *testing.T) {
	a, _ := newTestBreaker(Config{FailureThreshold: 1})
	c := New("other-dep", Config{FailureThreshold: 1})

	_, _ = a.Execute(context.Background(), failingOp)
	require.Equal(t, StateOpen, a.State())
	assert.Equal(t, StateClosed, c.State(), "a failure storm on one dependency must not open another's breaker")
}

func TestBreakerStateChangeCallback(t *testing.T) {
	var transitions []string
	b := New("dep", Config{
		FailureThreshold: 1,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})
	clock := newFakeClock()
	b.nowFunc = clock.Now

	_, _ = b.Execute(context.Background(), failingOp)
	clock.Advance(time.Minute)
	_, _ = b.Execute(context.Background(), succeedingOp)

	require.NotEmpty(t, transitions)
	assert.Equal(t, "closed->open", transitions[0])
	assert.Equal(t, "open->half-open", transitions[1])
}

// TestBreakerEndToEndScenario walks the full lifecycle: three consecutive
// failures open the circuit, a call at t+500ms is rejected, a call at
// t+1100ms runs as a half-open probe, and after three probe successes the
// breaker is closed with a zero failure count.
func TestBreakerEndToEndScenario(t *testing.T) {
	b, clock := newTestBreaker(Config{
		FailureThreshold:      3,
		ResetTimeout:          time.Second,
		ProbeSuccessThreshold: 3,
	})

	for i := 0; i < 3; i++ {
		_, err := b.Execute(context.Background(), failingOp)
		require.ErrorIs(t, err, errBoom)
	}
	require.Equal(t, StateOpen, b.State())

	clock.Advance(500 * time.Millisecond)
	_, err := b.Execute(context.Background(), succeedingOp)
	require.ErrorIs(t, err, ErrCircuitOpen)

	clock.Advance(600 * time.Millisecond)
	for i := 0; i < 3; i++ {
		_, err = b.Execute(context.Background(), succeedingOp)
		require.NoError(t, err)
	}

	snap := b.Snapshot()
	assert.Equal(t, "closed", snap.State)
	assert.Equal(t, 0, snap.ConsecutiveFails)
	assert.Equal(t, uint64(3), snap.Stats.Failures)
	assert.Equal(t, uint64(1), snap.Stats.Rejections)
}

func TestRegistrySnapshots(t *testing.T) {
	r := NewRegistry()
	r.Register(New("ai", Config{}))
	r.Register(New("database", Config{}))

	assert.NotNil(t, r.Get("ai"))
	assert.Nil(t, r.Get("missing"))

	snaps := r.Snapshots()
	require.Len(t, snaps, 2)

	names := []string{snaps[0].Name, snaps[1].Name}
	assert.ElementsMatch(t, []string{"ai", "database"}, names)
}
