package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(classes map[Class]ClassConfig) (*Limiter, *time.Time) {
	l := NewLimiter(classes, nil)
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l.nowFunc = func() time.Time { return now }
	return l, &now
}

func TestFixedWindowAdmission(t *testing.T) {
	l, _ := newTestLimiter(map[Class]ClassConfig{
		ClassGeneral: {Strategy: StrategyFixedWindow, Window: time.Minute, Max: 3},
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow(ClassGeneral, "user-1", OpRead))
	}

	err := l.Allow(ClassGeneral, "user-1", OpRead)
	require.Error(t, err)

	var rlErr *Error
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, ClassGeneral, rlErr.Class)
	assert.Equal(t, ReasonRequestBudget, rlErr.Reason)
	assert.Equal(t, 60, rlErr.RetryAfterSeconds())
}

func TestWindowResetAfterExpiry(t *testing.T) {
	l, now := newTestLimiter(map[Class]ClassConfig{
		ClassGeneral: {Strategy: StrategyFixedWindow, Window: time.Minute, Max: 2},
	})

	require.NoError(t, l.Allow(ClassGeneral, "user-1", OpRead))
	require.NoError(t, l.Allow(ClassGeneral, "user-1", OpRead))
	require.Error(t, l.Allow(ClassGeneral, "user-1", OpRead))

	// A key that waits out the window is admitted with a fresh counter.
	*now = now.Add(61 * time.Second)

	require.NoError(t, l.Allow(ClassGeneral, "user-1", OpRead))
	require.NoError(t, l.Allow(ClassGeneral, "user-1", OpRead))
	require.Error(t, l.Allow(ClassGeneral, "user-1", OpRead))
}

func TestPointBudget(t *testing.T) {
	l, _ := newTestLimiter(map[Class]ClassConfig{
		ClassAI: {Strategy: StrategyPoints, Window: time.Minute, Max: 25},
	})

	// Two AI calls (10 points each) fit, a third does not.
	require.NoError(t, l.Allow(ClassAI, "user-1", OpAICall))
	require.NoError(t, l.Allow(ClassAI, "user-1", OpAICall))

	err := l.Allow(ClassAI, "user-1", OpAICall)
	require.Error(t, err)

	var rlErr *Error
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, ReasonPointBudget, rlErr.Reason)

	// But a cheap read (1 point) still fits in the remaining 5.
	require.NoError(t, l.Allow(ClassAI, "user-1", OpRead))
}

func TestOperationCosts(t *testing.T) {
	tests := []struct {
		op   Operation
		cost int
	}{
		{OpRead, 1},
		{OpWrite, 2},
		{OpDelete, 3},
		{OpAuth, 5},
		{OpAICall, 10},
		{OpUpload, 15},
		{Operation("mystery"), 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.cost, Cost(tt.op), "cost of %s", tt.op)
	}
}

func TestClassBudgetsAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(map[Class]ClassConfig{
		ClassGeneral: {Strategy: StrategyFixedWindow, Window: time.Minute, Max: 1},
		ClassAI:      {Strategy: StrategyPoints, Window: time.Minute, Max: 10},
	})

	// Exhausting the general budget must not touch the AI budget for the
	// same caller.
	require.NoError(t, l.Allow(ClassGeneral, "user-1", OpRead))
	require.Error(t, l.Allow(ClassGeneral, "user-1", OpRead))

	assert.NoError(t, l.Allow(ClassAI, "user-1", OpAICall))
}

func TestKeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(map[Class]ClassConfig{
		ClassGeneral: {Strategy: StrategyFixedWindow, Window: time.Minute, Max: 1},
	})

	require.NoError(t, l.Allow(ClassGeneral, "user-1", OpRead))
	require.Error(t, l.Allow(ClassGeneral, "user-1", OpRead))
	assert.NoError(t, l.Allow(ClassGeneral, "user-2", OpRead))
}

func TestUnknownClassDenied(t *testing.T) {
	l, _ := newTestLimiter(map[Class]ClassConfig{})

	err := l.Allow(Class("bogus"), "user-1", OpRead)
	require.Error(t, err)

	var rlErr *Error
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, ReasonUnknownClass, rlErr.Reason)
}

// TestPointBudgetAtomicity hammers a near-exhausted budget from many
// goroutines; the admitted total must never exceed the budget.
func TestPointBudgetAtomicity(t *testing.T) {
	l := NewLimiter(map[Class]ClassConfig{
		ClassAI: {Strategy: StrategyPoints, Window: time.Minute, Max: 15},
	}, nil)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)

	// 15 points: only one 10-point call can win.
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Allow(ClassAI, "user-1", OpAICall); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, admitted, "combined cost beyond the budget must never be admitted")
}

func TestSweepReclaimsIdleKeys(t *testing.T) {
	l, now := newTestLimiter(map[Class]ClassConfig{
		ClassGeneral: {Strategy: StrategyFixedWindow, Window: time.Minute, Max: 10},
	})

	require.NoError(t, l.Allow(ClassGeneral, "user-1", OpRead))
	require.NoError(t, l.Allow(ClassGeneral, "user-2", OpRead))
	assert.Equal(t, 2, l.KeyCount())

	// Nothing to reclaim while windows are live.
	assert.Equal(t, 0, l.Sweep())

	*now = now.Add(2 * time.Minute)
	assert.Equal(t, 2, l.Sweep())
	assert.Equal(t, 0, l.KeyCount())
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Class: ClassAuth, Reason: ReasonRequestBudget, RetryAfter: 42 * time.Second}
	assert.Contains(t, err.Error(), "auth")
	assert.Contains(t, err.Error(), "request_budget_exceeded")

	var target *Error
	assert.True(t, errors.As(err, &target))
	assert.ErrorIs(t, err, ErrLimited)
}

func TestStartSweepingStop(t *testing.T) {
	l := NewLimiter(map[Class]ClassConfig{
		ClassGeneral: {Window: 5 * time.Millisecond, Max: 10},
	}, nil)

	require.NoError(t, l.Allow(ClassGeneral, "user-1", OpRead))
	l.StartSweeping(10 * time.Millisecond)
	defer l.Stop()

	assert.Eventually(t, func() bool {
		return l.KeyCount() == 0
	}, time.Second, 5*time.Millisecond)

	l.Stop()
	l.Stop() // idempotent
}
