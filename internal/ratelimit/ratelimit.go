// Package ratelimit implements admission control for inbound requests,
// keyed by caller identity and partitioned by route class. Two strategies
// are supported per class: a fixed request-count window and a weighted
// point budget where each operation kind carries an integer cost.
package ratelimit

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrLimited is the sentinel wrapped by every admission rejection, so
// callers can match with errors.Is without caring about the reason.
var ErrLimited = errors.New("rate limit exceeded")

// Class names the independent budgets. A caller's AI budget is tracked
// separately from their general budget: the class prefixes the admission
// key, so classes never interfere.
type Class string

const (
	ClassGeneral  Class = "general"
	ClassAuth     Class = "auth"
	ClassMutation Class = "mutation"
	ClassAI       Class = "ai"
	ClassUpload   Class = "upload"
)

// Strategy selects how a class accounts admissions.
type Strategy string

const (
	// StrategyFixedWindow admits up to Max requests per window.
	StrategyFixedWindow Strategy = "fixed_window"
	// StrategyPoints admits a request only while the window's accumulated
	// cost stays within Max points.
	StrategyPoints Strategy = "points"
)

// Operation kinds and their point costs under StrategyPoints.
type Operation string

const (
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpDelete Operation = "delete"
	OpAICall Operation = "ai_call"
	OpAuth   Operation = "auth"
	OpUpload Operation = "upload"
)

// operationCosts maps each operation kind to its weight.
var operationCosts = map[Operation]int{
	OpRead:   1,
	OpWrite:  2,
	OpDelete: 3,
	OpAICall: 10,
	OpAuth:   5,
	OpUpload: 15,
}

// Cost returns the point cost of an operation kind. Unknown kinds cost 1 so
// a misconfigured call site degrades to the cheapest budget, not a bypass.
func Cost(op Operation) int {
	if c, ok := operationCosts[op]; ok {
		return c
	}
	return 1
}

// ClassConfig holds the budget for one route class.
type ClassConfig struct {
	// Strategy selects fixed-window or point accounting.
	// Default: StrategyFixedWindow.
	Strategy Strategy

	// Window is the budget period. Default: 1 minute.
	Window time.Duration

	// Max is the request count (fixed window) or point budget (points)
	// per window. Default: 100.
	Max int
}

// window is the per-key accounting record. count holds requests or points
// depending on the class strategy.
type window struct {
	start time.Time
	count int
}

// Limiter gates inbound requests. One instance serves all classes; state is
// partitioned by class-prefixed admission key. Safe for concurrent use.
type Limiter struct {
	classes map[Class]ClassConfig
	logger  *slog.Logger

	mu      sync.Mutex
	windows map[string]*window
	nowFunc func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewLimiter creates a Limiter with the given per-class budgets, applying
// defaults for any zero-valued fields. Classes cannot be added later;
// requests for an unconfigured class are denied.
func NewLimiter(classes map[Class]ClassConfig, logger *slog.Logger) *Limiter {
	if logger == nil {
		logger = slog.Default()
	}

	normalized := make(map[Class]ClassConfig, len(classes))
	for class, cfg := range classes {
		if cfg.Strategy == "" {
			cfg.Strategy = StrategyFixedWindow
		}
		if cfg.Window <= 0 {
			cfg.Window = time.Minute
		}
		if cfg.Max <= 0 {
			cfg.Max = 100
		}
		normalized[class] = cfg
	}

	return &Limiter{
		classes: normalized,
		logger:  logger.With(slog.String("component", "rate_limiter")),
		windows: make(map[string]*window),
		nowFunc: time.Now,
		stopCh:  make(chan struct{}),
	}
}

// Allow admits or rejects one request for the class under the admission key
// (caller identity or network origin, derived by the caller). For point
// classes the op's cost is checked and consumed atomically, so two
// concurrent requests can never both pass a budget boundary.
func (l *Limiter) Allow(class Class, key string, op Operation) error {
	cfg, ok := l.classes[class]
	if !ok {
		// Deny by default: an unconfigured class is a config error, not a
		// free pass.
		l.logger.Warn("admission check for unconfigured class", slog.String("class", string(class)))
		return &Error{Class: class, Reason: ReasonUnknownClass, RetryAfter: time.Minute}
	}

	cost := 1
	if cfg.Strategy == StrategyPoints {
		cost = Cost(op)
	}

	bucketKey := string(class) + ":" + key

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()

	w, ok := l.windows[bucketKey]
	if !ok {
		w = &window{start: now}
		l.windows[bucketKey] = w
	}

	// Lazy reset: no background timer is needed for correctness.
	if now.Sub(w.start) > cfg.Window {
		w.start = now
		w.count = 0
	}

	if w.count+cost > cfg.Max {
		retryAfter := cfg.Window - now.Sub(w.start)
		if retryAfter < 0 {
			retryAfter = 0
		}
		reason := ReasonRequestBudget
		if cfg.Strategy == StrategyPoints {
			reason = ReasonPointBudget
		}
		return &Error{Class: class, Reason: reason, RetryAfter: retryAfter}
	}

	w.count += cost
	return nil
}

// Sweep drops idle windows whose period has fully elapsed. It exists only
// to bound memory; admission correctness relies on the lazy reset above.
// Returns the number of keys reclaimed.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	removed := 0
	for key, w := range l.windows {
		class, _, found := cutClass(key)
		if !found {
			delete(l.windows, key)
			removed++
			continue
		}
		cfg := l.classes[Class(class)]
		if now.Sub(w.start) > cfg.Window {
			delete(l.windows, key)
			removed++
		}
	}
	return removed
}

// KeyCount returns the number of tracked admission keys, for observability.
func (l *Limiter) KeyCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// StartSweeping launches a background goroutine that calls Sweep on the
// given interval until Stop is called.
func (l *Limiter) StartSweeping(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := l.Sweep(); removed > 0 {
					l.logger.Debug("swept idle rate limit keys", slog.Int("removed", removed))
				}
			case <-l.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the background sweep loop. Safe to call more than once.
func (l *Limiter) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopCh)
	})
}

// cutClass splits a bucket key back into its class prefix and caller key.
func cutClass(bucketKey string) (class, key string, found bool) {
	for i := 0; i < len(bucketKey); i++ {
		if bucketKey[i] == ':' {
			return bucketKey[:i], bucketKey[i+1:], true
		}
	}
	return "", "", false
}

// Reason is the machine-readable cause of a rejection.
type Reason string

const (
	// ReasonRequestBudget means the fixed-window request count was exceeded.
	ReasonRequestBudget Reason = "request_budget_exceeded"
	// ReasonPointBudget means the weighted point budget was exceeded.
	ReasonPointBudget Reason = "point_budget_exceeded"
	// ReasonUnknownClass means the route class has no configured budget.
	ReasonUnknownClass Reason = "unknown_class"
)

// Error is the typed admission rejection. RetryAfter is the time until the
// caller's window resets.
type Error struct {
	Class      Class
	Reason     Reason
	RetryAfter time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded for class %s (%s), retry after %s",
		e.Class, e.Reason, e.RetryAfter.Round(time.Second))
}

// Unwrap lets errors.Is match rejections against ErrLimited.
func (e *Error) Unwrap() error { return ErrLimited }

// RetryAfterSeconds returns the retry-after hint rounded up to whole
// seconds, as surfaced in the Retry-After response header.
func (e *Error) RetryAfterSeconds() int {
	secs := int((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
