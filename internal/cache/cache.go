// Package cache implements the tiered in-process cache used to absorb
// repeat reads against slow or unreliable dependencies. Each tier is an
// independently configured partition with its own default TTL, size bound,
// and LRU eviction.
package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Well-known tier names configured at startup.
const (
	TierMain      = "main"
	TierSession   = "session"
	TierAIResults = "ai-results"
	TierRateLimit = "rate-limit"
)

// ErrUnknownTier is returned by write operations that name a tier the
// manager was not configured with. Read operations degrade to a miss.
var ErrUnknownTier = errors.New("unknown cache tier")

// TierConfig holds the per-tier policies.
type TierConfig struct {
	// DefaultTTL applies to entries stored without an explicit TTL.
	// Default: 5 minutes.
	DefaultTTL time.Duration

	// MaxEntries bounds the tier; inserting into a full tier evicts the
	// least-recently-used entry first. Default: 1000.
	MaxEntries int
}

// TierStats are the per-tier observability counters.
type TierStats struct {
	Keys    int    `json:"keys"`
	Hits    uint64 `json:"hits"`
	Misses  uint64 `json:"misses"`
	Sets    uint64 `json:"sets"`
	Deletes uint64 `json:"deletes"`
	Evicted uint64 `json:"evicted"`
	Expired uint64 `json:"expired"`
}

// Manager fronts a fixed set of named tiers. Construct one at startup and
// inject it; all methods are safe for concurrent use.
type Manager struct {
	tiers  map[string]*tier
	logger *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewManager creates a Manager with the given tier configurations. Tiers
// cannot be added after construction.
func NewManager(configs map[string]TierConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	tiers := make(map[string]*tier, len(configs))
	for name, cfg := range configs {
		tiers[name] = newTier(name, cfg)
	}

	return &Manager{
		tiers:  tiers,
		logger: logger.With(slog.String("component", "cache_manager")),
		stopCh: make(chan struct{}),
	}
}

// Get returns the value stored under key in the named tier. The second
// return is false on a miss, on an expired entry, or for an unknown tier.
func (m *Manager) Get(tierName, key string) (any, bool) {
	t, ok := m.tiers[tierName]
	if !ok {
		m.logger.Warn("get on unknown cache tier", slog.String("tier", tierName))
		return nil, false
	}
	return t.get(key)
}

// Set stores value under key in the named tier. A ttl of zero uses the
// tier's default. Returns ErrUnknownTier for an unconfigured tier.
func (m *Manager) Set(tierName, key string, value any, ttl time.Duration) error {
	t, ok := m.tiers[tierName]
	if !ok {
		m.logger.Warn("set on unknown cache tier", slog.String("tier", tierName))
		return fmt.Errorf("%w: %s", ErrUnknownTier, tierName)
	}
	t.set(key, value, ttl)
	return nil
}

// Delete removes key from the named tier. Idempotent; deleting an absent
// key or naming an unknown tier is not an error for the caller.
func (m *Manager) Delete(tierName, key string) {
	t, ok := m.tiers[tierName]
	if !ok {
		m.logger.Warn("delete on unknown cache tier", slog.String("tier", tierName))
		return
	}
	t.delete(key)
}

// Has reports whether key is present and unexpired in the named tier. An
// expired-but-unswept entry counts as absent.
func (m *Manager) Has(tierName, key string) bool {
	t, ok := m.tiers[tierName]
	if !ok {
		return false
	}
	return t.has(key)
}

// Clear drops every entry in the named tier.
func (m *Manager) Clear(tierName string) {
	t, ok := m.tiers[tierName]
	if !ok {
		m.logger.Warn("clear on unknown cache tier", slog.String("tier", tierName))
		return
	}
	t.clear()
}

// ClearAll drops every entry in every tier.
func (m *Manager) ClearAll() {
	for _, t := range m.tiers {
		t.clear()
	}
}

// Prune eagerly removes expired entries across all tiers. Work per tier is
// bounded so a large tier cannot stall the caller; repeat passes catch the
// remainder. Returns the number of entries removed.
func (m *Manager) Prune() int {
	removed := 0
	for _, t := range m.tiers {
		removed += t.prune()
	}
	return removed
}

// Stats returns per-tier counters keyed by tier name.
func (m *Manager) Stats() map[string]TierStats {
	stats := make(map[string]TierStats, len(m.tiers))
	for name, t := range m.tiers {
		stats[name] = t.stats()
	}
	return stats
}

// Subscribe registers an observer on the named tier. Observers are notified
// synchronously on each operation. Returns ErrUnknownTier for an
// unconfigured tier.
func (m *Manager) Subscribe(tierName string, obs Observer) error {
	t, ok := m.tiers[tierName]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTier, tierName)
	}
	t.subscribe(obs)
	return nil
}

// StartPruning launches a background goroutine that calls Prune on the
// given interval until Stop is called.
func (m *Manager) StartPruning(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := m.Prune(); removed > 0 {
					m.logger.Debug("pruned expired cache entries", slog.Int("removed", removed))
				}
			case <-m.stopCh:
				return
			}
		}
	}()
}

// Stop terminates the background prune loop. Safe to call more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
}
