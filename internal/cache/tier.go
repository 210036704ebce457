package cache

import (
	"container/list"
	"sync"
	"time"
)

// pruneBatchSize caps how many entries a single prune pass inspects per
// tier, keeping sweep work bounded for large key counts.
const pruneBatchSize = 256

type entry struct {
	key       string
	value     any
	expiresAt time.Time
}

// tier is one named cache partition. Recency is tracked with an intrusive
// list: the front is most recently used, eviction pops the back.
type tier struct {
	name   string
	config TierConfig

	mu        sync.Mutex
	entries   map[string]*list.Element // element value is *entry
	order     *list.List
	counters  TierStats
	observers []Observer
	nowFunc   func() time.Time
}

func newTier(name string, config TierConfig) *tier {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = 1000
	}

	return &tier{
		name:    name,
		config:  config,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		nowFunc: time.Now,
	}
}

func (t *tier) get(key string) (any, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.entries[key]
	if !ok {
		t.counters.Misses++
		t.notifyLocked(EventMiss, key)
		return nil, false
	}

	e := elem.Value.(*entry)
	if t.nowFunc().After(e.expiresAt) {
		t.removeLocked(elem)
		t.counters.Expired++
		t.counters.Misses++
		t.notifyLocked(EventExpire, key)
		t.notifyLocked(EventMiss, key)
		return nil, false
	}

	t.order.MoveToFront(elem)
	t.counters.Hits++
	t.notifyLocked(EventHit, key)
	return e.value, true
}

func (t *tier) set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = t.config.DefaultTTL
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFunc()

	if elem, ok := t.entries[key]; ok {
		e := elem.Value.(*entry)
		e.value = value
		e.expiresAt = now.Add(ttl)
		t.order.MoveToFront(elem)
	} else {
		// Make room before inserting so the bound is never exceeded.
		for t.order.Len() >= t.config.MaxEntries {
			oldest := t.order.Back()
			if oldest == nil {
				break
			}
			evicted := oldest.Value.(*entry)
			t.removeLocked(oldest)
			t.counters.Evicted++
			t.notifyLocked(EventEvict, evicted.key)
		}

		e := &entry{key: key, value: value, expiresAt: now.Add(ttl)}
		t.entries[key] = t.order.PushFront(e)
	}

	t.counters.Sets++
	t.notifyLocked(EventSet, key)
}

func (t *tier) delete(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, ok := t.entries[key]; ok {
		t.removeLocked(elem)
	}
	t.counters.Deletes++
	t.notifyLocked(EventDelete, key)
}

func (t *tier) has(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	elem, ok := t.entries[key]
	if !ok {
		return false
	}
	if t.nowFunc().After(elem.Value.(*entry).expiresAt) {
		t.removeLocked(elem)
		t.counters.Expired++
		t.notifyLocked(EventExpire, key)
		return false
	}
	return true
}

func (t *tier) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make(map[string]*list.Element)
	t.order.Init()
}

func (t *tier) prune() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFunc()
	removed := 0
	inspected := 0

	// Walk from the LRU end; stale entries cluster there.
	for elem := t.order.Back(); elem != nil && inspected < pruneBatchSize; {
		prev := elem.Prev()
		e := elem.Value.(*entry)
		if now.After(e.expiresAt) {
			t.removeLocked(elem)
			t.counters.Expired++
			t.notifyLocked(EventExpire, e.key)
			removed++
		}
		elem = prev
		inspected++
	}

	return removed
}

func (t *tier) stats() TierStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.counters
	s.Keys = len(t.entries)
	return s
}

func (t *tier) subscribe(obs Observer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.observers = append(t.observers, obs)
}

// removeLocked drops the element from both the map and the recency list.
// Caller must hold t.mu.
func (t *tier) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(t.entries, e.key)
	t.order.Remove(elem)
}

// notifyLocked invokes observers synchronously. Caller must hold t.mu.
func (t *tier) notifyLocked(event Event, key string) {
	for _, obs := range t.observers {
		obs(event, t.name, key)
	}
}
