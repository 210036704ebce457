package cache

// Event identifies the cache operation an observer is being told about.
type Event string

const (
	EventHit    Event = "hit"
	EventMiss   Event = "miss"
	EventSet    Event = "set"
	EventDelete Event = "delete"
	EventEvict  Event = "evict"
	EventExpire Event = "expire"
)

// Observer receives synchronous notifications for tier operations. Observers
// must be fast; they run under the tier lock on the calling goroutine.
type Observer func(event Event, tier, key string)
