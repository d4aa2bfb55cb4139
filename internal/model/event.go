package model

import "time"

// InvalidationEvent is the wire message published on the invalidation
// channel after a successful write. It carries no data, only the cache key
// to evict and the identity of the replica that performed the write so that
// replica can skip its own event.
type InvalidationEvent struct {
	CacheKey   string    `json:"cacheKey"`
	Timestamp  time.Time `json:"timestamp"`
	InstanceID string    `json:"instanceId"`
}
