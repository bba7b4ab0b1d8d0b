// Package cache provides an in-process TTL cache for retrieval results.
//
// TTL expiry is the only eviction mechanism. There is no invalidation hook
// on corpus changes; callers accept the staleness window bounded by the TTL.
package cache

import (
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultTTL applies when no TTL is configured.
const DefaultTTL = 5 * time.Minute

// TTL is a key-value cache whose entries expire after a fixed duration.
// Safe for concurrent use.
type TTL[V any] struct {
	inner  *ttlcache.Cache[string, V]
	logger *slog.Logger
}

// NewTTL creates a TTL cache and starts its expiry loop. Call Stop when the
// cache is no longer needed.
func NewTTL[V any](ttl time.Duration, logger *slog.Logger) *TTL[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	inner := ttlcache.New[string, V](
		ttlcache.WithTTL[string, V](ttl),
		// A hit must not extend the entry's life: results go stale on a
		// fixed schedule regardless of access pattern.
		ttlcache.WithDisableTouchOnHit[string, V](),
	)
	go inner.Start()

	return &TTL[V]{inner: inner, logger: logger}
}

// Get returns the cached value for key, if present and unexpired.
func (c *TTL[V]) Get(key string) (V, bool) {
	item := c.inner.Get(key)
	if item == nil {
		var zero V
		return zero, false
	}
	return item.Value(), true
}

// Set stores value under key with the configured TTL, replacing any
// existing entry.
func (c *TTL[V]) Set(key string, value V) {
	c.inner.Set(key, value, ttlcache.DefaultTTL)
}

// Delete removes key if present.
func (c *TTL[V]) Delete(key string) {
	c.inner.Delete(key)
}

// Len returns the number of unexpired entries.
func (c *TTL[V]) Len() int {
	return c.inner.Len()
}

// Stop terminates the expiry loop. The cache remains usable afterwards but
// expired entries are only dropped lazily on access.
func (c *TTL[V]) Stop() {
	c.inner.Stop()
}
