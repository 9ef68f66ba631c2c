package moniker

import (
	"sync"
	"time"
)

// resolutionCache holds resolved bindings keyed by moniker URI for a fixed
// TTL. A non-positive TTL disables caching entirely. Expiry is measured on
// the monotonic clock, so wall-clock adjustments do not extend or shorten
// entry lifetimes.
type resolutionCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	resolved *ResolvedSource
	storedAt time.Time
}

func newResolutionCache(ttl time.Duration) *resolutionCache {
	return &resolutionCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// get returns the cached binding for uri when present and fresh.
func (c *resolutionCache) get(uri string) (*ResolvedSource, bool) {
	if c.ttl <= 0 {
		return nil, false
	}
	c.mu.RLock()
	e, ok := c.entries[uri]
	c.mu.RUnlock()
	if !ok || c.now().Sub(e.storedAt) >= c.ttl {
		return nil, false
	}
	return e.resolved, true
}

// put stores a binding under uri. No-op when caching is disabled.
func (c *resolutionCache) put(uri string, rs *ResolvedSource) {
	if c.ttl <= 0 || rs == nil {
		return
	}
	c.mu.Lock()
	c.entries[uri] = cacheEntry{resolved: rs, storedAt: c.now()}
	c.mu.Unlock()
}

// invalidate drops a single entry.
func (c *resolutionCache) invalidate(uri string) {
	c.mu.Lock()
	delete(c.entries, uri)
	c.mu.Unlock()
}

// clear drops every entry.
func (c *resolutionCache) clear() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *resolutionCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
