package briefing

import (
	"context"
	"sync"
	"time"
)

type cachedEntry struct {
	briefing     Briefing
	generatedAt  time.Time
	graphVersion uint64
}

// Cache holds one briefing per agent, invalidated whenever the graph
// version at generation time no longer matches the current one, or the
// configured TTL elapses.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cachedEntry
	ttl     time.Duration
}

// NewCache constructs an empty Cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{entries: make(map[string]cachedEntry), ttl: ttl}
}

// Get returns the cached briefing for agentID if its graph version still
// matches currentVersion and the TTL has not elapsed.
func (c *Cache) Get(agentID string, currentVersion uint64) (Briefing, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[agentID]
	if !ok {
		return Briefing{}, false
	}
	if e.graphVersion != currentVersion || time.Since(e.generatedAt) >= c.ttl {
		return Briefing{}, false
	}
	b := e.briefing
	b.Cached = true
	return b, true
}

// Put stores b for agentID, stamped with the graph version it was
// generated against.
func (c *Cache) Put(agentID string, b Briefing, version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[agentID] = cachedEntry{briefing: b, generatedAt: time.Now(), graphVersion: version}
}

// Invalidate drops any cached briefing for agentID.
func (c *Cache) Invalidate(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, agentID)
}

// GenerateCached returns a cached briefing for agentID if still valid,
// otherwise generates, caches, and returns a fresh one.
func (e *Engine) GenerateCached(ctx context.Context, agentID string, cache *Cache) (Briefing, error) {
	version := e.storage.GraphVersion()
	if b, ok := cache.Get(agentID, version); ok {
		return b, nil
	}
	b, err := e.Generate(ctx, agentID)
	if err != nil {
		return Briefing{}, err
	}
	cache.Put(agentID, b, version)
	return b, nil
}
