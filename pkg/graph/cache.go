package graph

import (
	"sync"
	"sync/atomic"

	"github.com/cortex-db/cortex/pkg/cortex"
)

// AdjacencyEntry is one edge as seen from one of its endpoints.
type AdjacencyEntry struct {
	EdgeID   cortex.EdgeId
	Target   cortex.NodeId
	Relation cortex.Relation
	Weight   float32
}

// AdjacencyCache holds the full outgoing/incoming adjacency lists in memory,
// rebuilt lazily after any committed write invalidates it. Readers never
// block each other; a build in progress is serialized by buildMu.
type AdjacencyCache struct {
	mu       sync.RWMutex
	outgoing map[cortex.NodeId][]AdjacencyEntry
	incoming map[cortex.NodeId][]AdjacencyEntry
	valid    atomic.Bool

	buildMu sync.Mutex
}

// NewAdjacencyCache returns an empty, invalid cache. Call Invalidate (or
// rely on Store.OnCommit) to mark it for rebuild, and Build to populate it.
func NewAdjacencyCache() *AdjacencyCache {
	return &AdjacencyCache{}
}

// Invalidate marks the cache stale. The next Build call (or the lazy rebuild
// in Engine.ensureCache) repopulates it from edges.
func (c *AdjacencyCache) Invalidate() {
	c.valid.Store(false)
}

// Valid reports whether the cache currently reflects committed state.
func (c *AdjacencyCache) Valid() bool { return c.valid.Load() }

// Build repopulates the cache from the given edge list.
func (c *AdjacencyCache) Build(edges []cortex.Edge) {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	outgoing := make(map[cortex.NodeId][]AdjacencyEntry, len(edges))
	incoming := make(map[cortex.NodeId][]AdjacencyEntry, len(edges))
	for _, e := range edges {
		outgoing[e.From] = append(outgoing[e.From], AdjacencyEntry{EdgeID: e.ID, Target: e.To, Relation: e.Relation, Weight: e.Weight})
		incoming[e.To] = append(incoming[e.To], AdjacencyEntry{EdgeID: e.ID, Target: e.From, Relation: e.Relation, Weight: e.Weight})
	}

	c.mu.Lock()
	c.outgoing = outgoing
	c.incoming = incoming
	c.mu.Unlock()
	c.valid.Store(true)
}

// GetOutgoing returns the cached outgoing adjacency list for id.
func (c *AdjacencyCache) GetOutgoing(id cortex.NodeId) []AdjacencyEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.outgoing[id]
}

// GetIncoming returns the cached incoming adjacency list for id.
func (c *AdjacencyCache) GetIncoming(id cortex.NodeId) []AdjacencyEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.incoming[id]
}

// CacheStats reports the size of the cache for observability.
type CacheStats struct {
	Nodes int
	Valid bool
}

// Stats reports the number of distinct source nodes currently cached.
func (c *AdjacencyCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return CacheStats{Nodes: len(c.outgoing), Valid: c.valid.Load()}
}

// Clear empties the cache and marks it invalid.
func (c *AdjacencyCache) Clear() {
	c.mu.Lock()
	c.outgoing = nil
	c.incoming = nil
	c.mu.Unlock()
	c.valid.Store(false)
}
