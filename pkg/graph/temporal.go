package graph

import (
	"context"
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
)

// TemporalQueries answers questions about the graph's history: what changed
// since a point in time, a node's neighborhood as of a point in time, and a
// node's change timeline.
type TemporalQueries interface {
	ChangedSince(ctx context.Context, since time.Time, limit int) ([]cortex.Node, error)
	NeighborhoodAt(ctx context.Context, id cortex.NodeId, at time.Time) (Subgraph, error)
	Timeline(ctx context.Context, id cortex.NodeId) ([]ChangeEvent, error)
}

// temporalStore is the slice of *store.Store TemporalQueriesImpl needs.
type temporalStore interface {
	AllNodes(ctx context.Context) ([]cortex.Node, error)
}

// TemporalQueriesImpl answers TemporalQueries against an Engine plus the
// underlying node store, following the original graph/temporal.rs shape.
type TemporalQueriesImpl struct {
	engine *Engine
	store  temporalStore
}

// NewTemporalQueries builds a TemporalQueriesImpl over engine and store.
func NewTemporalQueries(engine *Engine, store temporalStore) *TemporalQueriesImpl {
	return &TemporalQueriesImpl{engine: engine, store: store}
}

// ChangedSince returns up to limit nodes whose updated_at is >= since,
// newest first.
func (t *TemporalQueriesImpl) ChangedSince(ctx context.Context, since time.Time, limit int) ([]cortex.Node, error) {
	all, err := t.store.AllNodes(ctx)
	if err != nil {
		return nil, err
	}
	var out []cortex.Node
	for _, n := range all {
		if !n.UpdatedAt.Before(since) {
			out = append(out, n)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].UpdatedAt.After(out[i].UpdatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// NeighborhoodAt returns id's 1-hop neighborhood restricted to edges created
// at or before at, approximating "what the graph looked like around id at
// that time" without needing a full bitemporal edge history.
func (t *TemporalQueriesImpl) NeighborhoodAt(ctx context.Context, id cortex.NodeId, at time.Time) (Subgraph, error) {
	sg, err := t.engine.Traverse(ctx, TraversalRequest{
		Start: id, Direction: DirectionBoth, Strategy: StrategyBFS,
		MaxDepth: 1, Budget: cortex.DefaultTraversalBudget(),
	})
	if err != nil {
		return Subgraph{}, err
	}
	var filtered []cortex.Edge
	for _, e := range sg.Edges {
		if !e.CreatedAt.After(at) {
			filtered = append(filtered, e)
		}
	}
	sg.Edges = filtered
	return sg, nil
}

// Timeline returns the creation/update events the engine can reconstruct
// for id from its own timestamps (a lightweight substitute for a full audit
// replay, which callers needing the authoritative trail should read via
// Store.Query instead).
func (t *TemporalQueriesImpl) Timeline(ctx context.Context, id cortex.NodeId) ([]ChangeEvent, error) {
	all, err := t.store.AllNodes(ctx)
	if err != nil {
		return nil, err
	}
	for _, n := range all {
		if n.ID == id {
			events := []ChangeEvent{{NodeID: id, At: n.CreatedAt, Action: "created"}}
			if n.UpdatedAt.After(n.CreatedAt) {
				events = append(events, ChangeEvent{NodeID: id, At: n.UpdatedAt, Action: "updated"})
			}
			return events, nil
		}
	}
	return nil, nil
}
