// Package retention drives node expiry based on TTL and node-count caps,
// ported from the original policies/retention.rs.
package retention

import (
	"context"
	"sort"
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
	"github.com/cortex-db/cortex/pkg/store"
)

// Storage is the subset of *store.Store the retention engine depends on.
type Storage interface {
	ListNodes(ctx context.Context, filter store.NodeFilter) ([]cortex.Node, error)
	DeleteNode(ctx context.Context, id cortex.NodeId, actor string) error
	HardDeleteNode(ctx context.Context, id cortex.NodeId, actor string) error
	Stats(ctx context.Context) (store.StorageStats, error)
}

// Engine drives node expiry based on TTL and count caps.
type Engine struct {
	storage Storage
	cfg     cortex.RetentionConfig
}

// New constructs a retention Engine.
func New(storage Storage, cfg cortex.RetentionConfig) *Engine {
	return &Engine{storage: storage, cfg: cfg}
}

// Sweep soft-deletes nodes that have exceeded their TTL or breach the
// max-nodes cap. Returns the number of nodes soft-deleted this sweep.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	deleted := 0
	now := time.Now().UTC()

	// 1. Per-kind TTLs.
	for kindStr, ttlDays := range e.cfg.ByKind {
		if ttlDays <= 0 {
			continue
		}
		kind, err := cortex.NewNodeKind(kindStr)
		if err != nil {
			continue
		}
		cutoff := now.Add(-time.Duration(ttlDays) * 24 * time.Hour)
		expired, err := e.storage.ListNodes(ctx, store.NewNodeFilter().WithKinds(kind.String()).CreatedBefore_(cutoff))
		if err != nil {
			return deleted, err
		}
		for _, n := range expired {
			if err := e.storage.DeleteNode(ctx, n.ID, "retention"); err != nil {
				return deleted, err
			}
			deleted++
		}
	}

	// 2. Default TTL across all kinds not pinned to 0.
	if e.cfg.DefaultTTLDays > 0 {
		cutoff := now.Add(-time.Duration(e.cfg.DefaultTTLDays) * 24 * time.Hour)
		expired, err := e.storage.ListNodes(ctx, store.NewNodeFilter().CreatedBefore_(cutoff))
		if err != nil {
			return deleted, err
		}
		for _, n := range expired {
			if ttl, ok := e.cfg.ByKind[n.Kind.String()]; ok && ttl == 0 {
				continue
			}
			if err := e.storage.DeleteNode(ctx, n.ID, "retention"); err != nil {
				return deleted, err
			}
			deleted++
		}
	}

	// 3. Max node cap.
	if e.cfg.MaxNodes != nil {
		stats, err := e.storage.Stats(ctx)
		if err != nil {
			return deleted, err
		}
		if int(stats.NodeCount) > e.cfg.MaxNodes.Limit {
			excess := int(stats.NodeCount) - e.cfg.MaxNodes.Limit
			toEvict, err := e.selectEvictionCandidates(ctx, excess, e.cfg.MaxNodes.Strategy)
			if err != nil {
				return deleted, err
			}
			for _, id := range toEvict {
				if err := e.storage.DeleteNode(ctx, id, "retention"); err != nil {
					return deleted, err
				}
				deleted++
			}
		}
	}

	return deleted, nil
}

// PurgeExpired hard-deletes nodes that have been soft-deleted beyond the
// grace period. Returns the number of nodes hard-deleted.
func (e *Engine) PurgeExpired(ctx context.Context) (int, error) {
	grace := e.cfg.GraceDays
	if grace <= 0 {
		grace = 7
	}
	cutoff := time.Now().UTC().Add(-time.Duration(grace) * 24 * time.Hour)

	allNodes, err := e.storage.ListNodes(ctx, store.NewNodeFilter().DeletedOnly_())
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, n := range allNodes {
		if n.UpdatedAt.Before(cutoff) {
			if err := e.storage.HardDeleteNode(ctx, n.ID, "retention"); err != nil {
				return purged, err
			}
			purged++
		}
	}
	return purged, nil
}

func (e *Engine) selectEvictionCandidates(ctx context.Context, count int, strategy string) ([]cortex.NodeId, error) {
	switch strategy {
	case "oldest_lowest_importance":
		nodes, err := e.storage.ListNodes(ctx, store.NewNodeFilter())
		if err != nil {
			return nil, err
		}
		sort.Slice(nodes, func(i, j int) bool {
			if nodes[i].Importance != nodes[j].Importance {
				return nodes[i].Importance < nodes[j].Importance
			}
			return nodes[i].CreatedAt.Before(nodes[j].CreatedAt)
		})
		if count > len(nodes) {
			count = len(nodes)
		}
		ids := make([]cortex.NodeId, count)
		for i := 0; i < count; i++ {
			ids[i] = nodes[i].ID
		}
		return ids, nil
	default:
		return nil, cortex.NewError(cortex.ErrKindValidation, "unknown eviction strategy: "+strategy, nil)
	}
}
