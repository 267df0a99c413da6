// Package decay implements edge weight decay: the slow erosion of
// auto-generated edges that haven't been reinforced by recent access,
// ported from the original linker/decay.rs.
package decay

import (
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
)

// Outcome describes what should happen to an edge after one decay pass.
type Outcome int

const (
	// OutcomeKept means the edge survives, possibly with an updated weight.
	OutcomeKept Outcome = iota
	// OutcomePruned means the edge's weight fell below PruneThreshold and
	// it should be marked weak (soft pruning candidate).
	OutcomePruned
	// OutcomeDeleted means the edge's weight fell below DeleteThreshold
	// and it should be removed outright.
	OutcomeDeleted
)

// Result is the outcome of decaying a single edge.
type Result struct {
	EdgeID    cortex.EdgeId
	NewWeight float32
	Outcome   Outcome
}

// daysSince returns the number of whole-and-fractional days between t and
// now, floored at zero.
func daysSince(t time.Time, now time.Time) float64 {
	d := now.Sub(t).Hours() / 24.0
	if d < 0 {
		return 0
	}
	return d
}

// Apply computes the decayed weight for a single edge given its current
// weight, the endpoints' importance, days since the edge was last touched,
// and how recently either endpoint was accessed. Manual edges are exempt
// when cfg.ExemptManual is set.
func Apply(e cortex.Edge, endpointImportance float32, lastTouchedAt time.Time, lastAccessedAt time.Time, now time.Time, cfg cortex.DecayConfig) Result {
	if cfg.ExemptManual && e.Provenance.IsManual() {
		return Result{EdgeID: e.ID, NewWeight: e.Weight, Outcome: OutcomeKept}
	}

	idleDays := daysSince(lastTouchedAt, now)
	accessDays := daysSince(lastAccessedAt, now)

	// Recent access reinforces the edge: the effective idle window shrinks
	// by however recently the edge was traversed, down to zero.
	reinforcement := cfg.AccessReinforcementDays - accessDays
	if reinforcement < 0 {
		reinforcement = 0
	}
	effectiveDays := idleDays - reinforcement
	if effectiveDays < 0 {
		effectiveDays = 0
	}

	// Higher-importance endpoints decay slower: the shield scales the
	// daily rate down toward zero as importance approaches 1.
	shieldFactor := 1.0 - float64(endpointImportance)*float64(cfg.ImportanceShield)
	if shieldFactor < 0 {
		shieldFactor = 0
	}
	effectiveRate := float64(cfg.DailyDecayRate) * shieldFactor

	newWeight := float64(e.Weight) - effectiveRate*effectiveDays
	if newWeight < 0 {
		newWeight = 0
	}
	if newWeight > 1 {
		newWeight = 1
	}

	w := float32(newWeight)
	switch {
	case newWeight < float64(cfg.DeleteThreshold):
		return Result{EdgeID: e.ID, NewWeight: w, Outcome: OutcomeDeleted}
	case newWeight < float64(cfg.PruneThreshold):
		return Result{EdgeID: e.ID, NewWeight: w, Outcome: OutcomePruned}
	default:
		return Result{EdgeID: e.ID, NewWeight: w, Outcome: OutcomeKept}
	}
}

// EndpointInfo is the subset of node state Apply needs about an edge's
// endpoints, gathered by the caller (the AutoLinker) ahead of time so this
// package stays storage-agnostic.
type EndpointInfo struct {
	Importance     float32
	LastAccessedAt time.Time
}

// Batch decays every edge in edges, looking up each edge's "to" endpoint
// importance and access recency via endpoints. Edges whose endpoint is
// missing from endpoints are treated as importance 0 with no recent access.
func Batch(edges []cortex.Edge, endpoints map[cortex.NodeId]EndpointInfo, now time.Time, cfg cortex.DecayConfig) []Result {
	results := make([]Result, 0, len(edges))
	for _, e := range edges {
		info := endpoints[e.To]
		results = append(results, Apply(e, info.Importance, e.UpdatedAt, info.LastAccessedAt, now, cfg))
	}
	return results
}
