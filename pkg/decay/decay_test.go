package decay

import (
	"math"
	"testing"
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
)

func edge(weight float32, updatedAt time.Time, manual bool) cortex.Edge {
	prov := cortex.AutoStructuralProvenance("shared_tags")
	if manual {
		prov = cortex.ManualProvenance("user")
	}
	e := cortex.NewEdge(cortex.NewNodeId(), cortex.NewNodeId(), cortex.RelationRelatedTo, weight, prov)
	e.UpdatedAt = updatedAt
	return e
}

func TestApply_ManualEdgeExemptWhenConfigured(t *testing.T) {
	now := time.Now().UTC()
	cfg := cortex.DefaultDecayConfig()
	cfg.ExemptManual = true
	e := edge(0.9, now.Add(-365*24*time.Hour), true)

	r := Apply(e, 0, e.UpdatedAt, now.Add(-365*24*time.Hour), now, cfg)
	if r.Outcome != OutcomeKept || r.NewWeight != e.Weight {
		t.Fatalf("manual edges should be exempt from decay, got %+v", r)
	}
}

func TestApply_NonManualDecaysOverTime(t *testing.T) {
	now := time.Now().UTC()
	cfg := cortex.DefaultDecayConfig()
	old := edge(0.9, now.Add(-365*24*time.Hour), false)

	r := Apply(old, 0, old.UpdatedAt, now.Add(-365*24*time.Hour), now, cfg)
	if r.NewWeight >= old.Weight {
		t.Fatalf("weight should have decayed, got %v from %v", r.NewWeight, old.Weight)
	}
}

func TestApply_RecentAccessReinforcesAgainstDecay(t *testing.T) {
	now := time.Now().UTC()
	cfg := cortex.DefaultDecayConfig()
	e := edge(0.9, now.Add(-60*24*time.Hour), false)

	stale := Apply(e, 0, e.UpdatedAt, now.Add(-365*24*time.Hour), now, cfg)
	fresh := Apply(e, 0, e.UpdatedAt, now, now, cfg)
	if fresh.NewWeight <= stale.NewWeight {
		t.Fatalf("recently accessed edge should retain more weight: fresh=%v stale=%v", fresh.NewWeight, stale.NewWeight)
	}
}

func TestApply_ImportanceShieldSlowsDecay(t *testing.T) {
	now := time.Now().UTC()
	cfg := cortex.DefaultDecayConfig()
	e := edge(0.9, now.Add(-90*24*time.Hour), false)

	lowImportance := Apply(e, 0.0, e.UpdatedAt, now.Add(-365*24*time.Hour), now, cfg)
	highImportance := Apply(e, 1.0, e.UpdatedAt, now.Add(-365*24*time.Hour), now, cfg)
	if highImportance.NewWeight <= lowImportance.NewWeight {
		t.Fatalf("high endpoint importance should shield against decay: high=%v low=%v", highImportance.NewWeight, lowImportance.NewWeight)
	}
}

func TestApply_OutcomeThresholds(t *testing.T) {
	now := time.Now().UTC()
	cfg := cortex.DefaultDecayConfig()

	kept := edge(1.0, now, false)
	r := Apply(kept, 0, kept.UpdatedAt, now.Add(-365*24*time.Hour), now, cfg)
	if r.Outcome != OutcomeKept {
		t.Fatalf("fresh high-weight edge should be kept, got %v", r.Outcome)
	}

	veryOld := edge(1.0, now.Add(-3650*24*time.Hour), false)
	r = Apply(veryOld, 0, veryOld.UpdatedAt, now.Add(-3650*24*time.Hour), now, cfg)
	if r.Outcome != OutcomeDeleted {
		t.Fatalf("decade-idle edge should be deleted, got %v with weight %v", r.Outcome, r.NewWeight)
	}
}

func TestApply_WeightNeverExceedsUnitInterval(t *testing.T) {
	now := time.Now().UTC()
	cfg := cortex.DefaultDecayConfig()
	e := edge(1.0, now, false)
	r := Apply(e, 0, e.UpdatedAt, now, now, cfg)
	if r.NewWeight < 0 || r.NewWeight > 1 {
		t.Fatalf("weight must stay in [0,1], got %v", r.NewWeight)
	}
}

func TestBatch_MissingEndpointTreatedAsZeroImportance(t *testing.T) {
	now := time.Now().UTC()
	cfg := cortex.DefaultDecayConfig()
	e := edge(0.9, now.Add(-90*24*time.Hour), false)

	results := Batch([]cortex.Edge{e}, map[cortex.NodeId]EndpointInfo{}, now, cfg)
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	want := Apply(e, 0, e.UpdatedAt, time.Time{}, now, cfg)
	if math.Abs(float64(results[0].NewWeight-want.NewWeight)) > 1e-6 {
		t.Fatalf("missing endpoint should behave as zero importance with no access, got %v want %v", results[0].NewWeight, want.NewWeight)
	}
}

func TestBatch_UsesEndpointInfoByTo(t *testing.T) {
	now := time.Now().UTC()
	cfg := cortex.DefaultDecayConfig()
	e := edge(0.9, now.Add(-90*24*time.Hour), false)

	endpoints := map[cortex.NodeId]EndpointInfo{
		e.To: {Importance: 1.0, LastAccessedAt: now},
	}
	results := Batch([]cortex.Edge{e}, endpoints, now, cfg)
	bare := Batch([]cortex.Edge{e}, map[cortex.NodeId]EndpointInfo{}, now, cfg)
	if results[0].NewWeight <= bare[0].NewWeight {
		t.Fatalf("high importance + recent access on the To endpoint should retain more weight")
	}
}
