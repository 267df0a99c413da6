package autolinker

import (
	"context"
	"testing"
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
	"github.com/cortex-db/cortex/pkg/vectorindex"
)

type fakeStore struct {
	nodes []cortex.Node
	edges []cortex.Edge
	meta  map[string][]byte

	deletedEdges []cortex.EdgeId
}

func newFakeStore() *fakeStore {
	return &fakeStore{meta: map[string][]byte{}}
}

func (f *fakeStore) AllNodes(ctx context.Context) ([]cortex.Node, error) { return f.nodes, nil }
func (f *fakeStore) AllEdges(ctx context.Context) ([]cortex.Edge, error) { return f.edges, nil }

func (f *fakeStore) PutEdge(ctx context.Context, e cortex.Edge) error {
	for i, existing := range f.edges {
		if existing.ID == e.ID {
			f.edges[i] = e
			return nil
		}
	}
	f.edges = append(f.edges, e)
	return nil
}

func (f *fakeStore) DeleteEdge(ctx context.Context, id cortex.EdgeId, actor string) error {
	f.deletedEdges = append(f.deletedEdges, id)
	out := f.edges[:0]
	for _, e := range f.edges {
		if e.ID != id {
			out = append(out, e)
		}
	}
	f.edges = out
	return nil
}

func (f *fakeStore) PutMetadata(ctx context.Context, key string, value []byte) error {
	f.meta[key] = value
	return nil
}

func (f *fakeStore) GetMetadata(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok := f.meta[key]
	return v, ok, nil
}

func mkTestNode(title string, importance float32) cortex.Node {
	return cortex.NewNode(cortex.MustNodeKind("fact"), title, "body", cortex.Source{Agent: "tester"}, importance)
}

func TestRunCycle_NoCandidatesAdvancesStateToDoneQuietly(t *testing.T) {
	store := newFakeStore()
	a := New(store, nil, nil, cortex.DefaultAutoLinkerConfig(), nil, nil)

	result, err := a.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NodesScanned != 0 {
		t.Fatalf("expected no candidates with an empty store, got %d", result.NodesScanned)
	}
	if a.State() != StateDone {
		t.Fatalf("expected final state Done, got %v", a.State())
	}
}

func TestRunCycle_ProposesAndCommitsStructuralEdges(t *testing.T) {
	store := newFakeStore()
	session := "sess-1"
	a1 := mkTestNode("a", 0.5)
	a1.Source.Session = &session
	b1 := mkTestNode("b", 0.5)
	b1.Source.Session = &session
	store.nodes = []cortex.Node{a1, b1}

	cfg := cortex.DefaultAutoLinkerConfig()
	a := New(store, nil, nil, cfg, nil, nil)

	result, err := a.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NodesScanned != 2 {
		t.Fatalf("expected both nodes scanned as candidates on first cycle, got %d", result.NodesScanned)
	}
	if result.EdgesCommitted == 0 {
		t.Fatalf("expected the same-session structural rule to commit at least one edge")
	}
	if len(store.edges) == 0 {
		t.Fatalf("expected committed edges to be persisted to the store")
	}
}

func TestRunCycle_AdvancesCursorPastProcessedNodes(t *testing.T) {
	store := newFakeStore()
	n := mkTestNode("n", 0.5)
	store.nodes = []cortex.Node{n}

	a := New(store, nil, nil, cortex.DefaultAutoLinkerConfig(), nil, nil)
	if _, err := a.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	c := a.loadCursor(context.Background())
	if !c.LastProcessedUpdatedAt.Equal(n.UpdatedAt) {
		t.Fatalf("expected cursor to advance to the node's updated_at, got %v want %v", c.LastProcessedUpdatedAt, n.UpdatedAt)
	}
	if c.CycleCount != 1 {
		t.Fatalf("expected cycle count 1, got %d", c.CycleCount)
	}

	// A second cycle with no new nodes should find nothing to do.
	result, err := a.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if result.NodesScanned != 0 {
		t.Fatalf("expected second cycle to find no new candidates, got %d", result.NodesScanned)
	}
}

func TestRunCycle_RespectsMaxNodesPerCycle(t *testing.T) {
	store := newFakeStore()
	for i := 0; i < 5; i++ {
		store.nodes = append(store.nodes, mkTestNode("n", 0.5))
	}
	cfg := cortex.DefaultAutoLinkerConfig()
	cfg.MaxNodesPerCycle = 2
	a := New(store, nil, nil, cfg, nil, nil)

	result, err := a.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.NodesScanned != 2 {
		t.Fatalf("expected MaxNodesPerCycle to cap candidates at 2, got %d", result.NodesScanned)
	}
}

func TestRunCycle_RespectsMaxEdgesPerCycle(t *testing.T) {
	store := newFakeStore()
	session := "sess-1"
	for i := 0; i < 6; i++ {
		n := mkTestNode("n", 0.5)
		n.Source.Session = &session
		store.nodes = append(store.nodes, n)
	}
	cfg := cortex.DefaultAutoLinkerConfig()
	cfg.MaxEdgesPerCycle = 1
	a := New(store, nil, nil, cfg, nil, nil)

	result, err := a.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EdgesCommitted != 1 {
		t.Fatalf("expected MaxEdgesPerCycle to cap commits at 1, got %d", result.EdgesCommitted)
	}
}

func TestRunCycle_DecayPassRunsOnScheduledCycle(t *testing.T) {
	store := newFakeStore()
	a1, a2 := mkTestNode("a", 0.0), mkTestNode("b", 0.0)
	store.nodes = []cortex.Node{a1, a2}

	edge := cortex.NewEdge(a1.ID, a2.ID, cortex.RelationRelatedTo, 0.05, cortex.AutoSimilarityProvenance(0.9))
	edge.CreatedAt = time.Now().UTC().Add(-365 * 24 * time.Hour)
	edge.UpdatedAt = edge.CreatedAt
	store.edges = []cortex.Edge{edge}

	cfg := cortex.DefaultAutoLinkerConfig()
	cfg.DecayEveryNCycles = 1
	a := New(store, nil, nil, cfg, nil, nil)

	// Bump the nodes' UpdatedAt so the first cycle also has a candidate to
	// scan alongside the decay step.
	store.nodes[0].UpdatedAt = time.Now().UTC()

	result, err := a.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EdgesPruned == 0 && result.EdgesDeleted == 0 && result.EdgesDecayed == 0 {
		t.Fatalf("expected the scheduled decay pass to touch the stale low-weight edge")
	}
}

func TestRunCycle_SkipsDecayWhenNotScheduled(t *testing.T) {
	store := newFakeStore()
	n := mkTestNode("n", 0.5)
	store.nodes = []cortex.Node{n}

	cfg := cortex.DefaultAutoLinkerConfig()
	cfg.DecayEveryNCycles = 0
	a := New(store, nil, nil, cfg, nil, nil)

	result, err := a.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.EdgesDecayed != 0 || result.EdgesPruned != 0 || result.EdgesDeleted != 0 {
		t.Fatalf("expected no decay activity when DecayEveryNCycles is 0, got %+v", result)
	}
}

func TestState_String(t *testing.T) {
	cases := map[State]string{
		StateIdle:       "idle",
		StateScanning:   "scanning",
		StateProposing:  "proposing",
		StateCommitting: "committing",
		StateDecaying:   "decaying",
		StateDeduping:   "deduping",
		StateDone:       "done",
		State(99):       "unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestTriggerNow_CoalescesPendingRequests(t *testing.T) {
	store := newFakeStore()
	a := New(store, nil, nil, cortex.DefaultAutoLinkerConfig(), nil, nil)
	a.TriggerNow()
	a.TriggerNow() // should not block even though one is already pending
}

func TestRunCycle_MergesDuplicateProposalsByFromToRelation(t *testing.T) {
	store := newFakeStore()
	session := "sess-1"
	a1 := mkTestNode("a", 0.5)
	a1.Source.Session = &session
	a1.Tags = []string{"x", "y"}
	b1 := mkTestNode("b", 0.5)
	b1.Source.Session = &session
	b1.Tags = []string{"x", "y"}
	store.nodes = []cortex.Node{a1, b1}

	cfg := cortex.DefaultAutoLinkerConfig()
	a := New(store, nil, nil, cfg, nil, nil)

	result, err := a.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// SameSessionRule (weight 0.5) and SharedTagsRule (weight 0.4) both fire
	// for each ordered pair; after merging by (from, to, relation) there
	// should be exactly one committed related_to edge per direction.
	if result.EdgesCommitted != 2 {
		t.Fatalf("expected merge to collapse same-key proposals to 2 edges, got %d", result.EdgesCommitted)
	}
	for _, e := range store.edges {
		if e.Weight != 0.5 {
			t.Fatalf("expected the merged edge to keep the higher weight 0.5, got %v", e.Weight)
		}
	}
}

func TestRunCycle_DedupEmitsSupersedesEdgeAndCountsDuplicate(t *testing.T) {
	store := newFakeStore()
	a1 := mkTestNode("a", 0.5)
	a1.Embedding = []float32{1, 0, 0, 0}
	b1 := mkTestNode("b", 0.5)
	b1.Embedding = []float32{1, 0, 0, 0} // identical vector, cosine sim 1.0

	store.nodes = []cortex.Node{a1, b1}

	idx := vectorindex.New(4, vectorindex.DefaultConfig())
	if err := idx.Insert(a1.ID, a1.Embedding); err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := idx.Insert(b1.ID, b1.Embedding); err != nil {
		t.Fatalf("insert b: %v", err)
	}

	cfg := cortex.DefaultAutoLinkerConfig()
	cfg.DedupEveryNCycles = 1
	a := New(store, idx, nil, cfg, nil, nil)

	if _, err := a.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	found := false
	for _, e := range store.edges {
		if e.Relation == cortex.RelationSupersedes {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a supersedes edge to be emitted for the near-duplicate pair, got edges %+v", store.edges)
	}
	if a.Stats().DuplicatesFound != 1 {
		t.Fatalf("expected DuplicatesFound=1, got %d", a.Stats().DuplicatesFound)
	}
}

func TestRunCycle_GenericContentThresholdSuppressesFurtherSimilarityEdges(t *testing.T) {
	store := newFakeStore()
	cand := mkTestNode("hub", 0.5)
	cand.Embedding = []float32{1, 0, 0, 0}
	store.nodes = []cortex.Node{cand}

	idx := vectorindex.New(4, vectorindex.DefaultConfig())
	if err := idx.Insert(cand.ID, cand.Embedding); err != nil {
		t.Fatalf("insert cand: %v", err)
	}
	// Three near-but-not-quite-identical neighbors, all scoring in the
	// auto-link band (below DedupThreshold, above AutoLinkThreshold).
	for i := 0; i < 3; i++ {
		n := mkTestNode("neighbor", 0.5)
		n.Embedding = []float32{0.8, 0.6, 0, 0}
		store.nodes = append(store.nodes, n)
		if err := idx.Insert(n.ID, n.Embedding); err != nil {
			t.Fatalf("insert neighbor %d: %v", i, err)
		}
	}

	cfg := cortex.DefaultAutoLinkerConfig()
	cfg.GenericContentThreshold = 1
	a := New(store, idx, nil, cfg, nil, nil)

	result, err := a.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	similarityEdges := 0
	for _, e := range store.edges {
		if e.From == cand.ID && e.Provenance.Kind == cortex.ProvenanceAutoSimilarity {
			similarityEdges++
		}
	}
	if similarityEdges > 1 {
		t.Fatalf("expected GenericContentThreshold=1 to cap similarity edges from the hub candidate at 1, got %d (result=%+v)", similarityEdges, result)
	}
}

func TestAutoLinker_StatsSnapshotReflectsCycle(t *testing.T) {
	store := newFakeStore()
	store.nodes = []cortex.Node{mkTestNode("n", 0.5)}
	a := New(store, nil, nil, cortex.DefaultAutoLinkerConfig(), nil, nil)

	if _, err := a.RunCycle(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snap := a.Stats()
	if snap.TotalNodes != 1 {
		t.Fatalf("expected snapshot TotalNodes=1, got %d", snap.TotalNodes)
	}
	if snap.Cycles != 1 {
		t.Fatalf("expected snapshot Cycles=1, got %d", snap.Cycles)
	}
}
