package store

import (
	"context"
	"testing"
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestNode(title string) cortex.Node {
	return cortex.NewNode(cortex.MustNodeKind("fact"), title, "body", cortex.Source{Agent: "tester"}, 0.5)
}

func TestStore_PutAndGetNode_RoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	n := newTestNode("hello")
	n.Tags = []string{"a", "b"}
	n.Metadata = map[string]any{"k": "v"}
	n.Embedding = []float32{0.1, 0.2, 0.3}

	if err := s.PutNode(ctx, n); err != nil {
		t.Fatalf("put node: %v", err)
	}
	got, ok, err := s.GetNode(ctx, n.ID)
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if !ok {
		t.Fatalf("expected node to be found")
	}
	if got.Title != n.Title || got.Body != n.Body {
		t.Fatalf("round-tripped node mismatch: %+v vs %+v", got, n)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "a" {
		t.Fatalf("expected tags to round-trip, got %v", got.Tags)
	}
	if len(got.Embedding) != 3 {
		t.Fatalf("expected embedding to round-trip, got %v", got.Embedding)
	}
	if got.Metadata["k"] != "v" {
		t.Fatalf("expected metadata to round-trip, got %v", got.Metadata)
	}
}

func TestStore_GetNode_MissingReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	_, ok, err := s.GetNode(context.Background(), cortex.NewNodeId())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected not found for a random id")
	}
}

func TestStore_PutNode_UpdatePreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	n := newTestNode("v1")
	if err := s.PutNode(ctx, n); err != nil {
		t.Fatalf("put node: %v", err)
	}
	original := n.CreatedAt

	n.Title = "v2"
	n.CreatedAt = time.Now().UTC().Add(time.Hour) // attacker-ish: should be ignored on update
	if err := s.PutNode(ctx, n); err != nil {
		t.Fatalf("put updated node: %v", err)
	}

	got, ok, err := s.GetNode(ctx, n.ID)
	if err != nil || !ok {
		t.Fatalf("get node: ok=%v err=%v", ok, err)
	}
	if got.Title != "v2" {
		t.Fatalf("expected updated title, got %q", got.Title)
	}
	if !got.CreatedAt.Equal(original) {
		t.Fatalf("expected created_at to be preserved across update, got %v want %v", got.CreatedAt, original)
	}
}

func TestStore_GetNodeAndRecordAccess_BumpsAccessCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	n := newTestNode("v1")
	if err := s.PutNode(ctx, n); err != nil {
		t.Fatalf("put node: %v", err)
	}

	got, ok, err := s.GetNodeAndRecordAccess(ctx, n.ID)
	if err != nil || !ok {
		t.Fatalf("get+record: ok=%v err=%v", ok, err)
	}
	if got.AccessCount != 1 {
		t.Fatalf("expected access count 1, got %d", got.AccessCount)
	}

	plain, _, err := s.GetNode(ctx, n.ID)
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	if plain.AccessCount != 1 {
		t.Fatalf("expected access count to persist, got %d", plain.AccessCount)
	}
}

func TestStore_DeleteNode_SoftDeletesAndExcludesFromList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	n := newTestNode("v1")
	if err := s.PutNode(ctx, n); err != nil {
		t.Fatalf("put node: %v", err)
	}
	if err := s.DeleteNode(ctx, n.ID, "tester"); err != nil {
		t.Fatalf("delete node: %v", err)
	}

	all, err := s.AllNodes(ctx)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected soft-deleted node excluded from AllNodes, got %d", len(all))
	}

	got, ok, err := s.GetNode(ctx, n.ID)
	if err != nil || !ok {
		t.Fatalf("get node directly: ok=%v err=%v", ok, err)
	}
	if !got.Deleted {
		t.Fatalf("expected Deleted=true on direct get")
	}
}

func TestStore_DeleteNode_MissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.DeleteNode(context.Background(), cortex.NewNodeId(), "tester")
	if !cortex.IsNotFound(err) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}

func TestStore_HardDeleteNode_RemovesNodeAndIncidentEdges(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a, b := newTestNode("a"), newTestNode("b")
	if err := s.PutNode(ctx, a); err != nil {
		t.Fatalf("put a: %v", err)
	}
	if err := s.PutNode(ctx, b); err != nil {
		t.Fatalf("put b: %v", err)
	}
	e := cortex.NewEdge(a.ID, b.ID, cortex.RelationRelatedTo, 0.5, cortex.ManualProvenance("tester"))
	if err := s.PutEdge(ctx, e); err != nil {
		t.Fatalf("put edge: %v", err)
	}

	if err := s.HardDeleteNode(ctx, a.ID, "tester"); err != nil {
		t.Fatalf("hard delete: %v", err)
	}

	if _, ok, _ := s.GetNode(ctx, a.ID); ok {
		t.Fatalf("expected node gone after hard delete")
	}
	if _, ok, _ := s.GetEdge(ctx, e.ID); ok {
		t.Fatalf("expected incident edge gone after hard delete")
	}
}

func TestStore_ListNodes_FiltersByKindAndTag(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	fact := newTestNode("fact-node")
	fact.Tags = []string{"urgent"}
	pref := cortex.NewNode(cortex.MustNodeKind("preference"), "pref-node", "b", cortex.Source{Agent: "tester"}, 0.5)

	if err := s.PutNode(ctx, fact); err != nil {
		t.Fatalf("put fact: %v", err)
	}
	if err := s.PutNode(ctx, pref); err != nil {
		t.Fatalf("put pref: %v", err)
	}

	onlyFacts, err := s.ListNodes(ctx, NewNodeFilter().WithKinds("fact"))
	if err != nil {
		t.Fatalf("list by kind: %v", err)
	}
	if len(onlyFacts) != 1 || onlyFacts[0].ID != fact.ID {
		t.Fatalf("expected only the fact node, got %+v", onlyFacts)
	}

	tagged, err := s.ListNodes(ctx, NewNodeFilter().WithTags("urgent"))
	if err != nil {
		t.Fatalf("list by tag: %v", err)
	}
	if len(tagged) != 1 || tagged[0].ID != fact.ID {
		t.Fatalf("expected only the tagged node, got %+v", tagged)
	}
}

func TestStore_CountNodes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.PutNode(ctx, newTestNode("n")); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	count, err := s.CountNodes(ctx, NewNodeFilter())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}
}

func TestStore_PutNodesBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	nodes := []cortex.Node{newTestNode("a"), newTestNode("b"), newTestNode("c")}
	if err := s.PutNodesBatch(ctx, nodes); err != nil {
		t.Fatalf("put batch: %v", err)
	}
	all, err := s.AllNodes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 nodes, got %d", len(all))
	}
}
