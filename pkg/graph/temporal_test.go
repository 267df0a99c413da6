package graph

import (
	"context"
	"testing"
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
)

type fakeTemporalStore struct {
	nodes []cortex.Node
}

func (f *fakeTemporalStore) AllNodes(ctx context.Context) ([]cortex.Node, error) {
	return f.nodes, nil
}

func TestTemporalQueries_ChangedSince_FiltersAndOrdersNewestFirst(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old := cortex.NewNode(cortex.MustNodeKind("fact"), "old", "b", cortex.Source{Agent: "a"}, 0.5)
	old.UpdatedAt = base

	mid := cortex.NewNode(cortex.MustNodeKind("fact"), "mid", "b", cortex.Source{Agent: "a"}, 0.5)
	mid.UpdatedAt = base.Add(time.Hour)

	recent := cortex.NewNode(cortex.MustNodeKind("fact"), "recent", "b", cortex.Source{Agent: "a"}, 0.5)
	recent.UpdatedAt = base.Add(2 * time.Hour)

	tq := NewTemporalQueries(nil, &fakeTemporalStore{nodes: []cortex.Node{old, mid, recent}})
	got, err := tq.ChangedSince(context.Background(), base.Add(30*time.Minute), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 nodes changed since cutoff, got %d", len(got))
	}
	if got[0].Title != "recent" || got[1].Title != "mid" {
		t.Fatalf("expected newest-first order, got %v, %v", got[0].Title, got[1].Title)
	}
}

func TestTemporalQueries_ChangedSince_RespectsLimit(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var nodes []cortex.Node
	for i := 0; i < 5; i++ {
		n := cortex.NewNode(cortex.MustNodeKind("fact"), "n", "b", cortex.Source{Agent: "a"}, 0.5)
		n.UpdatedAt = base.Add(time.Duration(i) * time.Hour)
		nodes = append(nodes, n)
	}
	tq := NewTemporalQueries(nil, &fakeTemporalStore{nodes: nodes})
	got, err := tq.ChangedSince(context.Background(), base, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(got))
	}
}

func TestTemporalQueries_NeighborhoodAt_ExcludesEdgesCreatedAfter(t *testing.T) {
	s := newFakeStorage()
	a, b := s.addNode(), s.addNode()
	s.link(a, b, 1)
	s.edges[0].CreatedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	engine := NewEngine(s)
	tq := NewTemporalQueries(engine, s)

	sg, err := tq.NeighborhoodAt(context.Background(), a.ID, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sg.Edges) != 0 {
		t.Fatalf("expected edge created after cutoff to be excluded, got %d edges", len(sg.Edges))
	}
}

func TestTemporalQueries_NeighborhoodAt_IncludesEdgesCreatedBefore(t *testing.T) {
	s := newFakeStorage()
	a, b := s.addNode(), s.addNode()
	s.link(a, b, 1)
	s.edges[0].CreatedAt = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	engine := NewEngine(s)
	tq := NewTemporalQueries(engine, s)

	sg, err := tq.NeighborhoodAt(context.Background(), a.ID, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sg.Edges) != 1 {
		t.Fatalf("expected the edge created before cutoff to be included, got %d", len(sg.Edges))
	}
}

func TestTemporalQueries_Timeline_ReportsCreatedAndUpdated(t *testing.T) {
	n := cortex.NewNode(cortex.MustNodeKind("fact"), "t", "b", cortex.Source{Agent: "a"}, 0.5)
	n.UpdatedAt = n.CreatedAt.Add(time.Hour)

	tq := NewTemporalQueries(nil, &fakeTemporalStore{nodes: []cortex.Node{n}})
	events, err := tq.Timeline(context.Background(), n.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected created+updated events, got %d", len(events))
	}
	if events[0].Action != "created" || events[1].Action != "updated" {
		t.Fatalf("unexpected event actions: %+v", events)
	}
}

func TestTemporalQueries_Timeline_UnknownNodeReturnsNil(t *testing.T) {
	tq := NewTemporalQueries(nil, &fakeTemporalStore{})
	events, err := tq.Timeline(context.Background(), cortex.NewNodeId())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events != nil {
		t.Fatalf("expected nil events for unknown node, got %+v", events)
	}
}
