package store

import (
	"context"

	"github.com/cortex-db/cortex/pkg/cortex"
)

// Ingest constructs and persists a Node from an external event, the entry
// point agent integrations call instead of building a Node by hand. The
// embedding is left nil; callers that want similarity-based auto-linking
// must populate it (via pkg/embed) before or immediately after Ingest.
func (s *Store) Ingest(ctx context.Context, ev cortex.IngestEvent) (cortex.Node, error) {
	kind, err := cortex.NewNodeKind(ev.Kind)
	if err != nil {
		return cortex.Node{}, err
	}
	importance := float32(0.5)
	if ev.Importance != nil {
		importance = *ev.Importance
	}
	source := cortex.Source{Agent: ev.Source, Session: ev.Session}
	n := cortex.NewNode(kind, ev.Title, ev.Body, source, importance)
	if ev.Metadata != nil {
		n.Metadata = ev.Metadata
	}
	n.Tags = ev.Tags

	if err := n.Validate(); err != nil {
		return cortex.Node{}, err
	}
	if err := s.PutNode(ctx, n); err != nil {
		return cortex.Node{}, err
	}
	return n, nil
}
