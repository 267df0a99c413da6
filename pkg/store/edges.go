package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
)

type provenanceDTO struct {
	CreatedBy  string  `json:"created_by,omitempty"`
	Score      float32 `json:"score,omitempty"`
	Rule       string  `json:"rule,omitempty"`
	Reason     string  `json:"reason,omitempty"`
	Similarity float32 `json:"similarity,omitempty"`
	ImportSrc  string  `json:"import_src,omitempty"`
}

func encodeProvenance(p cortex.EdgeProvenance) (string, []byte, error) {
	dto := provenanceDTO{
		CreatedBy:  p.CreatedBy,
		Score:      p.Score,
		Rule:       p.Rule,
		Reason:     p.Reason,
		Similarity: p.Similarity,
		ImportSrc:  p.ImportSrc,
	}
	buf, err := json.Marshal(dto)
	if err != nil {
		return "", nil, err
	}
	return p.Kind.String(), buf, nil
}

func decodeProvenance(kindStr string, buf []byte) cortex.EdgeProvenance {
	var dto provenanceDTO
	_ = json.Unmarshal(buf, &dto)
	switch kindStr {
	case cortex.ProvenanceAutoSimilarity.String():
		return cortex.AutoSimilarityProvenance(dto.Score)
	case cortex.ProvenanceAutoStructural.String():
		return cortex.AutoStructuralProvenance(dto.Rule)
	case cortex.ProvenanceAutoContradiction.String():
		return cortex.AutoContradictionProvenance(dto.Reason)
	case cortex.ProvenanceAutoDedup.String():
		return cortex.AutoDedupProvenance(dto.Similarity)
	case cortex.ProvenanceImported.String():
		return cortex.ImportedProvenance(dto.ImportSrc)
	default:
		return cortex.ManualProvenance(dto.CreatedBy)
	}
}

// PutEdge atomically upserts e, validating invariants and requiring both
// endpoints to already exist.
func (s *Store) PutEdge(ctx context.Context, e cortex.Edge) error {
	if err := e.Validate(); err != nil {
		return err
	}
	provKind, provData, err := encodeProvenance(e.Provenance)
	if err != nil {
		return cortex.NewErrorWithID(cortex.ErrKindSerialization, e.ID.String(), "marshal provenance", err)
	}
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		return putEdgeTx(ctx, tx, e, provKind, provData, &s.auditSeq)
	})
}

func putEdgeTx(ctx context.Context, tx *sql.Tx, e cortex.Edge, provKind string, provData []byte, auditSeq *atomic.Uint64) error {
	for _, id := range []cortex.NodeId{e.From, e.To} {
		var exists int
		if err := tx.QueryRowContext(ctx, "SELECT 1 FROM nodes WHERE id = ?", id.String()).Scan(&exists); err != nil {
			if err == sql.ErrNoRows {
				return cortex.NewErrorWithID(cortex.ErrKindValidation, id.String(), "edge endpoint does not exist", cortex.ErrNodeNotFound)
			}
			return cortex.NewError(cortex.ErrKindStorage, "check edge endpoint", err)
		}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO edges (id, from_id, to_id, relation, weight, provenance_kind, provenance_data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			weight=excluded.weight, provenance_kind=excluded.provenance_kind,
			provenance_data=excluded.provenance_data, updated_at=excluded.updated_at`,
		e.ID.String(), e.From.String(), e.To.String(), e.Relation.String(), e.Weight,
		provKind, provData, e.CreatedAt.UnixNano(), e.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return cortex.NewErrorWithID(cortex.ErrKindStorage, e.ID.String(), "upsert edge", err)
	}
	return appendAuditTx(ctx, tx, auditSeq, AuditEdgeCreated, e.ID.String(), e.Provenance.CreatedBy, "")
}

// GetEdge retrieves an edge by id.
func (s *Store) GetEdge(ctx context.Context, id cortex.EdgeId) (cortex.Edge, bool, error) {
	row := s.read.QueryRowContext(ctx, `
		SELECT id, from_id, to_id, relation, weight, provenance_kind, provenance_data, created_at, updated_at
		FROM edges WHERE id = ?`, id.String())
	e, err := scanEdge(row)
	if err == sql.ErrNoRows {
		return cortex.Edge{}, false, nil
	}
	if err != nil {
		return cortex.Edge{}, false, cortex.NewErrorWithID(cortex.ErrKindStorage, id.String(), "get edge", err)
	}
	return e, true, nil
}

// DeleteEdge removes an edge permanently. Edges have no soft-delete state.
func (s *Store) DeleteEdge(ctx context.Context, id cortex.EdgeId, actor string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE id = ?", id.String())
		if err != nil {
			return cortex.NewErrorWithID(cortex.ErrKindStorage, id.String(), "delete edge", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return cortex.NewErrorWithID(cortex.ErrKindNotFound, id.String(), "edge not found", cortex.ErrEdgeNotFound)
		}
		return appendAuditTx(ctx, tx, &s.auditSeq, AuditEdgePruned, id.String(), actor, "")
	})
}

// EdgesFrom returns every edge whose From endpoint is id.
func (s *Store) EdgesFrom(ctx context.Context, id cortex.NodeId) ([]cortex.Edge, error) {
	return s.queryEdges(ctx, "WHERE from_id = ?", id.String())
}

// EdgesTo returns every edge whose To endpoint is id.
func (s *Store) EdgesTo(ctx context.Context, id cortex.NodeId) ([]cortex.Edge, error) {
	return s.queryEdges(ctx, "WHERE to_id = ?", id.String())
}

// EdgesBetween returns every edge directly connecting from and to, in
// either direction.
func (s *Store) EdgesBetween(ctx context.Context, from, to cortex.NodeId) ([]cortex.Edge, error) {
	return s.queryEdges(ctx, "WHERE (from_id = ? AND to_id = ?) OR (from_id = ? AND to_id = ?)",
		from.String(), to.String(), to.String(), from.String())
}

func (s *Store) queryEdges(ctx context.Context, where string, args ...any) ([]cortex.Edge, error) {
	query := `SELECT id, from_id, to_id, relation, weight, provenance_kind, provenance_data, created_at, updated_at FROM edges ` + where
	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cortex.NewError(cortex.ErrKindStorage, "query edges", err)
	}
	defer rows.Close()

	var out []cortex.Edge
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return nil, cortex.NewError(cortex.ErrKindStorage, "scan edge row", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEdge(row rowScanner) (cortex.Edge, error) {
	var (
		id, from, to, relationStr string
		weight                    float32
		provKind                  string
		provData                  []byte
		createdAt, updatedAt      int64
	)
	if err := row.Scan(&id, &from, &to, &relationStr, &weight, &provKind, &provData, &createdAt, &updatedAt); err != nil {
		return cortex.Edge{}, err
	}
	edgeID, err := cortex.ParseEdgeId(id)
	if err != nil {
		return cortex.Edge{}, err
	}
	fromID, err := cortex.ParseNodeId(from)
	if err != nil {
		return cortex.Edge{}, err
	}
	toID, err := cortex.ParseNodeId(to)
	if err != nil {
		return cortex.Edge{}, err
	}
	relation, err := cortex.NewRelation(relationStr)
	if err != nil {
		return cortex.Edge{}, err
	}
	return cortex.Edge{
		ID:         edgeID,
		From:       fromID,
		To:         toID,
		Relation:   relation,
		Weight:     weight,
		Provenance: decodeProvenance(provKind, provData),
		CreatedAt:  time.Unix(0, createdAt).UTC(),
		UpdatedAt:  time.Unix(0, updatedAt).UTC(),
	}, nil
}

// AllEdges returns every edge, for callers (GraphEngine) that need to
// rebuild a full in-memory adjacency index.
func (s *Store) AllEdges(ctx context.Context) ([]cortex.Edge, error) {
	return s.queryEdges(ctx, "")
}

// PutEdgesBatch upserts multiple edges in a single transaction.
func (s *Store) PutEdgesBatch(ctx context.Context, edges []cortex.Edge) error {
	for _, e := range edges {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, e := range edges {
			provKind, provData, err := encodeProvenance(e.Provenance)
			if err != nil {
				return cortex.NewErrorWithID(cortex.ErrKindSerialization, e.ID.String(), "marshal provenance", err)
			}
			if err := putEdgeTx(ctx, tx, e, provKind, provData, &s.auditSeq); err != nil {
				return err
			}
		}
		return nil
	})
}
