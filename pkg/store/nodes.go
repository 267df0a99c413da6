package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
)

func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) == 0 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}

func encodeJSON(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func decodeMetadata(buf []byte) map[string]any {
	if len(buf) == 0 {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(buf, &m); err != nil {
		return map[string]any{}
	}
	return m
}

func decodeTags(buf []byte) []string {
	if len(buf) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(buf, &tags); err != nil {
		return nil
	}
	return tags
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

// PutNode atomically upserts n, validating invariants first. A re-put of an
// existing id replaces attributes but preserves the original created_at.
func (s *Store) PutNode(ctx context.Context, n cortex.Node) error {
	if err := n.Validate(); err != nil {
		return err
	}
	metaJSON, err := encodeJSON(n.Metadata)
	if err != nil {
		return cortex.NewErrorWithID(cortex.ErrKindSerialization, n.ID.String(), "marshal metadata", err)
	}
	tagsJSON, err := encodeJSON(n.Tags)
	if err != nil {
		return cortex.NewErrorWithID(cortex.ErrKindSerialization, n.ID.String(), "marshal tags", err)
	}

	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		var existingCreatedAt sql.NullInt64
		err := tx.QueryRowContext(ctx, "SELECT created_at FROM nodes WHERE id = ?", n.ID.String()).Scan(&existingCreatedAt)
		createdAt := n.CreatedAt
		isUpdate := false
		if err == nil {
			isUpdate = true
			createdAt = time.Unix(0, existingCreatedAt.Int64).UTC()
		} else if err != sql.ErrNoRows {
			return cortex.NewError(cortex.ErrKindStorage, "check existing node", err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO nodes (id, kind, title, body, metadata, tags, embedding,
				source_agent, source_session, source_channel, importance,
				access_count, last_accessed_at, created_at, updated_at, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				kind=excluded.kind, title=excluded.title, body=excluded.body,
				metadata=excluded.metadata, tags=excluded.tags, embedding=excluded.embedding,
				source_agent=excluded.source_agent, source_session=excluded.source_session,
				source_channel=excluded.source_channel, importance=excluded.importance,
				access_count=excluded.access_count, last_accessed_at=excluded.last_accessed_at,
				updated_at=excluded.updated_at, deleted=excluded.deleted`,
			n.ID.String(), n.Kind.String(), n.Title, n.Body, metaJSON, tagsJSON, encodeEmbedding(n.Embedding),
			n.Source.Agent, nullString(n.Source.Session), nullString(n.Source.Channel), n.Importance,
			n.AccessCount, n.LastAccessedAt.UnixNano(), createdAt.UnixNano(), n.UpdatedAt.UnixNano(), boolToInt(n.Deleted),
		)
		if err != nil {
			return cortex.NewErrorWithID(cortex.ErrKindStorage, n.ID.String(), "upsert node", err)
		}

		action := AuditNodeCreated
		if isUpdate {
			action = AuditNodeUpdated
		}
		return appendAuditTx(ctx, tx, &s.auditSeq, action, n.ID.String(), n.Source.Agent, "")
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// GetNode retrieves a node by id without recording access. Returns
// (Node{}, false, nil) if absent.
func (s *Store) GetNode(ctx context.Context, id cortex.NodeId) (cortex.Node, bool, error) {
	return s.getNode(ctx, s.read, id)
}

func (s *Store) getNode(ctx context.Context, q querier, id cortex.NodeId) (cortex.Node, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, kind, title, body, metadata, tags, embedding, source_agent,
			source_session, source_channel, importance, access_count,
			last_accessed_at, created_at, updated_at, deleted
		FROM nodes WHERE id = ?`, id.String())
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return cortex.Node{}, false, nil
	}
	if err != nil {
		return cortex.Node{}, false, cortex.NewErrorWithID(cortex.ErrKindStorage, id.String(), "get node", err)
	}
	return n, true, nil
}

// GetNodeAndRecordAccess retrieves a node by id and, if present, increments
// its access_count and bumps last_accessed_at in the same commit. This is
// the "access-recording API" distinguished from the plain GetNode in
// testable property 6.
func (s *Store) GetNodeAndRecordAccess(ctx context.Context, id cortex.NodeId) (cortex.Node, bool, error) {
	var result cortex.Node
	var found bool
	err := s.withWriteTx(ctx, func(tx *sql.Tx) error {
		n, ok, err := s.getNode(ctx, tx, id)
		if err != nil || !ok {
			return err
		}
		n.RecordAccess()
		_, err = tx.ExecContext(ctx,
			"UPDATE nodes SET access_count = ?, last_accessed_at = ? WHERE id = ?",
			n.AccessCount, n.LastAccessedAt.UnixNano(), id.String())
		if err != nil {
			return cortex.NewErrorWithID(cortex.ErrKindStorage, id.String(), "record access", err)
		}
		result, found = n, true
		return nil
	})
	if err != nil {
		return cortex.Node{}, false, err
	}
	return result, found, nil
}

// DeleteNode soft-deletes a node: sets deleted=true and bumps updated_at.
// Incident edges are left intact.
func (s *Store) DeleteNode(ctx context.Context, id cortex.NodeId, actor string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().UnixNano()
		res, err := tx.ExecContext(ctx, "UPDATE nodes SET deleted = 1, updated_at = ? WHERE id = ?", now, id.String())
		if err != nil {
			return cortex.NewErrorWithID(cortex.ErrKindStorage, id.String(), "soft delete node", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return cortex.NewErrorWithID(cortex.ErrKindNotFound, id.String(), "node not found", cortex.ErrNodeNotFound)
		}
		return appendAuditTx(ctx, tx, &s.auditSeq, AuditNodeDeleted, id.String(), actor, "")
	})
}

// HardDeleteNode removes a node and all incident edges permanently.
// Intended for retention purge only.
func (s *Store) HardDeleteNode(ctx context.Context, id cortex.NodeId, actor string) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM edges WHERE from_id = ? OR to_id = ?", id.String(), id.String()); err != nil {
			return cortex.NewErrorWithID(cortex.ErrKindStorage, id.String(), "delete incident edges", err)
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM nodes WHERE id = ?", id.String())
		if err != nil {
			return cortex.NewErrorWithID(cortex.ErrKindStorage, id.String(), "hard delete node", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return cortex.NewErrorWithID(cortex.ErrKindNotFound, id.String(), "node not found", cortex.ErrNodeNotFound)
		}
		return appendAuditTx(ctx, tx, &s.auditSeq, AuditNodeHardDeleted, id.String(), actor, "")
	})
}

// ListNodes returns nodes matching the conjunction of filter criteria.
// Iteration order is unspecified.
func (s *Store) ListNodes(ctx context.Context, filter NodeFilter) ([]cortex.Node, error) {
	query, args := buildListQuery(filter, false)
	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cortex.NewError(cortex.ErrKindStorage, "list nodes", err)
	}
	defer rows.Close()

	var out []cortex.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, cortex.NewError(cortex.ErrKindStorage, "scan node row", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// CountNodes returns the count of nodes matching filter.
func (s *Store) CountNodes(ctx context.Context, filter NodeFilter) (uint64, error) {
	query, args := buildListQuery(filter, true)
	var count uint64
	if err := s.read.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, cortex.NewError(cortex.ErrKindStorage, "count nodes", err)
	}
	return count, nil
}

func buildListQuery(f NodeFilter, countOnly bool) (string, []any) {
	var where []string
	var args []any

	if !f.IncludeDeleted {
		where = append(where, "deleted = 0")
	}
	if f.DeletedOnly {
		where = append(where, "deleted = 1")
	}
	if len(f.Kinds) > 0 {
		placeholders := make([]string, len(f.Kinds))
		for i, k := range f.Kinds {
			placeholders[i] = "?"
			args = append(args, k)
		}
		where = append(where, "kind IN ("+strings.Join(placeholders, ",")+")")
	}
	if f.SourceAgent != "" {
		where = append(where, "source_agent = ?")
		args = append(args, f.SourceAgent)
	}
	if f.CreatedAfter != nil {
		where = append(where, "created_at > ?")
		args = append(args, f.CreatedAfter.UnixNano())
	}
	if f.CreatedBefore != nil {
		where = append(where, "created_at < ?")
		args = append(args, f.CreatedBefore.UnixNano())
	}
	if f.UpdatedBefore != nil {
		where = append(where, "updated_at < ?")
		args = append(args, f.UpdatedBefore.UnixNano())
	}
	if f.MinImportance != nil {
		where = append(where, "importance >= ?")
		args = append(args, *f.MinImportance)
	}
	if len(f.Tags) > 0 {
		var tagClauses []string
		for _, t := range f.Tags {
			tagClauses = append(tagClauses, "tags LIKE ?")
			args = append(args, "%\""+t+"\"%")
		}
		where = append(where, "("+strings.Join(tagClauses, " OR ")+")")
	}

	var sb strings.Builder
	if countOnly {
		sb.WriteString("SELECT COUNT(*) FROM nodes")
	} else {
		sb.WriteString(`SELECT id, kind, title, body, metadata, tags, embedding, source_agent,
			source_session, source_channel, importance, access_count,
			last_accessed_at, created_at, updated_at, deleted FROM nodes`)
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	if !countOnly {
		if f.Limit > 0 {
			sb.WriteString(" LIMIT ?")
			args = append(args, f.Limit)
			if f.Offset > 0 {
				sb.WriteString(" OFFSET ?")
				args = append(args, f.Offset)
			}
		}
	}
	return sb.String(), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (cortex.Node, error) {
	var (
		id, kindStr, title, body   string
		metaBuf, tagsBuf, embedBuf []byte
		sourceAgent                string
		sourceSession, sourceChan  sql.NullString
		importance                 float32
		accessCount                uint64
		lastAccessedAt             int64
		createdAt, updatedAt       int64
		deletedInt                 int
	)
	if err := row.Scan(&id, &kindStr, &title, &body, &metaBuf, &tagsBuf, &embedBuf,
		&sourceAgent, &sourceSession, &sourceChan, &importance, &accessCount,
		&lastAccessedAt, &createdAt, &updatedAt, &deletedInt); err != nil {
		return cortex.Node{}, err
	}
	nodeID, err := cortex.ParseNodeId(id)
	if err != nil {
		return cortex.Node{}, err
	}
	kind, err := cortex.NewNodeKind(kindStr)
	if err != nil {
		return cortex.Node{}, err
	}
	return cortex.Node{
		ID:             nodeID,
		Kind:           kind,
		Title:          title,
		Body:           body,
		Metadata:       decodeMetadata(metaBuf),
		Tags:           decodeTags(tagsBuf),
		Embedding:      decodeEmbedding(embedBuf),
		Source: cortex.Source{
			Agent:   sourceAgent,
			Session: fromNullString(sourceSession),
			Channel: fromNullString(sourceChan),
		},
		Importance:     importance,
		AccessCount:    accessCount,
		LastAccessedAt: time.Unix(0, lastAccessedAt).UTC(),
		CreatedAt:      time.Unix(0, createdAt).UTC(),
		UpdatedAt:      time.Unix(0, updatedAt).UTC(),
		Deleted:        deletedInt != 0,
	}, nil
}

// AllNodes returns every live node, for callers (GraphEngine) that need the
// full node set rather than a filtered page.
func (s *Store) AllNodes(ctx context.Context) ([]cortex.Node, error) {
	return s.ListNodes(ctx, NewNodeFilter())
}

// PutNodesBatch upserts multiple nodes in a single transaction.
func (s *Store) PutNodesBatch(ctx context.Context, nodes []cortex.Node) error {
	for _, n := range nodes {
		if err := n.Validate(); err != nil {
			return err
		}
	}
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		for _, n := range nodes {
			if err := putNodeTx(ctx, tx, n, &s.auditSeq); err != nil {
				return err
			}
		}
		return nil
	})
}

func putNodeTx(ctx context.Context, tx *sql.Tx, n cortex.Node, auditSeq *atomic.Uint64) error {
	metaJSON, err := encodeJSON(n.Metadata)
	if err != nil {
		return cortex.NewErrorWithID(cortex.ErrKindSerialization, n.ID.String(), "marshal metadata", err)
	}
	tagsJSON, err := encodeJSON(n.Tags)
	if err != nil {
		return cortex.NewErrorWithID(cortex.ErrKindSerialization, n.ID.String(), "marshal tags", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (id, kind, title, body, metadata, tags, embedding,
			source_agent, source_session, source_channel, importance,
			access_count, last_accessed_at, created_at, updated_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			kind=excluded.kind, title=excluded.title, body=excluded.body,
			metadata=excluded.metadata, tags=excluded.tags, embedding=excluded.embedding,
			source_agent=excluded.source_agent, source_session=excluded.source_session,
			source_channel=excluded.source_channel, importance=excluded.importance,
			access_count=excluded.access_count, last_accessed_at=excluded.last_accessed_at,
			updated_at=excluded.updated_at, deleted=excluded.deleted`,
		n.ID.String(), n.Kind.String(), n.Title, n.Body, metaJSON, tagsJSON, encodeEmbedding(n.Embedding),
		n.Source.Agent, nullString(n.Source.Session), nullString(n.Source.Channel), n.Importance,
		n.AccessCount, n.LastAccessedAt.UnixNano(), n.CreatedAt.UnixNano(), n.UpdatedAt.UnixNano(), boolToInt(n.Deleted),
	)
	if err != nil {
		return cortex.NewErrorWithID(cortex.ErrKindStorage, n.ID.String(), "upsert node", err)
	}
	return appendAuditTx(ctx, tx, auditSeq, AuditNodeCreated, n.ID.String(), n.Source.Agent, "")
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
