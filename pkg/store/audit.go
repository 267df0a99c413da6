package store

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
)

// AuditAction enumerates the kinds of mutation the audit log records.
type AuditAction int

const (
	AuditNodeCreated AuditAction = iota
	AuditNodeUpdated
	AuditNodeDeleted
	AuditNodeHardDeleted
	AuditEdgeCreated
	AuditEdgeDecayed
	AuditEdgePruned
	AuditNodeMerged
	AuditBriefingGenerated
	AuditSchemaUpgraded
)

func (a AuditAction) String() string {
	switch a {
	case AuditNodeCreated:
		return "node.created"
	case AuditNodeUpdated:
		return "node.updated"
	case AuditNodeDeleted:
		return "node.deleted"
	case AuditNodeHardDeleted:
		return "node.hard_deleted"
	case AuditEdgeCreated:
		return "edge.created"
	case AuditEdgeDecayed:
		return "edge.decayed"
	case AuditEdgePruned:
		return "edge.pruned"
	case AuditNodeMerged:
		return "node.merged"
	case AuditBriefingGenerated:
		return "briefing.generated"
	case AuditSchemaUpgraded:
		return "schema.upgraded"
	default:
		return "unknown"
	}
}

// AuditEntry is one append-only record of a committed mutation.
type AuditEntry struct {
	Timestamp time.Time
	Action    AuditAction
	TargetID  string
	Actor     string
	Details   string
}

// AuditFilter narrows Query results.
type AuditFilter struct {
	Action   *AuditAction
	TargetID string
	Actor    string
	Since    *time.Time
	Limit    int
}

// seqKey packs a millisecond timestamp (high bits) and the low 20 bits of an
// in-process counter (low bits) into a single int64. The timestamp is
// reduced to milliseconds so the shifted value fits in 63 bits; keys grow
// with time, and entries within the same millisecond are ordered by the
// counter.
func seqKey(nanos int64, seq uint64) int64 {
	return ((nanos / int64(time.Millisecond)) << 20) | int64(seq&0xFFFFF)
}

// appendAuditTx writes one audit entry in the same transaction as the
// mutation it records, so a crash between the two can never happen: spec's
// ordering guarantee is satisfied by construction rather than by replay.
func appendAuditTx(ctx context.Context, tx *sql.Tx, seq *atomic.Uint64, action AuditAction, targetID, actor, details string) error {
	now := time.Now().UTC()
	key := seqKey(now.UnixNano(), seq.Add(1))
	_, err := tx.ExecContext(ctx,
		"INSERT INTO audit (seq_key, timestamp, action, target_id, actor, details) VALUES (?, ?, ?, ?, ?, ?)",
		key, now.UnixNano(), action.String(), targetID, actor, details,
	)
	if err != nil {
		return cortex.NewErrorWithID(cortex.ErrKindStorage, targetID, "append audit entry", err)
	}
	return nil
}

// Query returns audit entries matching filter, newest first. Rows that fail
// to parse (e.g. an unrecognized action string from a future schema
// version) are skipped rather than failing the whole query.
func (s *Store) Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error) {
	query := "SELECT timestamp, action, target_id, actor, details FROM audit"
	var where []string
	var args []any

	if filter.Action != nil {
		where = append(where, "action = ?")
		args = append(args, filter.Action.String())
	}
	if filter.TargetID != "" {
		where = append(where, "target_id = ?")
		args = append(args, filter.TargetID)
	}
	if filter.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, filter.Actor)
	}
	if filter.Since != nil {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if len(where) > 0 {
		query += " WHERE "
		for i, w := range where {
			if i > 0 {
				query += " AND "
			}
			query += w
		}
	}
	query += " ORDER BY seq_key DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.read.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, cortex.NewError(cortex.ErrKindStorage, "query audit log", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var (
			ts                          int64
			actionStr, targetID, actor  string
			details                     sql.NullString
		)
		if err := rows.Scan(&ts, &actionStr, &targetID, &actor, &details); err != nil {
			continue
		}
		action, ok := parseAuditAction(actionStr)
		if !ok {
			continue
		}
		out = append(out, AuditEntry{
			Timestamp: time.Unix(0, ts).UTC(),
			Action:    action,
			TargetID:  targetID,
			Actor:     actor,
			Details:   details.String,
		})
	}
	return out, rows.Err()
}

func parseAuditAction(s string) (AuditAction, bool) {
	for a := AuditNodeCreated; a <= AuditSchemaUpgraded; a++ {
		if a.String() == s {
			return a, true
		}
	}
	return 0, false
}
