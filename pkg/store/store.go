// Package store implements Cortex's durable, transactional persistence of
// Nodes and Edges: a binary KV-style substrate realized as a single SQLite
// database in WAL mode, with secondary indexes maintained as SQL indexes.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cortex-db/cortex/pkg/cortex"
)

const currentSchemaVersion = 2

// Store is a single SQLite-backed database file implementing the engine's
// persistence contract. Any number of read handles may coexist; exactly
// one writer commit is in flight at a time (enforced via a single-open-
// connection write pool, WAL mode, and an in-process write mutex).
type Store struct {
	write *sql.DB // single connection, serializes writers
	read  *sql.DB // pooled, read-only-ish connections for concurrent reads

	writeMu sync.Mutex // belt-and-suspenders on top of SetMaxOpenConns(1)

	// graphVersion is bumped on every committed write; used to invalidate
	// the GraphEngine's adjacency cache and the Briefing cache.
	graphVersion atomic.Uint64

	// onCommit are invoked after every committed write transaction
	// (metadata writes included), while writeMu is still held. GraphEngine
	// registers its adjacency cache invalidation here.
	onCommitMu sync.Mutex
	onCommit   []func()

	auditSeq atomic.Uint64
}

// Open opens (creating if absent) a SQLite-backed Store at path. Pass
// ":memory:" for an ephemeral in-process database, matching the teacher's
// test convention.
func Open(path string) (*Store, error) {
	dsn := path
	write, err := sql.Open(sqlDriverName, dsn)
	if err != nil {
		return nil, cortex.NewError(cortex.ErrKindStorage, "open database", err)
	}
	write.SetMaxOpenConns(1)

	// Every connection to ":memory:" opens its own private database, so an
	// in-memory Store reads through the single write connection.
	read := write
	if path != ":memory:" {
		read, err = sql.Open(sqlDriverName, dsn)
		if err != nil {
			write.Close()
			return nil, cortex.NewError(cortex.ErrKindStorage, "open database", err)
		}
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := write.Exec(p); err != nil {
			write.Close()
			read.Close()
			return nil, cortex.NewError(cortex.ErrKindStorage, "apply pragma "+p, err)
		}
	}

	s := &Store{write: write, read: read}
	if err := s.initSchema(); err != nil {
		write.Close()
		read.Close()
		return nil, err
	}
	return s, nil
}

// Close releases both underlying connections.
func (s *Store) Close() error {
	err1 := s.write.Close()
	err2 := s.read.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// OnCommit registers a callback invoked after every committed write. Used
// by GraphEngine and Briefing to invalidate their caches.
func (s *Store) OnCommit(fn func()) {
	s.onCommitMu.Lock()
	defer s.onCommitMu.Unlock()
	s.onCommit = append(s.onCommit, fn)
}

// GraphVersion returns the monotonic counter bumped on every committed
// write.
func (s *Store) GraphVersion() uint64 { return s.graphVersion.Load() }

func (s *Store) notifyCommit() {
	s.graphVersion.Add(1)
	s.onCommitMu.Lock()
	cbs := make([]func(), len(s.onCommit))
	copy(cbs, s.onCommit)
	s.onCommitMu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

// withWriteTx serializes access to the single write connection and runs fn
// inside a transaction, committing on success and rolling back on error.
// On successful commit it bumps the graph version and notifies observers.
func (s *Store) withWriteTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.write.BeginTx(ctx, nil)
	if err != nil {
		return cortex.NewError(cortex.ErrKindStorage, "begin transaction", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return cortex.NewError(cortex.ErrKindStorage, "commit transaction", err)
	}
	s.notifyCommit()
	return nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		title TEXT NOT NULL,
		body TEXT NOT NULL,
		metadata TEXT,
		tags TEXT,
		embedding BLOB,
		source_agent TEXT NOT NULL,
		source_session TEXT,
		source_channel TEXT,
		importance REAL NOT NULL DEFAULT 0.5,
		access_count INTEGER NOT NULL DEFAULT 0,
		last_accessed_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		deleted INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS nodes_by_kind ON nodes(kind);
	CREATE INDEX IF NOT EXISTS idx_nodes_deleted ON nodes(deleted);
	CREATE INDEX IF NOT EXISTS idx_nodes_created_at ON nodes(created_at);
	CREATE INDEX IF NOT EXISTS idx_nodes_updated_at ON nodes(updated_at);

	CREATE TABLE IF NOT EXISTS edges (
		id TEXT PRIMARY KEY,
		from_id TEXT NOT NULL,
		to_id TEXT NOT NULL,
		relation TEXT NOT NULL,
		weight REAL NOT NULL,
		provenance_kind TEXT NOT NULL,
		provenance_data TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (from_id) REFERENCES nodes(id),
		FOREIGN KEY (to_id) REFERENCES nodes(id)
	);
	CREATE INDEX IF NOT EXISTS edges_from ON edges(from_id);
	CREATE INDEX IF NOT EXISTS edges_to ON edges(to_id);
	CREATE INDEX IF NOT EXISTS idx_edges_relation ON edges(relation);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value BLOB
	);

	CREATE TABLE IF NOT EXISTS audit (
		seq_key INTEGER PRIMARY KEY,
		timestamp INTEGER NOT NULL,
		action TEXT NOT NULL,
		target_id TEXT NOT NULL,
		actor TEXT NOT NULL,
		details TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_audit_actor ON audit(actor);
	CREATE INDEX IF NOT EXISTS idx_audit_target ON audit(target_id);
	CREATE INDEX IF NOT EXISTS idx_audit_action ON audit(action);
	`
	if _, err := s.write.Exec(schema); err != nil {
		return cortex.NewError(cortex.ErrKindStorage, "initialize schema", err)
	}
	return s.migrateSchema()
}

// migrateSchema brings an existing database up to currentSchemaVersion,
// one linear step at a time, following the teacher's ALTER-TABLE idiom.
func (s *Store) migrateSchema() error {
	var raw sql.NullString
	err := s.write.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&raw)
	version := 0
	if err == nil && raw.Valid {
		fmt.Sscanf(raw.String, "%d", &version)
	} else if err != nil && err != sql.ErrNoRows {
		return cortex.NewError(cortex.ErrKindStorage, "read schema_version", err)
	}

	if version < 1 {
		version = 1
	}
	// v1 -> v2: no structural change in this revision beyond the baseline
	// schema above being the v2 shape from the start; version is recorded
	// so future migrations have a documented starting point.
	if version < currentSchemaVersion {
		version = currentSchemaVersion
	}

	_, err = s.write.Exec(
		"INSERT INTO meta(key, value) VALUES ('schema_version', ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value",
		fmt.Sprintf("%d", version),
	)
	if err != nil {
		return cortex.NewError(cortex.ErrKindStorage, "write schema_version", err)
	}
	return nil
}

// PutMetadata stores a metadata key/value pair in the `meta` table.
func (s *Store) PutMetadata(ctx context.Context, key string, value []byte) error {
	return s.withWriteTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO meta(key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value=excluded.value",
			key, value)
		if err != nil {
			return cortex.NewError(cortex.ErrKindStorage, "put metadata", err)
		}
		return nil
	})
}

// GetMetadata retrieves metadata by key, or (nil, false) if absent.
func (s *Store) GetMetadata(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.read.QueryRowContext(ctx, "SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cortex.NewError(cortex.ErrKindStorage, "get metadata", err)
	}
	return value, true, nil
}
