package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"io"
	"os"
	"time"

	"github.com/cortex-db/cortex/pkg/cortex"
)

// Snapshot writes a consistent copy of the database to destPath using
// SQLite's VACUUM INTO, then writes destPath + ".sha256" containing the hex
// digest of the snapshot file, letting callers verify transfer integrity.
func (s *Store) Snapshot(ctx context.Context, destPath string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.write.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return cortex.NewError(cortex.ErrKindStorage, "snapshot database", err)
	}

	f, err := os.Open(destPath)
	if err != nil {
		return cortex.NewError(cortex.ErrKindStorage, "open snapshot for hashing", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return cortex.NewError(cortex.ErrKindStorage, "hash snapshot", err)
	}
	digest := hex.EncodeToString(h.Sum(nil))
	if err := os.WriteFile(destPath+".sha256", []byte(digest+"\n"), 0o644); err != nil {
		return cortex.NewError(cortex.ErrKindStorage, "write snapshot checksum", err)
	}
	return nil
}

// Stats computes aggregate counts and the on-disk size of the database.
func (s *Store) Stats(ctx context.Context) (StorageStats, error) {
	var stats StorageStats
	stats.NodeCountsByKind = map[string]uint64{}
	stats.EdgeCountsByRelation = map[string]uint64{}

	if err := s.read.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes WHERE deleted = 0").Scan(&stats.NodeCount); err != nil {
		return stats, cortex.NewError(cortex.ErrKindStorage, "count nodes", err)
	}
	if err := s.read.QueryRowContext(ctx, "SELECT COUNT(*) FROM edges").Scan(&stats.EdgeCount); err != nil {
		return stats, cortex.NewError(cortex.ErrKindStorage, "count edges", err)
	}

	rows, err := s.read.QueryContext(ctx, "SELECT kind, COUNT(*) FROM nodes WHERE deleted = 0 GROUP BY kind")
	if err != nil {
		return stats, cortex.NewError(cortex.ErrKindStorage, "count nodes by kind", err)
	}
	for rows.Next() {
		var kind string
		var count uint64
		if err := rows.Scan(&kind, &count); err != nil {
			rows.Close()
			return stats, cortex.NewError(cortex.ErrKindStorage, "scan node kind count", err)
		}
		stats.NodeCountsByKind[kind] = count
	}
	rows.Close()

	rows, err = s.read.QueryContext(ctx, "SELECT relation, COUNT(*) FROM edges GROUP BY relation")
	if err != nil {
		return stats, cortex.NewError(cortex.ErrKindStorage, "count edges by relation", err)
	}
	for rows.Next() {
		var relation string
		var count uint64
		if err := rows.Scan(&relation, &count); err != nil {
			rows.Close()
			return stats, cortex.NewError(cortex.ErrKindStorage, "scan edge relation count", err)
		}
		stats.EdgeCountsByRelation[relation] = count
	}
	rows.Close()

	var oldest, newest sql.NullInt64
	if err := s.read.QueryRowContext(ctx, "SELECT MIN(created_at), MAX(created_at) FROM nodes WHERE deleted = 0").Scan(&oldest, &newest); err != nil {
		return stats, cortex.NewError(cortex.ErrKindStorage, "node time range", err)
	}
	if oldest.Valid {
		t := time.Unix(0, oldest.Int64).UTC()
		stats.OldestNode = &t
	}
	if newest.Valid {
		t := time.Unix(0, newest.Int64).UTC()
		stats.NewestNode = &t
	}

	var pageCount, pageSize int64
	if err := s.read.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := s.read.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			stats.DBSizeBytes = uint64(pageCount * pageSize)
		}
	}

	return stats, nil
}
