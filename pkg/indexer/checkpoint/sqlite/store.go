// Package sqlite implements a CheckpointStore backed by an embedded SQLite
// database via mattn/go-sqlite3, for single-process deployments that want
// transactional durability without running a separate database server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rodolfodpk/bittensor-indexer/pkg/indexer"
)

const schema = `
CREATE TABLE IF NOT EXISTS indexer_checkpoint (
	id INTEGER PRIMARY KEY CHECK (id = 0),
	last_processed_block INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);`

// Store wraps a *sql.DB opened against the sqlite3 driver, keeping exactly
// one row (id = 0) as the single watermark.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database file at dsn and
// ensures the checkpoint table exists.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, indexer.CheckpointErrorFor("open", "sqlite", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, indexer.CheckpointErrorFor("open", "sqlite", fmt.Errorf("migrate schema: %w", err))
	}
	return &Store{db: db}, nil
}

func (s *Store) Load(ctx context.Context) (uint64, bool, error) {
	var block uint64
	err := s.db.QueryRowContext(ctx, `SELECT last_processed_block FROM indexer_checkpoint WHERE id = 0`).Scan(&block)
	switch {
	case err == sql.ErrNoRows:
		return 0, false, nil
	case err != nil:
		return 0, false, indexer.CheckpointErrorFor("load", "sqlite", err)
	}
	return block, true, nil
}

func (s *Store) Save(ctx context.Context, blockNumber uint64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO indexer_checkpoint (id, last_processed_block, updated_at)
		VALUES (0, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			last_processed_block = excluded.last_processed_block,
			updated_at = excluded.updated_at
	`, blockNumber)
	if err != nil {
		return indexer.CheckpointErrorFor("save", "sqlite", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	if err := s.db.Close(); err != nil {
		return indexer.CheckpointErrorFor("close", "sqlite", err)
	}
	return nil
}
