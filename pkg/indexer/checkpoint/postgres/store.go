// Package postgres implements a CheckpointStore backed by a pgxpool.Pool,
// for deployments that already run Postgres for other concerns. Load and
// Save each run as a single statement on the pool, not inside a
// caller-supplied transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rodolfodpk/bittensor-indexer/pkg/indexer"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS indexer_checkpoint (
	id INTEGER PRIMARY KEY,
	last_processed_block BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

// Store implements indexer.CheckpointStore against a shared pgxpool.Pool,
// keeping exactly one row (id = 0) as the watermark.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps pool as a CheckpointStore and ensures the checkpoint table
// exists. The pool is owned by the caller; Close does not close it.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, indexer.CheckpointErrorFor("open", "postgres", fmt.Errorf("pool cannot be nil"))
	}
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return nil, indexer.CheckpointErrorFor("open", "postgres", fmt.Errorf("migrate schema: %w", err))
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Load(ctx context.Context) (uint64, bool, error) {
	var block int64
	err := s.pool.QueryRow(ctx, `SELECT last_processed_block FROM indexer_checkpoint WHERE id = 0`).Scan(&block)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, indexer.CheckpointErrorFor("load", "postgres", err)
	}
	return uint64(block), true, nil
}

func (s *Store) Save(ctx context.Context, blockNumber uint64) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO indexer_checkpoint (id, last_processed_block, updated_at)
		VALUES (0, $1, now())
		ON CONFLICT (id) DO UPDATE SET
			last_processed_block = EXCLUDED.last_processed_block,
			updated_at = EXCLUDED.updated_at
	`, int64(blockNumber))
	if err != nil {
		return indexer.CheckpointErrorFor("save", "postgres", err)
	}
	return nil
}

// Close is a no-op: the pool is shared infrastructure owned by the caller,
// who is responsible for closing it once every consumer is done with it.
func (s *Store) Close(ctx context.Context) error {
	return nil
}
