package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS participant_wallets (
	participant_id TEXT PRIMARY KEY,
	wallet_address TEXT NOT NULL,
	linked_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS purchase_requests (
	id             UUID PRIMARY KEY,
	thread_id      TEXT NOT NULL,
	participant_id TEXT NOT NULL,
	purchase_type  TEXT NOT NULL,
	wallet_address TEXT NOT NULL,
	quantity       INTEGER NOT NULL CHECK (quantity BETWEEN 1 AND 100),
	pool_contract  TEXT,
	outcome        TEXT NOT NULL,
	error          TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS purchase_requests_thread_idx ON purchase_requests (thread_id, created_at DESC);
`

// EnsureSchema creates the tables this service owns if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
