// Package postgres persists vault operation records to Postgres.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jarrodwatts/aborean-vault/internal/journal"
)

// Store is a journal sink backed by a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Init creates the operations table when it does not exist yet.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS vault_operations (
			id BIGSERIAL PRIMARY KEY,
			op TEXT NOT NULL,
			owner TEXT,
			assets_in NUMERIC,
			assets_out NUMERIC,
			shares NUMERIC,
			total_value NUMERIC,
			total_supply NUMERIC,
			occurred_at TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

// Append inserts a batch of operation records.
func (s *Store) Append(ctx context.Context, records []journal.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, record := range records {
		batch.Queue(`
			INSERT INTO vault_operations (
				op, owner, assets_in, assets_out, shares, total_value, total_supply, occurred_at
			) VALUES ($1, $2, NULLIF($3,'')::numeric, NULLIF($4,'')::numeric, NULLIF($5,'')::numeric, NULLIF($6,'')::numeric, NULLIF($7,'')::numeric, $8)
		`,
			record.Op,
			record.Owner,
			record.AssetsIn,
			record.AssetsOut,
			record.Shares,
			record.TotalValue,
			record.TotalSupply,
			record.Timestamp,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range records {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}
