// Package history manages the database-resident ledger of applied
// migrations (original §4.6's "History table bootstrap"). The table is
// created idempotently outside any user transaction so bootstrap never
// interferes with a migration's own transaction boundaries.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TableName is the single history table name; part of the database-resident
// contract (SPEC_FULL §7, original §6).
const TableName = "schema_migrations_history"

// Row is one applied-migration record.
type Row struct {
	Name      string
	Checksum  string
	AppliedAt time.Time
}

// Store wraps the history table's CRUD operations.
type Store struct {
	pool *pgxpool.Pool
}

// New returns a history Store bound to pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Bootstrap creates the history table if it does not exist. Called on
// every entry point, outside any migration's own transaction.
func (s *Store) Bootstrap(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name        text PRIMARY KEY,
			checksum    text NOT NULL,
			applied_at  timestamptz NOT NULL DEFAULT now()
		)
	`, TableName))
	if err != nil {
		return fmt.Errorf("history: bootstrap: %w", err)
	}
	return nil
}

// All returns every history row, ordered by applied_at ascending.
func (s *Store) All(ctx context.Context) ([]Row, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT name, checksum, applied_at FROM %s ORDER BY applied_at ASC`, TableName))
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Name, &r.Checksum, &r.AppliedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Insert records a newly applied migration within tx (the migration's own
// transaction, so the insert commits or rolls back atomically with the DDL
// it records — original §4.6 step 6).
func (s *Store) Insert(ctx context.Context, tx pgx.Tx, name, checksum string) error {
	_, err := tx.Exec(ctx, fmt.Sprintf(`INSERT INTO %s (name, checksum) VALUES ($1, $2)`, TableName), name, checksum)
	if err != nil {
		return fmt.Errorf("history: insert %s: %w", name, err)
	}
	return nil
}

// Delete removes a history row within tx (used by rollback).
func (s *Store) Delete(ctx context.Context, tx pgx.Tx, name string) error {
	_, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE name = $1`, TableName), name)
	if err != nil {
		return fmt.Errorf("history: delete %s: %w", name, err)
	}
	return nil
}

// LastN returns the last n history rows ordered by applied_at descending
// (most recently applied first), used by rollback.
func (s *Store) LastN(ctx context.Context, n int) ([]Row, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf(`SELECT name, checksum, applied_at FROM %s ORDER BY applied_at DESC LIMIT $1`, TableName), n)
	if err != nil {
		return nil, fmt.Errorf("history: last %d: %w", n, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Name, &r.Checksum, &r.AppliedAt); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
