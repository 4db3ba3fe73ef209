// Package store persists sessions, transactions, entities, categories, and
// correction rules in PostgreSQL. It implements session.Store on a pgx
// connection pool.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DBTX is the subset of pgx satisfied by both a pool and a transaction, so
// query helpers can run inside or outside an explicit transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the PostgreSQL persistence layer.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool. The caller owns the pool's lifecycle.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS import_sessions (
	id              UUID PRIMARY KEY,
	owner_id        UUID NOT NULL,
	file_name       TEXT NOT NULL,
	file_data       BYTEA,
	status          TEXT NOT NULL,
	failure_code    TEXT NOT NULL DEFAULT '',
	mapping         JSONB,
	overrides       JSONB,
	preview         JSONB,
	total_rows      INT NOT NULL DEFAULT 0,
	valid_rows      INT NOT NULL DEFAULT 0,
	error_rows      INT NOT NULL DEFAULT 0,
	duplicate_rows  INT NOT NULL DEFAULT 0,
	result          JSONB,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_import_sessions_owner
	ON import_sessions (owner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS entities (
	id                  UUID PRIMARY KEY,
	owner_id            UUID NOT NULL,
	name                TEXT NOT NULL,
	normalized_name     TEXT NOT NULL,
	type                TEXT NOT NULL,
	total_revenue       NUMERIC NOT NULL DEFAULT 0,
	total_expense       NUMERIC NOT NULL DEFAULT 0,
	transaction_count   BIGINT NOT NULL DEFAULT 0,
	last_transaction_at DATE,
	created_at          TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (owner_id, normalized_name)
);

CREATE TABLE IF NOT EXISTS categories (
	id              UUID PRIMARY KEY,
	owner_id        UUID NOT NULL,
	name            TEXT NOT NULL,
	normalized_name TEXT NOT NULL,
	kind            TEXT NOT NULL,
	is_default      BOOLEAN NOT NULL DEFAULT false,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (owner_id, normalized_name)
);

CREATE TABLE IF NOT EXISTS transactions (
	id                     UUID PRIMARY KEY,
	owner_id               UUID NOT NULL,
	date                   DATE NOT NULL,
	description            TEXT NOT NULL,
	clean_description      TEXT NOT NULL,
	normalized_description TEXT NOT NULL,
	amount                 NUMERIC NOT NULL,
	currency               TEXT NOT NULL DEFAULT '',
	balance                NUMERIC,
	entity_id              UUID REFERENCES entities (id),
	category_id            UUID REFERENCES categories (id),
	is_duplicate           BOOLEAN NOT NULL DEFAULT false,
	is_manually_corrected  BOOLEAN NOT NULL DEFAULT false,
	confidence             DOUBLE PRECISION NOT NULL DEFAULT 0,
	import_session_id      UUID NOT NULL,
	row_index              INT NOT NULL DEFAULT 0,
	created_at             TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_owner_date
	ON transactions (owner_id, date);
CREATE INDEX IF NOT EXISTS idx_transactions_session
	ON transactions (import_session_id);

CREATE TABLE IF NOT EXISTS correction_rules (
	id                     UUID PRIMARY KEY,
	owner_id               UUID NOT NULL,
	kind                   TEXT NOT NULL,
	normalized_description TEXT NOT NULL,
	target_id              UUID NOT NULL,
	created_at             TIMESTAMPTZ NOT NULL,
	UNIQUE (owner_id, kind, normalized_description)
);
`

// Migrate creates the schema if it does not exist. Idempotent; run once at
// startup.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// withTx runs fn inside a transaction, committing on success.
func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// parseNumeric converts a NUMERIC fetched as text back to a decimal.
func parseNumeric(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
