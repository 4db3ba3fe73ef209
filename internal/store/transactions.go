package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/finsightlab/finsight/internal/dedup"
	"github.com/finsightlab/finsight/internal/ledger"
	"github.com/finsightlab/finsight/internal/session"
)

const transactionCols = `
	id, owner_id, date, description, clean_description, normalized_description,
	amount::text, currency, balance::text, entity_id, category_id,
	is_duplicate, is_manually_corrected, confidence,
	import_session_id, row_index, created_at`

// TransactionKeys loads the owner's committed duplicate keys. The key is
// rebuilt from stored canonical fields, so it matches what the reconciler
// computes for incoming rows.
func (s *Store) TransactionKeys(ctx context.Context, owner uuid.UUID) (map[dedup.Key]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, date, amount::text, description
		FROM transactions
		WHERE owner_id = $1`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("query transaction keys: %w", err)
	}
	defer rows.Close()

	keys := make(map[dedup.Key]uuid.UUID)
	for rows.Next() {
		var (
			id     uuid.UUID
			tx     ledger.Transaction
			amount string
		)
		if err := rows.Scan(&id, &tx.Date, &amount, &tx.Description); err != nil {
			return nil, fmt.Errorf("scan transaction key: %w", err)
		}
		d, err := parseNumeric(amount)
		if err != nil {
			return nil, fmt.Errorf("parse amount: %w", err)
		}
		keys[dedup.NewKey(tx.Date, d, tx.Description)] = id
	}
	return keys, rows.Err()
}

// CommitImport writes the confirmed import in one transaction: new rows,
// in-place replacements for overwritten duplicates, and the session's
// result. All land together, which is what makes a retried confirm safe.
// The session row is locked and its status re-checked inside the
// transaction, so two confirms racing past the service's status read still
// commit exactly once.
func (s *Store) CommitImport(ctx context.Context, sess *session.ImportSession, inserts []ledger.Transaction, replace map[uuid.UUID]ledger.Transaction) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var status session.Status
		err := tx.QueryRow(ctx, `
			SELECT status FROM import_sessions
			WHERE id = $1 AND owner_id = $2
			FOR UPDATE`,
			sess.ID, sess.OwnerID,
		).Scan(&status)
		if errors.Is(err, pgx.ErrNoRows) {
			return session.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}
		switch status {
		case session.StatusPreviewReady:
		case session.StatusConfirmed:
			return session.ErrSessionCommitted
		default:
			return fmt.Errorf("%w: cannot commit in %s", session.ErrInvalidState, status)
		}

		batch := &pgx.Batch{}
		for i := range inserts {
			queueInsert(batch, &inserts[i])
		}
		for id, repl := range replace {
			r := repl
			batch.Queue(`
				UPDATE transactions SET
					date = $2, description = $3, clean_description = $4,
					normalized_description = $5, amount = $6, currency = $7,
					balance = $8, is_duplicate = $9,
					import_session_id = $10, row_index = $11
				WHERE id = $1`,
				id, r.Date, r.Description, r.CleanDescription,
				r.NormalizedDesc, r.Amount.String(), r.Currency,
				numericArg(r.Balance), r.IsDuplicate,
				r.ImportSessionID, r.RowIndex,
			)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("write transactions: %w", err)
			}
		}
		return s.saveSession(ctx, tx, sess)
	})
}

func queueInsert(batch *pgx.Batch, t *ledger.Transaction) {
	batch.Queue(`
		INSERT INTO transactions (
			id, owner_id, date, description, clean_description,
			normalized_description, amount, currency, balance,
			entity_id, category_id, is_duplicate, is_manually_corrected,
			confidence, import_session_id, row_index, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)`,
		t.ID, t.OwnerID, t.Date, t.Description, t.CleanDescription,
		t.NormalizedDesc, t.Amount.String(), t.Currency, numericArg(t.Balance),
		t.EntityID, t.CategoryID, t.IsDuplicate, t.IsManuallyCorrected,
		t.Confidence, t.ImportSessionID, t.RowIndex, t.CreatedAt,
	)
}

func (s *Store) GetTransaction(ctx context.Context, owner, id uuid.UUID) (*ledger.Transaction, error) {
	t, err := scanTransaction(s.pool.QueryRow(ctx,
		`SELECT `+transactionCols+` FROM transactions WHERE id = $1 AND owner_id = $2`,
		id, owner,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrTransactionGone
	}
	return t, err
}

func (s *Store) ListSessionTransactions(ctx context.Context, owner, sessionID uuid.UUID) ([]ledger.Transaction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transactionCols+`
		 FROM transactions
		 WHERE owner_id = $1 AND import_session_id = $2
		 ORDER BY row_index`,
		owner, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list session transactions: %w", err)
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTransaction(row pgx.Row) (*ledger.Transaction, error) {
	var (
		t       ledger.Transaction
		amount  string
		balance *string
	)
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.Date, &t.Description, &t.CleanDescription, &t.NormalizedDesc,
		&amount, &t.Currency, &balance, &t.EntityID, &t.CategoryID,
		&t.IsDuplicate, &t.IsManuallyCorrected, &t.Confidence,
		&t.ImportSessionID, &t.RowIndex, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Amount, err = parseNumeric(amount); err != nil {
		return nil, fmt.Errorf("parse amount: %w", err)
	}
	if balance != nil {
		b, err := parseNumeric(*balance)
		if err != nil {
			return nil, fmt.Errorf("parse balance: %w", err)
		}
		t.Balance = &b
	}
	return &t, nil
}

// numericArg renders an optional decimal for a nullable NUMERIC column.
func numericArg(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
