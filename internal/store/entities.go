package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/finsightlab/finsight/internal/ledger"
	"github.com/finsightlab/finsight/internal/session"
)

const entityCols = `
	id, owner_id, name, normalized_name, type,
	total_revenue::text, total_expense::text, transaction_count,
	last_transaction_at, created_at`

func (s *Store) ListEntities(ctx context.Context, owner uuid.UUID) ([]ledger.Entity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+entityCols+` FROM entities WHERE owner_id = $1 ORDER BY normalized_name`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// EnsureEntity creates the entity if no entity with the same normalized
// name exists for the owner. The unique constraint makes concurrent calls
// converge on one row; a kind mismatch widens the entity to "both".
func (s *Store) EnsureEntity(ctx context.Context, owner uuid.UUID, name string, kind ledger.EntityType) (*ledger.Entity, error) {
	e, err := scanEntity(s.pool.QueryRow(ctx, `
		INSERT INTO entities (id, owner_id, name, normalized_name, type)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, normalized_name) DO UPDATE SET
			type = CASE
				WHEN entities.type = EXCLUDED.type THEN entities.type
				ELSE 'both'
			END
		RETURNING `+entityCols,
		uuid.New(), owner, name, ledger.NormalizeName(name), kind,
	))
	if err != nil {
		return nil, fmt.Errorf("ensure entity: %w", err)
	}
	return e, nil
}

// RelinkEntity repoints a transaction and moves the counter deltas in the
// same database transaction: the old entity is decremented, the new one
// incremented. Counters are never rebuilt by a scan on this path.
func (s *Store) RelinkEntity(ctx context.Context, owner, txID uuid.UUID, entityID *uuid.UUID, confidence float64, manual bool) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		var (
			oldEntity *uuid.UUID
			amount    string
			date      time.Time
		)
		err := tx.QueryRow(ctx, `
			SELECT entity_id, amount::text, date
			FROM transactions
			WHERE id = $1 AND owner_id = $2
			FOR UPDATE`,
			txID, owner,
		).Scan(&oldEntity, &amount, &date)
		if errors.Is(err, pgx.ErrNoRows) {
			return session.ErrTransactionGone
		}
		if err != nil {
			return fmt.Errorf("lock transaction: %w", err)
		}
		d, err := parseNumeric(amount)
		if err != nil {
			return fmt.Errorf("parse amount: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE transactions
			SET entity_id = $2, confidence = $3,
			    is_manually_corrected = (is_manually_corrected OR $4)
			WHERE id = $1`,
			txID, entityID, confidence, manual,
		)
		if err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}

		if oldEntity != nil {
			if err := adjustCounters(ctx, tx, *oldEntity, d, date, -1); err != nil {
				return err
			}
		}
		if entityID != nil {
			if err := adjustCounters(ctx, tx, *entityID, d, date, +1); err != nil {
				return err
			}
		}
		return nil
	})
}

// adjustCounters moves one transaction's contribution onto (sign +1) or off
// (sign -1) an entity. Linking also advances last_transaction_at; unlinking
// never rewinds it, RecomputeCounters repairs that drift.
func adjustCounters(ctx context.Context, tx pgx.Tx, entityID uuid.UUID, amount decimal.Decimal, date time.Time, sign int) error {
	delta := amount.Abs()
	if sign < 0 {
		delta = delta.Neg()
	}
	revenue, expense := decimal.Zero, decimal.Zero
	if amount.IsNegative() {
		expense = delta
	} else {
		revenue = delta
	}

	if sign > 0 {
		_, err := tx.Exec(ctx, `
			UPDATE entities SET
				transaction_count   = transaction_count + $2,
				total_revenue       = total_revenue + $3,
				total_expense       = total_expense + $4,
				last_transaction_at = GREATEST(COALESCE(last_transaction_at, $5), $5)
			WHERE id = $1`,
			entityID, sign, revenue.String(), expense.String(), date,
		)
		if err != nil {
			return fmt.Errorf("adjust entity counters: %w", err)
		}
		return nil
	}

	_, err := tx.Exec(ctx, `
		UPDATE entities SET
			transaction_count = transaction_count + $2,
			total_revenue     = total_revenue + $3,
			total_expense     = total_expense + $4
		WHERE id = $1`,
		entityID, sign, revenue.String(), expense.String(),
	)
	if err != nil {
		return fmt.Errorf("adjust entity counters: %w", err)
	}
	return nil
}

// RecomputeCounters rebuilds every entity counter for an owner from the
// committed transactions. Maintenance and test reconciliation only; the
// hot path maintains counters incrementally.
func (s *Store) RecomputeCounters(ctx context.Context, owner uuid.UUID) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE entities SET
				transaction_count = 0, total_revenue = 0, total_expense = 0,
				last_transaction_at = NULL
			WHERE owner_id = $1`,
			owner,
		); err != nil {
			return fmt.Errorf("reset counters: %w", err)
		}
		_, err := tx.Exec(ctx, `
			UPDATE entities e SET
				transaction_count   = agg.cnt,
				total_revenue       = agg.revenue,
				total_expense       = agg.expense,
				last_transaction_at = agg.last_at
			FROM (
				SELECT entity_id,
				       COUNT(*) AS cnt,
				       COALESCE(SUM(CASE WHEN amount >= 0 THEN amount ELSE 0 END), 0) AS revenue,
				       COALESCE(SUM(CASE WHEN amount < 0 THEN -amount ELSE 0 END), 0) AS expense,
				       MAX(date) AS last_at
				FROM transactions
				WHERE owner_id = $1 AND entity_id IS NOT NULL
				GROUP BY entity_id
			) agg
			WHERE e.id = agg.entity_id`,
			owner,
		)
		if err != nil {
			return fmt.Errorf("recompute counters: %w", err)
		}
		return nil
	})
}

func scanEntity(row pgx.Row) (*ledger.Entity, error) {
	var (
		e                ledger.Entity
		revenue, expense string
	)
	err := row.Scan(
		&e.ID, &e.OwnerID, &e.Name, &e.NormalizedName, &e.Type,
		&revenue, &expense, &e.TransactionCount,
		&e.LastTransactionAt, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if e.TotalRevenue, err = parseNumeric(revenue); err != nil {
		return nil, fmt.Errorf("parse total_revenue: %w", err)
	}
	if e.TotalExpense, err = parseNumeric(expense); err != nil {
		return nil, fmt.Errorf("parse total_expense: %w", err)
	}
	return &e, nil
}
