package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/finsightlab/finsight/internal/ledger"
	"github.com/finsightlab/finsight/internal/resolve"
	"github.com/finsightlab/finsight/internal/session"
)

// Categories returns the owner's taxonomy, seeding the default set on
// first use. The unique constraint keeps a concurrent first use from
// double-seeding.
func (s *Store) Categories(ctx context.Context, owner uuid.UUID) ([]ledger.Category, error) {
	cats, err := s.listCategories(ctx, owner)
	if err != nil {
		return nil, err
	}
	if len(cats) > 0 {
		return cats, nil
	}

	batch := &pgx.Batch{}
	for _, c := range ledger.DefaultCategories(owner) {
		batch.Queue(`
			INSERT INTO categories (id, owner_id, name, normalized_name, kind, is_default)
			VALUES ($1, $2, $3, $4, $5, true)
			ON CONFLICT (owner_id, normalized_name) DO NOTHING`,
			c.ID, c.OwnerID, c.Name, c.NormalizedName, c.Kind,
		)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("seed default categories: %w", err)
	}
	return s.listCategories(ctx, owner)
}

func (s *Store) listCategories(ctx context.Context, owner uuid.UUID) ([]ledger.Category, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, owner_id, name, normalized_name, kind, is_default, created_at
		FROM categories
		WHERE owner_id = $1
		ORDER BY kind, name`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []ledger.Category
	for rows.Next() {
		var c ledger.Category
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.NormalizedName, &c.Kind, &c.IsDefault, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CreateCategory adds a custom category to the owner's taxonomy.
func (s *Store) CreateCategory(ctx context.Context, owner uuid.UUID, name string, kind ledger.CategoryKind) (*ledger.Category, error) {
	c := ledger.Category{
		ID:             uuid.New(),
		OwnerID:        owner,
		Name:           name,
		NormalizedName: ledger.NormalizeName(name),
		Kind:           kind,
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO categories (id, owner_id, name, normalized_name, kind, is_default)
		VALUES ($1, $2, $3, $4, $5, false)
		ON CONFLICT (owner_id, normalized_name) DO UPDATE SET name = categories.name
		RETURNING id, created_at`,
		c.ID, c.OwnerID, c.Name, c.NormalizedName, c.Kind,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return &c, nil
}

func (s *Store) RelinkCategory(ctx context.Context, owner, txID uuid.UUID, categoryID *uuid.UUID, manual bool) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transactions
		SET category_id = $3, is_manually_corrected = (is_manually_corrected OR $4)
		WHERE id = $1 AND owner_id = $2`,
		txID, owner, categoryID, manual,
	)
	if err != nil {
		return fmt.Errorf("relink category: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return session.ErrTransactionGone
	}
	return nil
}

// SaveCorrection upserts a correction rule. A newer correction for the same
// normalized description replaces the old target: the user's latest word
// wins.
func (s *Store) SaveCorrection(ctx context.Context, rule ledger.CorrectionRule) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO correction_rules (id, owner_id, kind, normalized_description, target_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (owner_id, kind, normalized_description) DO UPDATE SET
			target_id = EXCLUDED.target_id,
			created_at = EXCLUDED.created_at`,
		rule.ID, rule.OwnerID, rule.Kind, rule.NormalizedDesc, rule.TargetID, rule.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("save correction: %w", err)
	}
	return nil
}

// Corrections loads the owner's correction memory for one kind, keyed by
// normalized description.
func (s *Store) Corrections(ctx context.Context, owner uuid.UUID, kind ledger.CorrectionKind) (resolve.Corrections, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT normalized_description, target_id
		FROM correction_rules
		WHERE owner_id = $1 AND kind = $2`,
		owner, kind,
	)
	if err != nil {
		return nil, fmt.Errorf("list corrections: %w", err)
	}
	defer rows.Close()

	out := make(resolve.Corrections)
	for rows.Next() {
		var (
			key    string
			target uuid.UUID
		)
		if err := rows.Scan(&key, &target); err != nil {
			return nil, fmt.Errorf("scan correction: %w", err)
		}
		out[key] = target
	}
	return out, rows.Err()
}
