// Package ledger defines the committed, canonical records the pipeline
// produces: transactions, counterparty entities, categories, and the
// correction rules that teach future resolutions.
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NormalizeName canonicalizes an entity or category name for uniqueness
// checks: lowercase with collapsed whitespace.
func NormalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}

// EntityType classifies a counterparty by money direction.
type EntityType string

const (
	EntityCustomer EntityType = "customer"
	EntitySupplier EntityType = "supplier"
	EntityBoth     EntityType = "both"
)

// CategoryKind separates spending from revenue taxonomies.
type CategoryKind string

const (
	CategoryExpense CategoryKind = "expense"
	CategoryRevenue CategoryKind = "revenue"
)

// CorrectionKind tells which resolver a correction rule belongs to.
type CorrectionKind string

const (
	CorrectEntity   CorrectionKind = "entity"
	CorrectCategory CorrectionKind = "category"
)

// Transaction is the committed canonical record. Created only by a session
// confirm; mutated by manual edits and entity/category resolution; never
// deleted by the pipeline.
type Transaction struct {
	ID                  uuid.UUID        `json:"id"`
	OwnerID             uuid.UUID        `json:"owner_id"`
	Date                time.Time        `json:"date"`
	Description         string           `json:"description"`       // raw source text
	CleanDescription    string           `json:"clean_description"` // whitespace-collapsed
	NormalizedDesc      string           `json:"normalized_description"`
	Amount              decimal.Decimal  `json:"amount"` // positive = received, negative = paid
	Currency            string           `json:"currency"`
	Balance             *decimal.Decimal `json:"balance,omitempty"`
	EntityID            *uuid.UUID       `json:"entity_id,omitempty"`
	CategoryID          *uuid.UUID       `json:"category_id,omitempty"`
	IsDuplicate         bool             `json:"is_duplicate"`
	IsManuallyCorrected bool             `json:"is_manually_corrected"`
	Confidence          float64          `json:"confidence"`
	ImportSessionID     uuid.UUID        `json:"import_session_id"`
	RowIndex            int              `json:"row_index"` // 1-based row in the source file
	CreatedAt           time.Time        `json:"created_at"`
}

// Entity is a counterparty with denormalized running totals. Unique per
// (owner, normalized name); counters are maintained incrementally by the
// relink operation, never by hot-path table scans.
type Entity struct {
	ID               uuid.UUID       `json:"id"`
	OwnerID          uuid.UUID       `json:"owner_id"`
	Name             string          `json:"name"`
	NormalizedName   string          `json:"normalized_name"`
	Type             EntityType      `json:"type"`
	TotalRevenue     decimal.Decimal `json:"total_revenue"`
	TotalExpense     decimal.Decimal `json:"total_expense"`
	TransactionCount int64           `json:"transaction_count"`

	// LastTransactionAt is the latest linked transaction date. Advanced on
	// link; unlinking does not rewind it (recompute does).
	LastTransactionAt *time.Time `json:"last_transaction_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Category is one node of a per-owner flat taxonomy.
type Category struct {
	ID             uuid.UUID    `json:"id"`
	OwnerID        uuid.UUID    `json:"owner_id"`
	Name           string       `json:"name"`
	NormalizedName string       `json:"normalized_name"`
	Kind           CategoryKind `json:"kind"`
	IsDefault      bool         `json:"is_default"`
	CreatedAt      time.Time    `json:"created_at"`
}

// CorrectionRule binds an owner's normalized description to a corrected
// entity or category. Consulted before any heuristic on every later
// resolution for that owner.
type CorrectionRule struct {
	ID             uuid.UUID      `json:"id"`
	OwnerID        uuid.UUID      `json:"owner_id"`
	Kind           CorrectionKind `json:"kind"`
	NormalizedDesc string         `json:"normalized_description"`
	TargetID       uuid.UUID      `json:"target_id"`
	CreatedAt      time.Time      `json:"created_at"`
}

// DefaultCategories is the fixed taxonomy seeded per owner on first use.
func DefaultCategories(owner uuid.UUID) []Category {
	expense := []string{
		"Software & Subscriptions", "Office Expenses", "Marketing",
		"Professional Services", "Travel & Transport", "Meals & Entertainment",
		"Rent/Utilities", "Equipment", "Taxes", "Other",
	}
	revenue := []string{"Sales Revenue", "Services Revenue", "Other Income"}

	out := make([]Category, 0, len(expense)+len(revenue))
	add := func(names []string, kind CategoryKind) {
		for _, name := range names {
			out = append(out, Category{
				ID:             uuid.New(),
				OwnerID:        owner,
				Name:           name,
				NormalizedName: NormalizeName(name),
				Kind:           kind,
				IsDefault:      true,
			})
		}
	}
	add(expense, CategoryExpense)
	add(revenue, CategoryRevenue)
	return out
}
