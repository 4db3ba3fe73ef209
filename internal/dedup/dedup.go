// Package dedup flags preview rows that restate money already recorded.
//
// A row is a duplicate when its (date, signed amount, normalized
// description) triple exactly matches a committed transaction for the same
// owner, or an earlier valid row in the same batch (overlapping re-upload).
// Date equality is mandatory: recurring charges to the same counterparty on
// different dates are never flagged. Duplicates are flagged, never removed.
package dedup

import (
	"fmt"
	"time"

	"github.com/finsightlab/finsight/internal/match"
	"github.com/finsightlab/finsight/internal/normalize"
	"github.com/shopspring/decimal"
)

// Key identifies a transaction for duplicate comparison.
type Key struct {
	Date           string // ISO date, e.g. "2024-01-15"
	Amount         string // canonical decimal string
	NormalizedDesc string
}

// NewKey builds a comparison key from canonical transaction fields. The
// description passes through the same normalization entity matching uses,
// so trivial formatting differences still collide.
func NewKey(date time.Time, amount decimal.Decimal, description string) Key {
	return Key{
		Date:           date.Format("2006-01-02"),
		Amount:         amount.String(),
		NormalizedDesc: match.Normalize(description),
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s", k.Date, k.Amount, k.NormalizedDesc)
}

// Reconcile marks is_duplicate on every valid row whose key matches the
// owner's committed history or an earlier row in the same batch. Invalid
// rows are skipped (they cannot commit, so they cannot duplicate).
func Reconcile(rows []normalize.PreviewRow, history map[Key]struct{}) {
	seen := make(map[Key]struct{}, len(rows))
	for i := range rows {
		r := &rows[i]
		if !r.Valid() {
			continue
		}
		key := NewKey(r.Date, r.Amount, r.Description)
		if _, dup := history[key]; dup {
			r.IsDuplicate = true
			continue
		}
		if _, dup := seen[key]; dup {
			r.IsDuplicate = true
			continue
		}
		seen[key] = struct{}{}
	}
}
