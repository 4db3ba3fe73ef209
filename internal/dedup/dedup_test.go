package dedup

import (
	"testing"
	"time"

	"github.com/finsightlab/finsight/internal/normalize"
	"github.com/shopspring/decimal"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func row(date, desc, amount string) normalize.PreviewRow {
	return normalize.PreviewRow{
		Date:        day(date),
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
	}
}

func TestReconcile_WithinBatch(t *testing.T) {
	rows := []normalize.PreviewRow{
		row("2024-01-15", "ACME Corp Payment", "1250.00"),
		row("2024-01-16", "Office Depot", "-45.67"),
		row("2024-01-15", "ACME Corp Payment", "1250.00"),
		row("2024-01-16", "Office Depot", "-45.67"),
	}

	Reconcile(rows, nil)

	for i, want := range []bool{false, false, true, true} {
		if rows[i].IsDuplicate != want {
			t.Errorf("row %d: is_duplicate = %v, want %v", i, rows[i].IsDuplicate, want)
		}
	}
}

func TestReconcile_AgainstHistory(t *testing.T) {
	history := map[Key]struct{}{
		NewKey(day("2024-01-15"), decimal.RequireFromString("1250.00"), "ACME Corp Payment"): {},
	}

	rows := []normalize.PreviewRow{
		row("2024-01-15", "acme   corp payment", "1250.00"), // formatting variant of committed row
		row("2024-01-15", "Office Depot", "-45.67"),
	}

	Reconcile(rows, history)

	if !rows[0].IsDuplicate {
		t.Error("formatting variant of a committed transaction must be flagged")
	}
	if rows[1].IsDuplicate {
		t.Error("unseen transaction must not be flagged")
	}
}

func TestReconcile_RecurringChargesNotFlagged(t *testing.T) {
	rows := []normalize.PreviewRow{
		row("2024-01-01", "Netflix Subscription", "-15.99"),
		row("2024-02-01", "Netflix Subscription", "-15.99"),
		row("2024-03-01", "Netflix Subscription", "-15.99"),
	}

	Reconcile(rows, nil)

	for i := range rows {
		if rows[i].IsDuplicate {
			t.Errorf("recurring charge on a distinct date flagged as duplicate (row %d)", i)
		}
	}
}

func TestReconcile_InvalidRowsIgnored(t *testing.T) {
	bad := row("2024-01-15", "ACME Corp Payment", "1250.00")
	bad.Errors = []normalize.RowError{{Code: normalize.CodeInvalidDate}}

	rows := []normalize.PreviewRow{
		bad,
		row("2024-01-15", "ACME Corp Payment", "1250.00"),
	}

	Reconcile(rows, nil)

	if rows[0].IsDuplicate || rows[1].IsDuplicate {
		t.Error("invalid rows must not participate in duplicate detection")
	}
}
