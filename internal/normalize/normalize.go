// Package normalize converts raw rows into canonical preview records using
// an accepted column mapping.
//
// No row is ever skipped silently: every data row yields either a fully
// normalized record or a record carrying one or more validation errors.
// Errors accumulate per row instead of short-circuiting, so a row with a
// bad date and a blank description reports both problems at once.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/finsightlab/finsight/internal/detect"
	"github.com/finsightlab/finsight/internal/money"
	"github.com/finsightlab/finsight/internal/tabular"
	"github.com/shopspring/decimal"
)

// ErrorCode is a stable row-level validation error code.
type ErrorCode string

const (
	CodeInvalidDate        ErrorCode = "INVALID_DATE"
	CodeInvalidAmount      ErrorCode = "INVALID_AMOUNT"
	CodeAmbiguousAmount    ErrorCode = "AMBIGUOUS_AMOUNT"
	CodeMissingDescription ErrorCode = "MISSING_DESCRIPTION"
)

// RowError is one validation problem on one row.
type RowError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// PreviewRow is one row's normalization result. Ephemeral: it exists only
// within a session until confirm or cancel.
type PreviewRow struct {
	Index       int              `json:"row"` // 1-based row index in the source file
	Date        time.Time        `json:"date,omitzero"`
	Description string           `json:"description"`
	Amount      decimal.Decimal  `json:"amount"`
	Balance     *decimal.Decimal `json:"balance,omitempty"`
	Currency    string           `json:"currency,omitempty"`
	IsDuplicate bool             `json:"is_duplicate"`
	Errors      []RowError       `json:"errors,omitempty"`
}

// Valid reports whether the row normalized without validation errors.
func (r *PreviewRow) Valid() bool {
	return len(r.Errors) == 0
}

// Rows normalizes every data row of the file against the mapping, one
// PreviewRow per input row, in file order.
func Rows(f *tabular.File, m *detect.Mapping) []PreviewRow {
	out := make([]PreviewRow, 0, len(f.Rows))
	for _, raw := range f.Rows {
		out = append(out, Row(raw, m))
	}
	return out
}

// Row normalizes a single raw row.
func Row(raw tabular.RawRow, m *detect.Mapping) PreviewRow {
	r := PreviewRow{Index: raw.Index}

	cell := func(role detect.Role) (string, bool) {
		col, ok := m.Column(role)
		if !ok || col >= len(raw.Cells) {
			return "", ok
		}
		return raw.Cells[col], true
	}

	// Date.
	if v, mapped := cell(detect.RoleDate); mapped {
		t, err := detect.ParseDate(v, m.DateLayout)
		if err != nil {
			r.addError(CodeInvalidDate, fmt.Sprintf("cannot parse date %q", v))
		} else {
			r.Date = t
		}
	} else {
		r.addError(CodeInvalidDate, "no date column mapped")
	}

	// Description: blank is an error but never blocks amount/date handling.
	if v, mapped := cell(detect.RoleDescription); mapped && strings.TrimSpace(v) != "" {
		r.Description = collapseWhitespace(v)
	} else {
		r.addError(CodeMissingDescription, "description is empty")
	}

	// Amount: single signed column, or a debit/credit split where exactly
	// one side must be populated. A populated debit is money paid
	// (negative); a populated credit is money received (positive). This
	// sign convention is never flipped downstream.
	if m.HasSplitAmount() {
		r.normalizeSplitAmount(raw, m)
	} else if v, mapped := cell(detect.RoleAmount); mapped {
		d, err := money.ParseAmount(v)
		if err != nil {
			r.addError(CodeInvalidAmount, fmt.Sprintf("cannot parse amount %q", v))
		} else {
			r.Amount = d
			r.Currency = money.DetectCurrency(v)
		}
	} else {
		r.addError(CodeInvalidAmount, "no amount column mapped")
	}

	// Balance is optional; a bad balance cell does not invalidate the row.
	if v, mapped := cell(detect.RoleBalance); mapped && strings.TrimSpace(v) != "" {
		if d, err := money.ParseAmount(v); err == nil {
			r.Balance = &d
		}
	}

	return r
}

func (r *PreviewRow) normalizeSplitAmount(raw tabular.RawRow, m *detect.Mapping) {
	get := func(role detect.Role) string {
		if col, ok := m.Column(role); ok && col < len(raw.Cells) {
			return strings.TrimSpace(raw.Cells[col])
		}
		return ""
	}
	debit, credit := get(detect.RoleDebit), get(detect.RoleCredit)

	switch {
	case debit != "" && credit != "":
		r.addError(CodeAmbiguousAmount, "both debit and credit populated")
	case debit == "" && credit == "":
		r.addError(CodeAmbiguousAmount, "neither debit nor credit populated")
	case debit != "":
		d, err := money.ParseAmount(debit)
		if err != nil {
			r.addError(CodeInvalidAmount, fmt.Sprintf("cannot parse debit %q", debit))
			return
		}
		r.Amount = d.Abs().Neg()
		r.Currency = money.DetectCurrency(debit)
	default:
		d, err := money.ParseAmount(credit)
		if err != nil {
			r.addError(CodeInvalidAmount, fmt.Sprintf("cannot parse credit %q", credit))
			return
		}
		r.Amount = d.Abs()
		r.Currency = money.DetectCurrency(credit)
	}
}

func (r *PreviewRow) addError(code ErrorCode, msg string) {
	r.Errors = append(r.Errors, RowError{Code: code, Message: msg})
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Counts derives the valid/error tallies from a preview set. Counters are
// always derived from the rows, never maintained separately, so they cannot
// drift.
func Counts(rows []PreviewRow) (valid, invalid, duplicates int) {
	for i := range rows {
		if rows[i].Valid() {
			valid++
			if rows[i].IsDuplicate {
				duplicates++
			}
		} else {
			invalid++
		}
	}
	return valid, invalid, duplicates
}
