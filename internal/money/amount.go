// Package money parses user-supplied amount strings into exact decimals.
//
// It tolerates the usual spreadsheet noise: currency symbols, thousands
// separators, leading plus signs, and accounting-style parenthesized
// negatives ("(123.45)" means -123.45).
package money

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// strip has already consumed the sign, so a bare digit string is all that
// may remain; a leftover sign means the input carried more than one.
var numericRe = regexp.MustCompile(`^(\d+(\.\d*)?|\.\d+)$`)

var currencySymbols = map[string]string{
	"$": "USD",
	"€": "EUR",
	"£": "GBP",
}

// ParseAmount converts a raw cell value into a signed decimal.
// Returns an error for empty or non-numeric input.
func ParseAmount(s string) (decimal.Decimal, error) {
	cleaned, negative := strip(s)
	if cleaned == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	if !numericRe.MatchString(cleaned) {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// IsAmount reports whether s parses as an amount.
func IsAmount(s string) bool {
	_, err := ParseAmount(s)
	return err == nil
}

// DetectCurrency returns the ISO code implied by a currency symbol in s,
// or "" when no symbol is present.
func DetectCurrency(s string) string {
	for sym, code := range currencySymbols {
		if strings.Contains(s, sym) {
			return code
		}
	}
	return ""
}

// strip removes currency symbols, separators, and accounting parentheses,
// returning the bare numeric text and whether the value was negated.
func strip(s string) (string, bool) {
	s = strings.TrimSpace(s)

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for sym := range currencySymbols {
		s = strings.ReplaceAll(s, sym, "")
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "-") {
		if negative {
			// "(-123)" stays negative, not double-negated.
			s = strings.TrimSpace(s[1:])
		} else {
			negative = true
			s = strings.TrimSpace(s[1:])
		}
	} else {
		s = strings.TrimPrefix(s, "+")
	}

	return s, negative
}
