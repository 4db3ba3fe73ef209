package detect

import (
	"fmt"
	"strings"
	"time"
)

// Supported date layouts, month-first variants preferred on ties. Values
// whose day component exceeds 12 disambiguate day-first layouts naturally.
var dateLayouts = []string{
	"2006-01-02", "2006/01/02", "2006.01.02",
	"01/02/2006", "1/2/2006", "02/01/2006", "2/1/2006",
	"01-02-2006", "1-2-2006", "02-01-2006", "2-1-2006",
	"01.02.2006", "02.01.2006",
	"01/02/06", "02/01/06",
	"Jan 2, 2006", "2 Jan 2006", "02 Jan 2006",
	"20060102",
}

// twoDigitYearPivot: 2-digit years further in the future than this many
// years are pushed back a century.
const twoDigitYearPivot = 20

// ParseDate parses s with the preferred layout first, then every supported
// layout. Returns an error when nothing matches.
func ParseDate(s, preferred string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if preferred != "" {
		if t, err := time.Parse(preferred, s); err == nil {
			return adjustCentury(t, preferred), nil
		}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return adjustCentury(t, layout), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// IsDate reports whether s parses with any supported layout.
func IsDate(s string) bool {
	_, err := ParseDate(s, "")
	return err == nil
}

// DetectLayout returns the layout that parses the largest fraction of the
// sampled values, and that fraction. Ties go to the earlier (month-first)
// layout.
func DetectLayout(values []string) (string, float64) {
	if len(values) == 0 {
		return "", 0
	}

	bestLayout, bestCount := "", 0
	for _, layout := range dateLayouts {
		count := 0
		for _, v := range values {
			if v == "" {
				continue
			}
			if _, err := time.Parse(layout, strings.TrimSpace(v)); err == nil {
				count++
			}
		}
		if count > bestCount {
			bestLayout, bestCount = layout, count
		}
	}

	nonEmpty := 0
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			nonEmpty++
		}
	}
	if nonEmpty == 0 {
		return "", 0
	}
	return bestLayout, float64(bestCount) / float64(nonEmpty)
}

// adjustCentury fixes 2-digit-year parses that land too far in the future.
func adjustCentury(t time.Time, layout string) time.Time {
	if !strings.Contains(layout, "06") || strings.Contains(layout, "2006") {
		return t
	}
	if t.Year() > time.Now().Year()+twoDigitYearPivot {
		return t.AddDate(-100, 0, 0)
	}
	return t
}
