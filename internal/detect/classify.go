package detect

// classify.go implements role detection over a bounded sample of data rows.
//
// For each column it measures the fraction of sampled cells that parse as a
// date, as a decimal amount, or as free text, then assigns roles:
//
//   - date: highest date-parse fraction at or above the date threshold
//   - amount: either one signed column, or a debit/credit split pair when
//     no single column qualifies strongly
//   - description: the text column with the highest distinct-token average
//   - balance: a leftover numeric column whose deltas track the running
//     signed-amount sum
//
// Roles that cannot be assigned confidently are left unmapped; the overall
// detection confidence is the minimum over the mandatory roles.

import (
	"strings"

	"github.com/finsightlab/finsight/internal/money"
	"github.com/finsightlab/finsight/internal/tabular"
	"github.com/shopspring/decimal"
)

// Options holds the classifier knobs. Defaults follow the documented
// thresholds; all are configurable through the environment.
type Options struct {
	SampleRows      int     // bounded sample size (default 20)
	DateFraction    float64 // min date-parse fraction for the date role (default 0.8)
	NumericFraction float64 // min numeric-parse fraction for amount roles (default 0.8)
	AcceptThreshold float64 // overall confidence gate (default 0.85)
}

// DefaultOptions returns the documented default thresholds.
func DefaultOptions() Options {
	return Options{
		SampleRows:      20,
		DateFraction:    0.8,
		NumericFraction: 0.8,
		AcceptThreshold: 0.85,
	}
}

var (
	amountVocab  = []string{"amount", "value", "total", "sum"}
	debitVocab   = []string{"debit", "withdrawal", "paid out", "money out"}
	creditVocab  = []string{"credit", "deposit", "paid in", "money in"}
	balanceVocab = []string{"balance"}
	descVocab    = []string{"description", "memo", "details", "narrative", "payee", "merchant"}
)

// Classify inspects a bounded sample of the file's rows and proposes a
// column mapping.
func Classify(f *tabular.File, opts Options) *Mapping {
	sample := sampleRows(f, opts.SampleRows)
	stats := columnStats(f, sample)

	m := &Mapping{
		Roles:       make(map[Role]Assignment),
		columnNames: f.Columns,
	}
	assigned := make(map[int]bool)

	// Date: best date-parse fraction above threshold.
	if i := bestDateColumn(stats, opts.DateFraction); i >= 0 {
		m.Roles[RoleDate] = Assignment{Column: i, Name: stats[i].name, Confidence: stats[i].dateFrac}
		m.DateLayout = stats[i].dateLayout
		assigned[i] = true
	}

	// Amount: a single signed column wins over a split interpretation.
	if i, conf := bestSingleAmount(stats, assigned, opts.NumericFraction); i >= 0 {
		m.Roles[RoleAmount] = Assignment{Column: i, Name: stats[i].name, Confidence: conf}
		assigned[i] = true
	} else if d, c, conf := bestSplitPair(stats, sample, assigned, opts.NumericFraction); d >= 0 {
		m.Roles[RoleDebit] = Assignment{Column: d, Name: stats[d].name, Confidence: conf}
		m.Roles[RoleCredit] = Assignment{Column: c, Name: stats[c].name, Confidence: conf}
		assigned[d], assigned[c] = true, true
	}

	// Description: remaining text column with the most distinct tokens.
	if i, conf := bestDescription(stats, assigned); i >= 0 {
		m.Roles[RoleDescription] = Assignment{Column: i, Name: stats[i].name, Confidence: conf}
		assigned[i] = true
	}

	// Balance: optional, only when a leftover numeric column tracks the
	// cumulative signed-amount sum (or is named for it).
	if i, conf := bestBalance(stats, sample, m, assigned, opts.NumericFraction); i >= 0 {
		m.Roles[RoleBalance] = Assignment{Column: i, Name: stats[i].name, Confidence: conf}
		assigned[i] = true
	}

	m.recalculate(opts.AcceptThreshold)
	return m
}

type colStat struct {
	name        string
	values      []string
	nonEmpty    int
	dateFrac    float64
	dateLayout  string
	numFrac     float64
	pos, neg    int
	textFrac    float64
	avgDistinct float64
}

func sampleRows(f *tabular.File, n int) []tabular.RawRow {
	var out []tabular.RawRow
	for _, r := range f.Rows {
		if r.ShapeMismatch {
			continue
		}
		out = append(out, r)
		if len(out) >= n {
			break
		}
	}
	return out
}

func columnStats(f *tabular.File, sample []tabular.RawRow) []colStat {
	width := f.ColumnCount()
	stats := make([]colStat, width)

	for i := 0; i < width; i++ {
		st := colStat{name: f.Columns[i]}
		numCount, textCount, distinctSum := 0, 0, 0

		for _, row := range sample {
			v := ""
			if i < len(row.Cells) {
				v = row.Cells[i]
			}
			st.values = append(st.values, v)
			if v == "" {
				continue
			}
			st.nonEmpty++

			isNum := money.IsAmount(v)
			if isNum {
				numCount++
				if d, err := money.ParseAmount(v); err == nil {
					if d.Sign() < 0 {
						st.neg++
					} else if d.Sign() > 0 {
						st.pos++
					}
				}
			}
			if !isNum && !IsDate(v) && len(v) >= 3 {
				textCount++
				distinctSum += distinctTokens(v)
			}
		}

		st.dateLayout, st.dateFrac = DetectLayout(st.values)
		if st.nonEmpty > 0 {
			st.numFrac = float64(numCount) / float64(st.nonEmpty)
			st.textFrac = float64(textCount) / float64(st.nonEmpty)
		}
		if textCount > 0 {
			st.avgDistinct = float64(distinctSum) / float64(textCount)
		}
		stats[i] = st
	}
	return stats
}

func distinctTokens(s string) int {
	seen := make(map[string]struct{})
	for _, tok := range strings.Fields(strings.ToLower(s)) {
		seen[tok] = struct{}{}
	}
	return len(seen)
}

func bestDateColumn(stats []colStat, threshold float64) int {
	best, bestFrac := -1, 0.0
	for i, st := range stats {
		if st.nonEmpty == 0 || st.dateFrac < threshold {
			continue
		}
		// Pure numeric columns (e.g. 20240115-style ids) can false-positive;
		// prefer the column with the higher date fraction.
		if st.dateFrac > bestFrac {
			best, bestFrac = i, st.dateFrac
		}
	}
	return best
}

// bestSingleAmount finds a numeric column whose values carry both signs, or
// whose header uses amount vocabulary.
func bestSingleAmount(stats []colStat, assigned map[int]bool, numericFraction float64) (int, float64) {
	best, bestConf := -1, 0.0
	for i, st := range stats {
		if assigned[i] || st.nonEmpty == 0 || st.numFrac < numericFraction {
			continue
		}
		signed := st.pos > 0 && st.neg > 0
		named := matchVocab(st.name, amountVocab)
		if !signed && !named {
			continue
		}
		conf := st.numFrac
		if !signed {
			// Header vocabulary alone is weaker evidence than mixed signs.
			conf *= 0.95
		}
		if conf > bestConf {
			best, bestConf = i, conf
		}
	}
	return best, bestConf
}

// bestSplitPair finds two numeric columns where, row-wise, at most one of
// the pair is populated. Header vocabulary orients which side is the debit;
// without it the pair is still proposed positionally, but at a confidence
// low enough to force manual review.
func bestSplitPair(stats []colStat, sample []tabular.RawRow, assigned map[int]bool, numericFraction float64) (debit, credit int, conf float64) {
	var numeric []int
	for i, st := range stats {
		if assigned[i] || st.nonEmpty == 0 || st.numFrac < numericFraction {
			continue
		}
		numeric = append(numeric, i)
	}

	bestA, bestB, bestExcl := -1, -1, 0.0
	for x := 0; x < len(numeric); x++ {
		for y := x + 1; y < len(numeric); y++ {
			a, b := numeric[x], numeric[y]
			excl := exclusivity(stats[a].values, stats[b].values)
			if excl > bestExcl {
				bestA, bestB, bestExcl = a, b, excl
			}
		}
	}
	if bestA < 0 || bestExcl < 0.9 {
		return -1, -1, 0
	}

	debit, credit = bestA, bestB
	aDebit := matchVocab(stats[bestA].name, debitVocab)
	bDebit := matchVocab(stats[bestB].name, debitVocab)
	aCredit := matchVocab(stats[bestA].name, creditVocab)
	bCredit := matchVocab(stats[bestB].name, creditVocab)

	switch {
	case aDebit || bCredit:
		conf = 0.9 * bestExcl
	case bDebit || aCredit:
		debit, credit = bestB, bestA
		conf = 0.9 * bestExcl
	default:
		// Orientation is a guess; keep it below the acceptance gate.
		conf = 0.7 * bestExcl
	}
	return debit, credit, conf
}

// exclusivity is the fraction of rows where at most one of the two columns
// is populated (rows where both are empty count as satisfying).
func exclusivity(a, b []string) float64 {
	if len(a) == 0 {
		return 0
	}
	ok, populated := 0, 0
	for i := range a {
		av, bv := a[i] != "", i < len(b) && b[i] != ""
		if av || bv {
			populated++
		}
		if !(av && bv) {
			ok++
		}
	}
	if populated == 0 {
		return 0
	}
	return float64(ok) / float64(len(a))
}

func bestDescription(stats []colStat, assigned map[int]bool) (int, float64) {
	best, bestDistinct := -1, 0.0
	for i, st := range stats {
		if assigned[i] || st.nonEmpty == 0 || st.textFrac < 0.5 {
			continue
		}
		if st.avgDistinct > bestDistinct {
			best, bestDistinct = i, st.avgDistinct
		}
	}
	if best < 0 {
		return -1, 0
	}

	conf := bestDistinct / 2
	if conf > 1 {
		conf = 1
	}
	if matchVocab(stats[best].name, descVocab) && conf < 0.9 {
		conf = 0.9
	}
	return best, conf
}

// bestBalance accepts a leftover numeric column only if its row deltas match
// the normalized signed amounts, or its header names it a balance.
func bestBalance(stats []colStat, sample []tabular.RawRow, m *Mapping, assigned map[int]bool, numericFraction float64) (int, float64) {
	for i, st := range stats {
		if assigned[i] || st.nonEmpty == 0 || st.numFrac < numericFraction {
			continue
		}
		if deltasTrackAmounts(st.values, sample, m) {
			return i, 0.9
		}
		if matchVocab(st.name, balanceVocab) {
			return i, 0.8
		}
	}
	return -1, 0
}

// deltasTrackAmounts checks balance[i] - balance[i-1] == amount[i] across
// consecutive sampled rows; at least 80% of the checkable pairs must hold.
func deltasTrackAmounts(balances []string, sample []tabular.RawRow, m *Mapping) bool {
	amounts := sampleAmounts(sample, m)

	checked, matched := 0, 0
	var prev *decimal.Decimal
	for i, raw := range balances {
		if raw == "" || amounts[i] == nil {
			prev = nil
			continue
		}
		bal, err := money.ParseAmount(raw)
		if err != nil {
			prev = nil
			continue
		}
		if prev != nil {
			checked++
			if bal.Sub(*prev).Equal(*amounts[i]) {
				matched++
			}
		}
		b := bal
		prev = &b
	}
	return checked >= 2 && float64(matched)/float64(checked) >= 0.8
}

// sampleAmounts derives the signed amount per sampled row from whichever
// amount shape the mapping currently holds.
func sampleAmounts(sample []tabular.RawRow, m *Mapping) []*decimal.Decimal {
	out := make([]*decimal.Decimal, len(sample))

	cell := func(row tabular.RawRow, col int) string {
		if col < len(row.Cells) {
			return row.Cells[col]
		}
		return ""
	}

	for i, row := range sample {
		if col, ok := m.Column(RoleAmount); ok {
			if d, err := money.ParseAmount(cell(row, col)); err == nil {
				out[i] = &d
			}
			continue
		}
		if m.HasSplitAmount() {
			dc, _ := m.Column(RoleDebit)
			cc, _ := m.Column(RoleCredit)
			if v := cell(row, dc); v != "" {
				if d, err := money.ParseAmount(v); err == nil {
					neg := d.Abs().Neg()
					out[i] = &neg
				}
			} else if v := cell(row, cc); v != "" {
				if d, err := money.ParseAmount(v); err == nil {
					pos := d.Abs()
					out[i] = &pos
				}
			}
		}
	}
	return out
}

func matchVocab(name string, vocab []string) bool {
	n := strings.ToLower(name)
	for _, w := range vocab {
		if strings.Contains(n, w) {
			return true
		}
	}
	return false
}
