// Package match provides the description-normalization key shared by
// duplicate reconciliation and entity resolution, plus pluggable string
// similarity strategies.
//
// The baseline strategies are deterministic so resolution behavior is
// reproducible in tests; an embedding-backed strategy can be swapped in
// behind the same interface without touching callers.
package match

import (
	"regexp"
	"strings"
)

// Similarity scores how alike two normalized descriptions are, in [0,1].
type Similarity interface {
	Score(a, b string) float64
}

var (
	refNoiseRe = regexp.MustCompile(`\b(?:ref|reference|txn|transaction|auth|confirmation|conf)[:#]?\s*[a-z0-9-]+\b`)
	longNumRe  = regexp.MustCompile(`\b\d{5,}\b`)
	cardTailRe = regexp.MustCompile(`\b(?:x{2,}|\*{2,})\d{2,4}\b`)
	punctRe    = regexp.MustCompile(`[^\p{L}\p{N} ]+`)
)

// Normalize folds a raw transaction description into its matching key:
// lower-cased, punctuation stripped, whitespace collapsed, and
// reference-number noise (txn ids, long digit runs, masked card tails)
// removed. Two descriptions with the same key are treated as the same
// counterparty text.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = refNoiseRe.ReplaceAllString(s, " ")
	s = cardTailRe.ReplaceAllString(s, " ")
	s = longNumRe.ReplaceAllString(s, " ")
	s = punctRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// TokenOverlap is the default similarity: the Dice coefficient over the
// union of word tokens and their character bigrams. It rewards shared
// vendor words ("amzn mktp" vs "amzn prime") without an external model.
type TokenOverlap struct{}

func (TokenOverlap) Score(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	sa, sb := features(a), features(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}
	shared := 0
	for f := range sa {
		if _, ok := sb[f]; ok {
			shared++
		}
	}
	return 2 * float64(shared) / float64(len(sa)+len(sb))
}

func features(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		out["t:"+tok] = struct{}{}
		for i := 0; i+2 <= len(tok); i++ {
			out["b:"+tok[i:i+2]] = struct{}{}
		}
	}
	return out
}

// Levenshtein is an alternative similarity: 1 - distance/maxLen over runes.
type Levenshtein struct{}

func (Levenshtein) Score(a, b string) float64 {
	if a == b {
		if a == "" {
			return 0
		}
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)
	if la == 0 || lb == 0 {
		return 0
	}

	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = minInt(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	return 1 - float64(prev[lb])/float64(maxLen)
}

func minInt(vals ...int) int {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
