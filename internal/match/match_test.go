package match

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"AMZN MKTP", "amzn mktp"},
		{"  AMZN   MKTP  ", "amzn mktp"},
		{"ACME Corp. Payment, Inc!", "acme corp payment inc"},
		{"PAYPAL *NETFLIX ref:ABC123", "paypal netflix"},
		{"CHECKCARD 0123456789 STARBUCKS", "checkcard starbucks"},
		{"VISA xxxx1234 COFFEE SHOP", "visa coffee shop"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.in); got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalize_FormattingVariantsCollide(t *testing.T) {
	a := Normalize("Office   Depot #4411")
	b := Normalize("OFFICE DEPOT  #4411")
	if a != b {
		t.Errorf("formatting variants should share a key: %q vs %q", a, b)
	}
}

func TestTokenOverlap(t *testing.T) {
	s := TokenOverlap{}

	if got := s.Score("amzn mktp", "amzn mktp"); got != 1 {
		t.Errorf("identical strings: got %.2f, want 1", got)
	}
	if got := s.Score("", ""); got != 0 {
		t.Errorf("empty strings: got %.2f, want 0", got)
	}

	related := s.Score("amzn mktp", "amzn prime")
	unrelated := s.Score("amzn mktp", "office depot")
	if related <= unrelated {
		t.Errorf("related pair (%.2f) should outscore unrelated pair (%.2f)", related, unrelated)
	}
	if related < 0.4 {
		t.Errorf("shared-vendor pair scored too low: %.2f", related)
	}
}

func TestLevenshtein(t *testing.T) {
	s := Levenshtein{}

	if got := s.Score("acme", "acme"); got != 1 {
		t.Errorf("identical: got %.2f, want 1", got)
	}
	if got := s.Score("acme", "acm"); got != 0.75 {
		t.Errorf("one deletion over 4 runes: got %.2f, want 0.75", got)
	}
	if got := s.Score("", "acme"); got != 0 {
		t.Errorf("empty vs non-empty: got %.2f, want 0", got)
	}
}
