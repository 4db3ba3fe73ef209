package money

import "testing"

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"1250.00", "1250"},
		{"-45.67", "-45.67"},
		{"+99.10", "99.1"},
		{"1,234,567.89", "1234567.89"},
		{"$1,250.00", "1250"},
		{"€500", "500"},
		{"£0.99", "0.99"},
		{"(123.45)", "-123.45"},
		{"($1,000)", "-1000"},
		{"(-123)", "-123"},
		{" 42 ", "42"},
		{".5", "0.5"},
	}

	for _, tt := range tests {
		got, err := ParseAmount(tt.in)
		if err != nil {
			t.Errorf("ParseAmount(%q) error = %v", tt.in, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got.String(), tt.want)
		}
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "12.34.56", "1 000", "--5", "+-5", "(+-5)", "$"} {
		if _, err := ParseAmount(in); err == nil {
			t.Errorf("ParseAmount(%q) expected error", in)
		}
	}
}

func TestParseAmount_ExactDecimals(t *testing.T) {
	// 0.1 + 0.2 must be exactly 0.3, not a float approximation.
	a, err := ParseAmount("0.1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := ParseAmount("0.2")
	if err != nil {
		t.Fatal(err)
	}
	if sum := a.Add(b); sum.String() != "0.3" {
		t.Errorf("0.1 + 0.2 = %s, want 0.3", sum.String())
	}
}

func TestIsAmount(t *testing.T) {
	if !IsAmount("(42.00)") {
		t.Error("IsAmount should accept accounting negatives")
	}
	if IsAmount("01/15/2024") {
		t.Error("IsAmount should reject dates")
	}
}

func TestDetectCurrency(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"$100", "USD"},
		{"€55,00", "EUR"},
		{"£9.99", "GBP"},
		{"100.00", ""},
	}
	for _, tt := range tests {
		if got := DetectCurrency(tt.in); got != tt.want {
			t.Errorf("DetectCurrency(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
