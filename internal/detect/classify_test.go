package detect

import (
	"testing"

	"github.com/finsightlab/finsight/internal/tabular"
)

func parse(t *testing.T, data string) *tabular.File {
	t.Helper()
	f, err := tabular.Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return f
}

func TestClassify_HeaderedSingleAmount(t *testing.T) {
	f := parse(t, "Date,Description,Amount\n01/15/2024,ACME Corp Payment,1250.00\n01/16/2024,Office Depot,-45.67\n")

	m := Classify(f, DefaultOptions())

	if m.DetectionConfidence < 0.85 {
		t.Errorf("expected detection confidence >= 0.85, got %.2f", m.DetectionConfidence)
	}
	if m.RequiresManualInput {
		t.Error("expected mapping to be accepted without manual input")
	}

	if col, ok := m.Column(RoleDate); !ok || col != 0 {
		t.Errorf("date role: got (%d, %v), want column 0", col, ok)
	}
	if col, ok := m.Column(RoleDescription); !ok || col != 1 {
		t.Errorf("description role: got (%d, %v), want column 1", col, ok)
	}
	if col, ok := m.Column(RoleAmount); !ok || col != 2 {
		t.Errorf("amount role: got (%d, %v), want column 2", col, ok)
	}
	if m.HasSplitAmount() {
		t.Error("expected single amount column, not split")
	}
	if m.DateLayout != "01/02/2006" {
		t.Errorf("unexpected date layout %q", m.DateLayout)
	}
}

func TestClassify_SplitDebitCredit(t *testing.T) {
	f := parse(t, "Date,Details,Debit,Credit\n2024-01-15,ACME Corp Payment,,1250.00\n2024-01-16,Office Depot,45.67,\n2024-01-17,Coffee Shop Downtown,4.50,\n")

	m := Classify(f, DefaultOptions())

	if !m.HasSplitAmount() {
		t.Fatal("expected split debit/credit detection")
	}
	if col, _ := m.Column(RoleDebit); col != 2 {
		t.Errorf("debit role: got column %d, want 2", col)
	}
	if col, _ := m.Column(RoleCredit); col != 3 {
		t.Errorf("credit role: got column %d, want 3", col)
	}
	if _, ok := m.Column(RoleAmount); ok {
		t.Error("single amount role must not be assigned alongside a split pair")
	}
}

func TestClassify_HeaderlessNumericNoDate(t *testing.T) {
	f := parse(t, "100,200,300\n110,210,310\n120,220,320\n")

	m := Classify(f, DefaultOptions())

	if !m.RequiresManualInput {
		t.Error("expected requires_manual_input for undetectable layout")
	}
	if _, ok := m.Column(RoleDate); ok {
		t.Error("no date role should be auto-assigned")
	}
}

func TestClassify_BalanceByDeltaTracking(t *testing.T) {
	f := parse(t, "Date,Description,Amount,Col4\n2024-01-15,Opening Invoice Payment,100.00,1100.00\n2024-01-16,Office Supplies Order,-40.00,1060.00\n2024-01-17,Client Retainer Fee,50.00,1110.00\n")

	m := Classify(f, DefaultOptions())

	col, ok := m.Column(RoleBalance)
	if !ok {
		t.Fatal("expected balance role from delta tracking")
	}
	if col != 3 {
		t.Errorf("balance role: got column %d, want 3", col)
	}
}

func TestClassify_UnmappedColumnsListed(t *testing.T) {
	f := parse(t, "Date,Description,Amount,Reference Code\n01/15/2024,ACME Corp Payment,1250.00,ABC\n01/16/2024,Office Depot,-45.67,XYZ\n")

	m := Classify(f, DefaultOptions())

	found := false
	for _, name := range m.UnmappedColumns {
		if name == "Reference Code" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected Reference Code in unmapped columns, got %v", m.UnmappedColumns)
	}
}

func TestMapping_ApplyOverrides(t *testing.T) {
	f := parse(t, "100,200,300\n110,210,310\n")

	m := Classify(f, DefaultOptions())
	if !m.RequiresManualInput {
		t.Fatal("precondition: mapping should need manual input")
	}

	m.Apply(map[Role]int{
		RoleDate:        0,
		RoleDescription: 1,
		RoleAmount:      2,
	}, DefaultOptions().AcceptThreshold)

	for _, role := range []Role{RoleDate, RoleDescription, RoleAmount} {
		a, ok := m.Roles[role]
		if !ok {
			t.Fatalf("role %s missing after override", role)
		}
		if !a.Overridden {
			t.Errorf("role %s should be marked overridden", role)
		}
		if a.Confidence != 1.0 {
			t.Errorf("role %s: overridden confidence = %.2f, want 1.0", role, a.Confidence)
		}
	}
	if m.RequiresManualInput {
		t.Error("fully overridden mapping must not require manual input")
	}
}

func TestParseDate_Formats(t *testing.T) {
	cases := []struct {
		in        string
		preferred string
		wantISO   string
	}{
		{"2024-01-15", "", "2024-01-15"},
		{"01/15/2024", "", "2024-01-15"},
		{"15/01/2024", "", "2024-01-15"},
		{"Jan 2, 2024", "", "2024-01-02"},
		{"01/02/2024", "02/01/2006", "2024-02-01"},
	}
	for _, tc := range cases {
		got, err := ParseDate(tc.in, tc.preferred)
		if err != nil {
			t.Errorf("ParseDate(%q): %v", tc.in, err)
			continue
		}
		if iso := got.Format("2006-01-02"); iso != tc.wantISO {
			t.Errorf("ParseDate(%q) = %s, want %s", tc.in, iso, tc.wantISO)
		}
	}

	if _, err := ParseDate("not a date", ""); err == nil {
		t.Error("expected error for unparseable date")
	}
}
