package tabular

import (
	"errors"
	"strings"
	"testing"
)

func TestParse_HeaderDetected(t *testing.T) {
	data := []byte("Date,Description,Amount\n01/15/2024,ACME Corp Payment,1250.00\n01/16/2024,Office Depot,-45.67\n")

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if f.Header == nil {
		t.Fatal("expected header to be detected")
	}
	if got := strings.Join(f.Columns, "|"); got != "Date|Description|Amount" {
		t.Errorf("unexpected columns: %q", got)
	}
	if len(f.Rows) != 2 {
		t.Fatalf("expected 2 data rows, got %d", len(f.Rows))
	}
	if f.Rows[0].Index != 2 {
		t.Errorf("expected first data row at line 2, got %d", f.Rows[0].Index)
	}
}

func TestParse_Headerless(t *testing.T) {
	data := []byte("01/15/2024,ACME Corp Payment,1250.00\n01/16/2024,Office Depot,-45.67\n")

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if f.Header != nil {
		t.Errorf("expected no header, got %v", f.Header)
	}
	if got := strings.Join(f.Columns, "|"); got != "column_1|column_2|column_3" {
		t.Errorf("unexpected synthesized columns: %q", got)
	}
	if len(f.Rows) != 2 {
		t.Fatalf("expected 2 data rows, got %d", len(f.Rows))
	}
}

func TestParse_EmptyFile(t *testing.T) {
	cases := []struct {
		name string
		data string
	}{
		{"truly empty", ""},
		{"only whitespace rows", "\n  ,  ,  \n\n"},
		{"header only", "Date,Description,Amount\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data))
			if !errors.Is(err, ErrEmptyFile) {
				t.Errorf("expected ErrEmptyFile, got %v", err)
			}
		})
	}
}

func TestParse_RaggedRowsKept(t *testing.T) {
	data := []byte("Date,Description,Amount\n01/15/2024,ACME,10.00\n01/16/2024,missing amount\n01/17/2024,Depot,-5.00\n")

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if len(f.Rows) != 3 {
		t.Fatalf("expected 3 rows (ragged row kept), got %d", len(f.Rows))
	}
	if !f.Rows[1].ShapeMismatch {
		t.Error("expected ragged row to be marked ShapeMismatch")
	}
	if f.Rows[0].ShapeMismatch || f.Rows[2].ShapeMismatch {
		t.Error("well-shaped rows must not be marked ShapeMismatch")
	}
}

func TestParse_BOMStripped(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Date,Description,Amount\n2024-01-15,ACME,10.00\n")...)

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if f.Columns[0] != "Date" {
		t.Errorf("BOM not stripped from first header cell: %q", f.Columns[0])
	}
}

func TestParse_Windows1252Fallback(t *testing.T) {
	// "Café" with a Windows-1252 encoded é (0xE9), invalid as UTF-8.
	data := []byte("Date,Description,Amount\n2024-01-15,Caf\xe9 Diem,10.00\n")

	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if got := f.Rows[0].Cells[1]; got != "Café Diem" {
		t.Errorf("expected Windows-1252 decode to yield %q, got %q", "Café Diem", got)
	}
}

func TestCleanCell(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{`  plain  `, "plain"},
		{`="0012345"`, "0012345"},
		{`"quoted"`, "quoted"},
		{`=SUM`, "SUM"},
	}
	for _, tc := range cases {
		if got := CleanCell(tc.in); got != tc.want {
			t.Errorf("CleanCell(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
