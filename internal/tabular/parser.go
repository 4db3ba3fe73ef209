// Package tabular reads raw delimited text of unknown layout into rows of
// untyped string cells.
//
// It handles the messy reality of user-exported bank files:
//   - UTF-8 BOMs and Windows-1252 payloads
//   - ragged rows (wrong column count) which are emitted, not dropped
//   - header-optional files, with positional column identifiers synthesized
//     when no header row is detected
//
// The parser never aborts a file because of a bad row; only a file with no
// data rows at all fails, with ErrEmptyFile.
package tabular

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// ErrEmptyFile is returned when a file contains no data rows (empty input,
// or a header with nothing after it).
var ErrEmptyFile = errors.New("empty file")

// MaxSampleRows bounds how many data rows the header heuristic inspects.
var MaxSampleRows = 20

// RawRow is one parsed row: an ordered sequence of raw string cells plus the
// 1-based row index within the source file. Immutable once parsed.
type RawRow struct {
	Index int // 1-based line number in the source file
	Cells []string

	// ShapeMismatch marks rows whose cell count differs from the file's
	// dominant column count. They are kept so the normalizer can report a
	// row-level error instead of the whole file aborting.
	ShapeMismatch bool
}

// File is the result of parsing one uploaded file.
type File struct {
	// Header holds the detected header cells, or nil for headerless files.
	Header []string

	// Columns holds the column identifiers: cleaned header names when a
	// header was detected, otherwise synthesized positional names
	// ("column_1", "column_2", ...).
	Columns []string

	// Rows holds all data rows in file order (the header row excluded).
	Rows []RawRow
}

// ColumnCount returns the dominant column count of the file.
func (f *File) ColumnCount() int {
	return len(f.Columns)
}

// Parse reads raw bytes into a File. The input is decoded (BOM stripped,
// Windows-1252 fallback for invalid UTF-8), split into rows with a lenient
// CSV reader, and scanned for a header row.
func Parse(data []byte) (*File, error) {
	data = decode(data)

	records, err := readAll(data)
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}

	// Drop fully blank rows but remember original line numbers.
	var (
		rows  [][]string
		lines []int
	)
	for i, rec := range records {
		if isBlankRow(rec) {
			continue
		}
		rows = append(rows, rec)
		lines = append(lines, i+1)
	}

	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}

	width := dominantWidth(rows)

	f := &File{}
	start := 0
	if hasHeader(rows) {
		f.Header = cleanCells(rows[0])
		f.Columns = headerColumns(f.Header, width)
		start = 1
	} else {
		f.Columns = positionalColumns(width)
	}

	for i := start; i < len(rows); i++ {
		f.Rows = append(f.Rows, RawRow{
			Index:         lines[i],
			Cells:         cleanCells(rows[i]),
			ShapeMismatch: len(rows[i]) != width,
		})
	}

	if len(f.Rows) == 0 {
		return nil, ErrEmptyFile
	}
	return f, nil
}

// ParseReader is a convenience wrapper over Parse for streamed uploads.
func ParseReader(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	return Parse(data)
}

// decode strips a UTF-8 BOM and repairs non-UTF-8 payloads. Files that are
// not valid UTF-8 are assumed to be Windows-1252, the dominant legacy
// encoding for bank exports; anything that still fails is sanitized with
// replacement runes so parsing never raises on encoding alone.
func decode(data []byte) []byte {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	if utf8.Valid(data) {
		return data
	}

	if decoded, err := charmap.Windows1252.NewDecoder().Bytes(data); err == nil && utf8.Valid(decoded) {
		return decoded
	}

	return bytes.ToValidUTF8(data, []byte("�"))
}

// readAll parses CSV with lenient settings: variable field counts and lazy
// quotes, so ragged or lightly malformed rows still come through.
func readAll(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// hasHeader reports whether the first row looks like a header: none of its
// cells parses as a date or decimal, while at least one later sampled row
// has a corresponding cell that does.
func hasHeader(records [][]string) bool {
	first := records[0]
	for _, cell := range first {
		c := strings.TrimSpace(cell)
		if c == "" {
			continue
		}
		if looksLikeDate(c) || looksLikeNumber(c) {
			return false
		}
	}

	// A lone non-numeric row is a header with no data after it.
	if len(records) == 1 {
		return true
	}

	limit := len(records)
	if limit > MaxSampleRows+1 {
		limit = MaxSampleRows + 1
	}
	for _, row := range records[1:limit] {
		for i := range first {
			if i >= len(row) {
				continue
			}
			c := strings.TrimSpace(row[i])
			if looksLikeDate(c) || looksLikeNumber(c) {
				return true
			}
		}
	}
	return false
}

var (
	dateLikeRe   = regexp.MustCompile(`^(\d{4}[-/.]\d{1,2}[-/.]\d{1,2}|\d{1,2}[-/.]\d{1,2}[-/.]\d{2,4})$`)
	numberLikeRe = regexp.MustCompile(`^\(?[-+]?[$€£]?\s?\d{1,3}(,\d{3})*(\.\d+)?\)?$|^\(?[-+]?[$€£]?\s?\d+(\.\d+)?\)?$`)
)

func looksLikeDate(s string) bool   { return dateLikeRe.MatchString(s) }
func looksLikeNumber(s string) bool { return numberLikeRe.MatchString(s) }

// dominantWidth returns the most common cell count across sampled rows.
func dominantWidth(records [][]string) int {
	counts := make(map[int]int)
	limit := len(records)
	if limit > MaxSampleRows+1 {
		limit = MaxSampleRows + 1
	}
	for _, rec := range records[:limit] {
		counts[len(rec)]++
	}
	best, bestN := 0, 0
	for w, n := range counts {
		if n > bestN || (n == bestN && w > best) {
			best, bestN = w, n
		}
	}
	return best
}

// headerColumns returns identifiers for every column: the cleaned header
// name when present and non-empty, otherwise a positional fallback.
func headerColumns(header []string, width int) []string {
	cols := make([]string, width)
	for i := 0; i < width; i++ {
		if i < len(header) && strings.TrimSpace(header[i]) != "" {
			cols[i] = strings.TrimSpace(header[i])
		} else {
			cols[i] = positionalName(i)
		}
	}
	return cols
}

func positionalColumns(width int) []string {
	cols := make([]string, width)
	for i := range cols {
		cols[i] = positionalName(i)
	}
	return cols
}

func positionalName(i int) string {
	return fmt.Sprintf("column_%d", i+1)
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func cleanCells(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		out[i] = CleanCell(c)
	}
	return out
}

// CleanCell removes common export artifacts from a cell value: surrounding
// whitespace, an Excel formula prefix (="value"), and stray quote wrapping.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, `="`) && strings.HasSuffix(s, `"`) {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}
