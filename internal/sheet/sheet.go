// Package sheet reads uploaded workbooks, picks the payment term column and
// writes extraction results back out.
package sheet

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ericksa/ptextract/internal/extract"
	"github.com/xuri/excelize/v2"
)

const (
	// CanonicalColumn is used as-is when the upload has it.
	CanonicalColumn = "Payment Term Description"
	// Unknown stands in for missing descriptions.
	Unknown = "Unknown"

	outputSheet  = "Sheet1"
	outputPrefix = "pt_output_"
)

var (
	ErrColumnNotFound = errors.New("payment term column not found")
	ErrNoTerms        = errors.New("no terms to save")
)

var outputHeader = []interface{}{CanonicalColumn, "Payment Term", "Cliff"}

// Value is one cell of a column. Missing cells have Present unset.
type Value struct {
	Text    string
	Present bool
}

// Table is the first worksheet of a workbook; Columns is its header row.
type Table struct {
	Sheet   string
	Columns []string
	Rows    [][]string
}

// Load reads the first worksheet of the workbook at path.
func Load(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", filepath.Base(path))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	t := &Table{Sheet: sheets[0]}
	if len(rows) > 0 {
		t.Columns = rows[0]
		t.Rows = rows[1:]
	}
	return t, nil
}

// Column returns the values under header name in row order.
func (t *Table) Column(name string) ([]Value, bool) {
	idx := t.index(name)
	if idx < 0 {
		return nil, false
	}
	return t.columnAt(idx), true
}

func (t *Table) index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func (t *Table) columnAt(idx int) []Value {
	values := make([]Value, len(t.Rows))
	for i, row := range t.Rows {
		if idx < len(row) && row[idx] != "" {
			values[i] = Value{Text: row[idx], Present: true}
		}
	}
	return values
}

// GuessColumn returns the first column in which any present value mentions
// "net" or "within", ignoring case.
func GuessColumn(t *Table) (string, bool) {
	for i, name := range t.Columns {
		for _, v := range t.columnAt(i) {
			if !v.Present {
				continue
			}
			lower := strings.ToLower(v.Text)
			if strings.Contains(lower, "net") || strings.Contains(lower, "within") {
				return name, true
			}
		}
	}
	return "", false
}

// SelectColumn picks the column to extract from. A non-empty requested
// column, given as a header name or a 1-based column number, wins. Otherwise
// the canonical column is used when present, then the guess.
func SelectColumn(t *Table, requested string) (string, error) {
	if requested != "" {
		if t.index(requested) >= 0 {
			return requested, nil
		}
		if n, err := strconv.Atoi(requested); err == nil && n >= 1 && n <= len(t.Columns) {
			return t.Columns[n-1], nil
		}
		return "", fmt.Errorf("%w: %q is not one of %s", ErrColumnNotFound, requested, t.describeColumns())
	}
	if t.index(CanonicalColumn) >= 0 {
		return CanonicalColumn, nil
	}
	if guessed, ok := GuessColumn(t); ok {
		return guessed, nil
	}
	return "", fmt.Errorf("%w: available columns are %s", ErrColumnNotFound, t.describeColumns())
}

func (t *Table) describeColumns() string {
	parts := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		parts[i] = fmt.Sprintf("%d. %s", i+1, c)
	}
	return strings.Join(parts, ", ")
}

// UniqueTerms keeps the first occurrence of every value, drops the first
// of those, then replaces missing values with Unknown. Missing is its own
// key during deduplication.
func UniqueTerms(values []Value) []string {
	seen := make(map[Value]struct{}, len(values))
	var unique []Value
	for _, v := range values {
		if !v.Present {
			v = Value{}
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}
	if len(unique) <= 1 {
		return nil
	}

	out := make([]string, 0, len(unique)-1)
	for _, v := range unique[1:] {
		if v.Present {
			out = append(out, v.Text)
		} else {
			out = append(out, Unknown)
		}
	}
	return out
}

// OutputPath is where results for the upload at input are written.
func OutputPath(input string) string {
	base := filepath.Base(input)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(filepath.Dir(input), outputPrefix+stem+".xlsx")
}

// WriteTerms writes terms to a new workbook at path. Missing numbers are
// left blank.
func WriteTerms(path string, terms []extract.Term) error {
	if len(terms) == 0 {
		return ErrNoTerms
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetRow(outputSheet, "A1", &outputHeader); err != nil {
		return err
	}
	for i, term := range terms {
		row := i + 2
		if err := f.SetCellStr(outputSheet, cell(1, row), term.Description); err != nil {
			return err
		}
		for col, n := range []extract.Number{term.Term, term.Cliff} {
			if !n.Valid {
				continue
			}
			if err := f.SetCellFloat(outputSheet, cell(col+2, row), n.Value, -1, 64); err != nil {
				return err
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
