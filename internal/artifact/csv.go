package artifact

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// EncodeCSV renders a header and rows as CSV.
func EncodeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Table is a CSV file read leniently: ragged rows are allowed and values are
// looked up by normalized column name.
type Table struct {
	Header []string
	Rows   [][]string
	index  map[string]int
}

// ReadCSV reads the CSV file at path. A missing file yields ErrMissingInput.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, MissingInput(path, err)
	}
	defer f.Close()

	t, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return t, nil
}

// ParseCSV reads a CSV table from r. An empty input yields an empty table.
func ParseCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	t := &Table{index: map[string]int{}}
	if len(records) == 0 {
		return t, nil
	}
	t.Header = records[0]
	t.Rows = records[1:]
	for i, h := range t.Header {
		key := NormalizeColumn(h)
		if _, dup := t.index[key]; !dup {
			t.index[key] = i
		}
	}
	return t, nil
}

// NormalizeColumn lowercases a column name and folds spaces and dashes to
// underscores, so "Story Id", "story-id" and "story_id" compare equal.
func NormalizeColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(name)
}

// Get returns the value of the first present column among names in row, or
// "" when none exists or the row is short.
func (t *Table) Get(row []string, names ...string) string {
	for _, n := range names {
		i, ok := t.index[NormalizeColumn(n)]
		if !ok {
			continue
		}
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	return ""
}
