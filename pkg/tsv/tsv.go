package tsv

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrMissingColumn is returned when a required column is absent from a
// table header.
var ErrMissingColumn = errors.New("missing column")

// Table is a fully materialized delimited file: one header row followed by
// data rows. Short rows are padded to the header width on read.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadFile reads a tab-separated file with a header row.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	t, err := Read(f, '\t')
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	return t, nil
}

// Read parses a delimited stream. An empty stream yields an empty table.
func Read(r io.Reader, comma rune) (*Table, error) {
	cr := csv.NewReader(r)
	cr.Comma = comma
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	records, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return &Table{}, nil
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	rows := make([][]string, 0, len(records)-1)

	for _, rec := range records[1:] {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}

		if len(rec) < len(header) {
			padded := make([]string, len(header))
			copy(padded, rec)
			rec = padded
		}

		rows = append(rows, rec)
	}

	return &Table{Header: header, Rows: rows}, nil
}

// Index returns the position of the named column, or -1.
func (t *Table) Index(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}

	return -1
}

// Columns resolves every named column to its position. The error wraps
// ErrMissingColumn and lists all absent names.
func (t *Table) Columns(names ...string) ([]int, error) {
	idx := make([]int, len(names))

	var missing []string

	for i, name := range names {
		idx[i] = t.Index(name)
		if idx[i] < 0 {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}

	return idx, nil
}

// Write encodes header and rows with the given delimiter.
func Write(w io.Writer, comma rune, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("writing rows: %w", err)
	}

	return nil
}
