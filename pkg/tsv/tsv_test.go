package tsv

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantHeader []string
		wantRows   [][]string
	}{
		{
			name:       "empty",
			input:      "",
			wantHeader: nil,
			wantRows:   nil,
		},
		{
			name:       "header only",
			input:      "A\tB\n",
			wantHeader: []string{"A", "B"},
			wantRows:   [][]string{},
		},
		{
			name:       "short row padded",
			input:      "A\tB\tC\nx\ty\n",
			wantHeader: []string{"A", "B", "C"},
			wantRows:   [][]string{{"x", "y", ""}},
		},
		{
			name:       "bom and blank lines",
			input:      "\ufeffA\tB\n1\t2\n\n3\t4\n",
			wantHeader: []string{"A", "B"},
			wantRows:   [][]string{{"1", "2"}, {"3", "4"}},
		},
		{
			name:       "stray quote tolerated",
			input:      "A\tB\nsay \"hi\tok\n",
			wantHeader: []string{"A", "B"},
			wantRows:   [][]string{{"say \"hi", "ok"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := Read(strings.NewReader(tt.input), '\t')
			require.NoError(t, err)
			assert.Equal(t, tt.wantHeader, tbl.Header)

			if tt.wantRows == nil {
				assert.Empty(t, tbl.Rows)
			} else {
				assert.Equal(t, tt.wantRows, tbl.Rows)
			}
		})
	}
}

func TestColumns(t *testing.T) {
	tbl := &Table{Header: []string{"QBB_ID", "DROPBOX_UUID", "TEST_NAME"}}

	idx, err := tbl.Columns("TEST_NAME", "QBB_ID")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, idx)

	_, err = tbl.Columns("QBB_ID", "SUBTEST_STATUS", "SUBTEST_MESSAGE")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingColumn))
	assert.Contains(t, err.Error(), "SUBTEST_STATUS, SUBTEST_MESSAGE")
}

func TestWriteRoundTrip(t *testing.T) {
	var buf bytes.Buffer

	rows := [][]string{{"S1", "msg, with comma"}, {"S2", ""}}
	require.NoError(t, Write(&buf, ',', []string{"ID", "MSG"}, rows))
	assert.Equal(t, "ID,MSG\nS1,\"msg, with comma\"\nS2,\n", buf.String())

	tbl, err := Read(&buf, ',')
	require.NoError(t, err)
	assert.Equal(t, rows, tbl.Rows)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "x.tsv")
	require.NoError(t, os.WriteFile(path, []byte("A\tB\n1\t2\n"), 0o644))

	tbl, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, tbl.Index("B"))
	assert.Equal(t, -1, tbl.Index("C"))

	_, err = ReadFile(filepath.Join(dir, "missing.tsv"))
	require.Error(t, err)
}
