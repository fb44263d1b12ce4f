package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/qphi/dragen-report/pkg/extractor"
	"github.com/qphi/dragen-report/pkg/fsutil"
	"github.com/qphi/dragen-report/pkg/scanner"
	"github.com/qphi/dragen-report/pkg/tsv"
)

// Separator joins list values within a report cell.
const Separator = ";"

// Report column names.
const (
	ColSampleID    = "QBB_ID"
	ColDropboxUUID = "DROPBOX_UUID"
	ColNotOK       = "NOT_OK_INSTANCES"
	ColMessages    = "SUBTEST_MESSAGES"
	ColPass        = "OK_INSTANCES"
)

// Header is the column order of a written report.
var Header = []string{ColSampleID, ColDropboxUUID, ColNotOK, ColMessages, ColPass}

// Row is one (sample, dropbox UUID) line of the report.
type Row struct {
	SampleID    string
	DropboxUUID string
	NotOK       []string
	Messages    []string
	Pass        []string
}

// Report is the merged failure report across all run instances.
type Report struct {
	Rows []Row
}

// Aggregate merges per-instance results, in the given order, into one
// report and outer-joins the pass status of every sample in idx.
func Aggregate(results []*extractor.InstanceResult, idx *scanner.Index) *Report {
	type key struct{ sample, dropbox string }

	pos := make(map[key]int)
	rows := make([]Row, 0)
	seen := make(map[string]struct{})

	for _, res := range results {
		if res == nil {
			continue
		}

		for _, r := range res.Rows {
			k := key{r.SampleID, r.DropboxUUID}

			i, ok := pos[k]
			if !ok {
				i = len(rows)
				pos[k] = i
				rows = append(rows, Row{SampleID: r.SampleID, DropboxUUID: r.DropboxUUID})
			}

			rows[i].NotOK = appendAll(rows[i].NotOK, r.NotOK)
			rows[i].Messages = appendAll(rows[i].Messages, r.Messages)
			rows[i].Pass = appendAll(rows[i].Pass, r.Pass)
			seen[r.SampleID] = struct{}{}
		}
	}

	if idx != nil {
		for i := range rows {
			rows[i].Pass = appendAll(rows[i].Pass, idx.PassStatus(rows[i].SampleID))
		}

		for _, sample := range idx.Samples() {
			if _, ok := seen[sample]; ok {
				continue
			}

			rows = append(rows, Row{SampleID: sample, Pass: idx.PassStatus(sample)})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].SampleID != rows[j].SampleID {
			return rows[i].SampleID < rows[j].SampleID
		}

		return rows[i].DropboxUUID < rows[j].DropboxUUID
	})

	return &Report{Rows: rows}
}

func appendAll(list, values []string) []string {
	for _, v := range values {
		list = scanner.AppendUnique(list, v)
	}

	return list
}

// Delimiter returns tab for .tsv paths and comma otherwise.
func Delimiter(path string) rune {
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		return '\t'
	}

	return ','
}

// Encode renders the report in delimited text form.
func (r *Report) Encode(comma rune) ([]byte, error) {
	records := make([][]string, 0, len(r.Rows))

	for _, row := range r.Rows {
		records = append(records, []string{
			row.SampleID,
			row.DropboxUUID,
			strings.Join(row.NotOK, Separator),
			strings.Join(row.Messages, Separator),
			strings.Join(row.Pass, Separator),
		})
	}

	var buf bytes.Buffer
	if err := tsv.Write(&buf, comma, Header, records); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Write encodes the report and atomically replaces the file at path. It
// returns the number of bytes written.
func Write(path string, r *Report, owner *fsutil.OwnerConfig) (int64, error) {
	data, err := r.Encode(Delimiter(path))
	if err != nil {
		return 0, fmt.Errorf("encoding report: %w", err)
	}

	if err := fsutil.WriteFileAtomic(path, data, 0o644, owner); err != nil {
		return 0, fmt.Errorf("writing report: %w", err)
	}

	return int64(len(data)), nil
}

// Read parses a report previously produced by Write.
func Read(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening report: %w", err)
	}
	defer func() { _ = f.Close() }()

	t, err := tsv.Read(f, Delimiter(path))
	if err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}

	cols, err := t.Columns(Header...)
	if err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}

	rows := make([]Row, 0, len(t.Rows))
	for _, rec := range t.Rows {
		rows = append(rows, Row{
			SampleID:    rec[cols[0]],
			DropboxUUID: rec[cols[1]],
			NotOK:       splitList(rec[cols[2]]),
			Messages:    splitList(rec[cols[3]]),
			Pass:        splitList(rec[cols[4]]),
		})
	}

	return &Report{Rows: rows}, nil
}

func splitList(cell string) []string {
	if cell == "" {
		return nil
	}

	return strings.Split(cell, Separator)
}
