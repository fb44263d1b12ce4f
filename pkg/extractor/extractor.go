package extractor

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/qphi/dragen-report/pkg/scanner"
	"github.com/qphi/dragen-report/pkg/tsv"
	"github.com/sirupsen/logrus"
)

const (
	// StatusOK is the status value of a passing test or subtest.
	StatusOK = "ok"

	// StatusNotOK is the status value of a failing test or subtest. It is
	// also the status assumed when a summary carries no status for a test.
	StatusNotOK = "not ok"

	// DetailsSuffix is the filename suffix of a failing sample's details file.
	DetailsSuffix = ".nok.details.tsv"

	// SummarySuffix is the filename suffix of a failing sample's summary file.
	SummarySuffix = ".nok.summary.tsv"

	// StatusColumnSuffix is stripped from summary column names to obtain the
	// test name.
	StatusColumnSuffix = "_STATUS"

	// TSVDir is the per-instance subdirectory holding the sample files.
	TSVDir = "TSV"
)

// Details file column names.
const (
	ColSampleID       = "QBB_ID"
	ColDropboxUUID    = "DROPBOX_UUID"
	ColTestName       = "TEST_NAME"
	ColSubtestStatus  = "SUBTEST_STATUS"
	ColSubtestMessage = "SUBTEST_MESSAGE"
)

// ErrNoFailures is returned by Extract when an instance holds no failure
// details files. It is a normal outcome, not a failure.
var ErrNoFailures = errors.New("no failures for this instance")

// Summary maps lower-cased test names to their overall status.
type Summary map[string]string

// Status returns the status of a test, defaulting to StatusNotOK when the
// summary has no value for it.
func (s Summary) Status(test string) string {
	if v, ok := s[strings.ToLower(strings.TrimSpace(test))]; ok && v != "" {
		return v
	}

	return StatusNotOK
}

// Failure is one failing subtest row of a details file, joined to its
// test's summary status.
type Failure struct {
	SampleID      string
	DropboxUUID   string
	TestName      string
	SubtestStatus string
	Message       string
	TestStatus    string
}

// Pair is a details file and the summary file sharing its prefix. Summary
// is empty when no matching summary exists.
type Pair struct {
	Prefix  string
	Details string
	Summary string
}

// Row is the per-instance failure summary of one (sample, dropbox UUID)
// enriched with the sample's entries from the marker index.
type Row struct {
	SampleID    string
	DropboxUUID string
	Messages    []string
	NotOK       []string
	Pass        []string
}

// InstanceResult is the enriched failure table of one run instance.
type InstanceResult struct {
	Instance string
	Pairs    int
	Rows     []Row
}

// ParseSummary strips the status suffix from every column, lower-cases the
// result and maps it to the value of the first data row.
func ParseSummary(t *tsv.Table) Summary {
	s := make(Summary, len(t.Header))

	var values []string
	if len(t.Rows) > 0 {
		values = t.Rows[0]
	}

	for i, col := range t.Header {
		name := strings.ToLower(strings.TrimSuffix(col, StatusColumnSuffix))

		var v string
		if i < len(values) {
			v = strings.TrimSpace(values[i])
		}

		if v == "" {
			v = StatusNotOK
		}

		s[name] = v
	}

	return s
}

// ReadSummary reads and parses a summary file.
func ReadSummary(path string) (Summary, error) {
	t, err := tsv.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return ParseSummary(t), nil
}

// ParseDetails resolves the details columns by name and returns the rows
// whose subtest status is StatusNotOK.
func ParseDetails(t *tsv.Table) ([]Failure, error) {
	cols, err := t.Columns(ColSampleID, ColDropboxUUID, ColTestName, ColSubtestStatus, ColSubtestMessage)
	if err != nil {
		return nil, err
	}

	failures := make([]Failure, 0)

	for _, row := range t.Rows {
		status := strings.TrimSpace(row[cols[3]])
		if status != StatusNotOK {
			continue
		}

		failures = append(failures, Failure{
			SampleID:      strings.TrimSpace(row[cols[0]]),
			DropboxUUID:   strings.TrimSpace(row[cols[1]]),
			TestName:      strings.TrimSpace(row[cols[2]]),
			SubtestStatus: status,
			Message:       row[cols[4]],
		})
	}

	return failures, nil
}

// ReadDetails reads a details file and returns its failing subtest rows.
func ReadDetails(path string) ([]Failure, error) {
	t, err := tsv.ReadFile(path)
	if err != nil {
		return nil, err
	}

	failures, err := ParseDetails(t)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return failures, nil
}

// Join attaches summary statuses to failing subtests and keeps only rows
// where both the subtest and its test are StatusNotOK.
func Join(failures []Failure, summary Summary) []Failure {
	out := make([]Failure, 0, len(failures))

	for _, f := range failures {
		f.TestStatus = summary.Status(f.TestName)

		if f.SubtestStatus == StatusNotOK && f.TestStatus == StatusNotOK {
			out = append(out, f)
		}
	}

	return out
}

// CountDetails counts failure details files directly under tsvDir,
// including suffixed variants such as compressed copies.
func CountDetails(tsvDir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(tsvDir, "*"+DetailsSuffix+"*"))
	if err != nil {
		return 0, fmt.Errorf("matching details files: %w", err)
	}

	return len(matches), nil
}

// FindPairs walks tsvDir and pairs every details file with the summary
// file sharing its filename prefix. Pairs are sorted by prefix.
func FindPairs(tsvDir string) ([]Pair, error) {
	details := make(map[string]string)
	summaries := make(map[string]string)

	err := filepath.WalkDir(tsvDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		switch {
		case strings.HasSuffix(path, DetailsSuffix):
			details[strings.TrimSuffix(path, DetailsSuffix)] = path
		case strings.HasSuffix(path, SummarySuffix):
			summaries[strings.TrimSuffix(path, SummarySuffix)] = path
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", tsvDir, err)
	}

	pairs := make([]Pair, 0, len(details))
	for prefix, path := range details {
		pairs = append(pairs, Pair{
			Prefix:  prefix,
			Details: path,
			Summary: summaries[prefix],
		})
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Prefix < pairs[j].Prefix
	})

	return pairs, nil
}

// ExtractPair reads one details/summary pair and returns its double-checked
// failures.
func ExtractPair(log logrus.FieldLogger, p Pair) ([]Failure, error) {
	summary := Summary{}

	if p.Summary == "" {
		log.WithField("file", p.Details).
			Warn("No summary file for details file, assuming every test failed")
	} else {
		s, err := ReadSummary(p.Summary)
		if err != nil {
			return nil, fmt.Errorf("reading summary: %w", err)
		}

		summary = s
	}

	failures, err := ReadDetails(p.Details)
	if err != nil {
		return nil, fmt.Errorf("reading details: %w", err)
	}

	return Join(failures, summary), nil
}

// Extract builds the enriched failure table of one run-instance directory.
// It returns ErrNoFailures when the instance holds no failure details.
func Extract(
	log logrus.FieldLogger,
	instanceDir string,
	idx *scanner.Index,
) (*InstanceResult, error) {
	instance := filepath.Base(filepath.Clean(instanceDir))
	log = log.WithFields(logrus.Fields{
		"component": "extractor",
		"instance":  instance,
	})

	tsvDir := filepath.Join(instanceDir, TSVDir)

	count, err := CountDetails(tsvDir)
	if err != nil {
		return nil, err
	}

	if count == 0 {
		return nil, ErrNoFailures
	}

	pairs, err := FindPairs(tsvDir)
	if err != nil {
		return nil, err
	}

	if len(pairs) == 0 {
		return nil, fmt.Errorf("no %s files under %s", DetailsSuffix, tsvDir)
	}

	var failures []Failure

	for _, p := range pairs {
		pf, err := ExtractPair(log, p)
		if err != nil {
			return nil, fmt.Errorf("processing %s: %w", filepath.Base(p.Prefix), err)
		}

		log.WithFields(logrus.Fields{
			"file":     filepath.Base(p.Details),
			"failures": len(pf),
		}).Debug("Processed details file")

		failures = append(failures, pf...)
	}

	rows := Group(failures)
	Enrich(rows, idx)

	log.WithFields(logrus.Fields{
		"pairs": len(pairs),
		"rows":  len(rows),
	}).Info("Extracted failing samples")

	return &InstanceResult{
		Instance: instance,
		Pairs:    len(pairs),
		Rows:     rows,
	}, nil
}

// Group collapses failures by (sample, dropbox UUID) in order of first
// appearance, collecting unique messages.
func Group(failures []Failure) []Row {
	type key struct{ sample, dropbox string }

	pos := make(map[key]int)
	rows := make([]Row, 0)

	for _, f := range failures {
		k := key{f.SampleID, f.DropboxUUID}

		i, ok := pos[k]
		if !ok {
			i = len(rows)
			pos[k] = i
			rows = append(rows, Row{SampleID: f.SampleID, DropboxUUID: f.DropboxUUID})
		}

		rows[i].Messages = scanner.AppendUnique(rows[i].Messages, f.Message)
	}

	return rows
}

// Enrich left-joins rows to the marker index on sample ID. Samples absent
// from the index keep empty NotOK and Pass lists.
func Enrich(rows []Row, idx *scanner.Index) {
	if idx == nil {
		return
	}

	for i := range rows {
		for _, e := range idx.Lookup(rows[i].SampleID) {
			for _, inst := range e.NotOK {
				rows[i].NotOK = scanner.AppendUnique(rows[i].NotOK, inst)
			}

			rows[i].Pass = scanner.AppendUnique(rows[i].Pass, e.Pass)
		}
	}
}
