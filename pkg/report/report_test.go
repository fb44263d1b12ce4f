package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/qphi/dragen-report/pkg/extractor"
	"github.com/qphi/dragen-report/pkg/scanner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIndex() *scanner.Index {
	return scanner.NewIndex(
		[]scanner.Marker{
			{SampleID: "S1", Instance: "IN01"},
			{SampleID: "S2", Instance: "IN03"},
			{SampleID: "S3", Instance: "IN01"},
			{SampleID: "S3", Instance: "IN03"},
			{SampleID: "S4", Instance: "IN05"},
		},
		[]scanner.Marker{
			{SampleID: "S1", Instance: "IN02"},
			{SampleID: "S3", Instance: "IN04"},
			{SampleID: "S4", Instance: "IN06"},
		},
	)
}

func testResults(idx *scanner.Index) []*extractor.InstanceResult {
	in01 := extractor.Group([]extractor.Failure{
		{SampleID: "S3", DropboxUUID: "U3", Message: "coverage below threshold"},
		{SampleID: "S1", DropboxUUID: "U1", Message: "genotype mismatch"},
	})
	in03 := extractor.Group([]extractor.Failure{
		{SampleID: "S3", DropboxUUID: "U3", Message: "coverage below threshold"},
		{SampleID: "S3", DropboxUUID: "U3", Message: "contamination"},
		{SampleID: "S2", DropboxUUID: "U2", Message: "missing vcf"},
	})

	extractor.Enrich(in01, idx)
	extractor.Enrich(in03, idx)

	return []*extractor.InstanceResult{
		{Instance: "IN01", Rows: in01},
		nil,
		{Instance: "IN03", Rows: in03},
	}
}

func TestAggregate(t *testing.T) {
	idx := testIndex()
	r := Aggregate(testResults(idx), idx)

	require.Equal(t, []Row{
		{
			SampleID:    "S1",
			DropboxUUID: "U1",
			NotOK:       []string{"IN01"},
			Messages:    []string{"genotype mismatch"},
			Pass:        []string{"IN02"},
		},
		{
			SampleID:    "S2",
			DropboxUUID: "U2",
			NotOK:       []string{"IN03"},
			Messages:    []string{"missing vcf"},
			Pass:        []string{scanner.NoPassFile},
		},
		{
			SampleID:    "S3",
			DropboxUUID: "U3",
			NotOK:       []string{"IN01", "IN03"},
			Messages:    []string{"coverage below threshold", "contamination"},
			Pass:        []string{"IN04"},
		},
		{
			SampleID: "S4",
			Pass:     []string{"IN06"},
		},
	}, r.Rows)
}

func TestAggregateWithoutIndex(t *testing.T) {
	r := Aggregate([]*extractor.InstanceResult{{
		Instance: "IN01",
		Rows:     []extractor.Row{{SampleID: "S9", DropboxUUID: "U9", Messages: []string{"m"}}},
	}}, nil)

	require.Len(t, r.Rows, 1)
	assert.Nil(t, r.Rows[0].Pass)
}

func TestWriteIsByteStable(t *testing.T) {
	dir := t.TempDir()
	idx := testIndex()

	first := filepath.Join(dir, "first.csv")
	second := filepath.Join(dir, "second.csv")

	n, err := Write(first, Aggregate(testResults(idx), idx), nil)
	require.NoError(t, err)
	assert.Positive(t, n)

	_, err = Write(second, Aggregate(testResults(idx), idx), nil)
	require.NoError(t, err)

	a, err := os.ReadFile(first)
	require.NoError(t, err)
	b, err := os.ReadFile(second)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, int64(len(a)), n)
	assert.Equal(t,
		"QBB_ID,DROPBOX_UUID,NOT_OK_INSTANCES,SUBTEST_MESSAGES,OK_INSTANCES\n"+
			"S1,U1,IN01,genotype mismatch,IN02\n"+
			"S2,U2,IN03,missing vcf,There is no file\n"+
			"S3,U3,IN01;IN03,coverage below threshold;contamination,IN04\n"+
			"S4,,,,IN06\n",
		string(a))
}

func TestWriteReadRoundTrip(t *testing.T) {
	for _, name := range []string{"report.csv", "report.tsv"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			idx := testIndex()
			want := Aggregate(testResults(idx), idx)

			_, err := Write(path, want, nil)
			require.NoError(t, err)

			got, err := Read(path)
			require.NoError(t, err)
			assert.Equal(t, want.Rows, got.Rows)
		})
	}
}

func TestReadRejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n1,2\n"), 0o644))

	_, err := Read(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QBB_ID")
}

func TestDelimiter(t *testing.T) {
	assert.Equal(t, '\t', Delimiter("out/report.TSV"))
	assert.Equal(t, ',', Delimiter("final_report.csv"))
	assert.Equal(t, ',', Delimiter("report"))
}
