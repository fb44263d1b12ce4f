package upload

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/qphi/dragen-report/pkg/config"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveKey(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		file   string
		want   string
	}{
		{
			name:   "default prefix",
			prefix: "",
			file:   "final_report.csv",
			want:   "reports/final_report.csv",
		},
		{
			name:   "custom prefix",
			prefix: "qc/dragen-validator",
			file:   "final_report.csv",
			want:   "qc/dragen-validator/final_report.csv",
		},
		{
			name:   "trailing slash stripped",
			prefix: "my-prefix//",
			file:   "summary.md",
			want:   "my-prefix/summary.md",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := &s3Uploader{
				cfg: &config.S3UploadConfig{Prefix: tt.prefix},
			}
			assert.Equal(t, tt.want, u.resolveKey(tt.file))
		})
	}
}

func TestDetectContentType(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		wantPrefix string
	}{
		{name: "csv report", path: "out/final_report.csv", wantPrefix: "text/csv"},
		{name: "tsv report", path: "out/final_report.tsv", wantPrefix: "text/tab-separated-values"},
		{name: "markdown summary", path: "out/final_report.md", wantPrefix: "text/markdown"},
		{name: "no extension", path: "out/report", wantPrefix: "application/octet-stream"},
		{name: "json file", path: "out/config.json", wantPrefix: "application/json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, detectContentType(tt.path), tt.wantPrefix)
		})
	}
}

func TestNewS3UploaderRequiresBucket(t *testing.T) {
	log, _ := logtest.NewNullLogger()

	_, err := NewS3Uploader(log, nil)
	require.Error(t, err)

	_, err = NewS3Uploader(log, &config.S3UploadConfig{})
	require.Error(t, err)

	u, err := NewS3Uploader(log, &config.S3UploadConfig{Bucket: "b"})
	require.NoError(t, err)
	assert.NotNil(t, u)
}

func TestUploadFilesMissingFile(t *testing.T) {
	log, _ := logtest.NewNullLogger()

	u, err := NewS3Uploader(log, &config.S3UploadConfig{
		Bucket:      "b",
		EndpointURL: "http://127.0.0.1:1",
	})
	require.NoError(t, err)

	keys, err := u.UploadFiles(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.Empty(t, keys)
	assert.Contains(t, err.Error(), "opening file")
}
