package upload

import "context"

// Uploader uploads finished report files to remote storage.
type Uploader interface {
	// Preflight verifies that the remote storage is reachable and writable.
	// Writes a small test object to the bucket to fail fast on misconfiguration.
	Preflight(ctx context.Context) error

	// UploadFiles uploads each local file under the configured prefix using
	// its base name as the key suffix. It returns the uploaded keys.
	UploadFiles(ctx context.Context, paths ...string) ([]string, error)
}
