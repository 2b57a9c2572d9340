package app

import "errors"

// Failure classes surfaced to the CLI. Dump tool failures are reported as
// *backup.DumpError instead and carry the tool's exit code and stderr.
var (
	// ErrConfig marks failures caused by unusable configuration, such as an
	// empty database password.
	ErrConfig = errors.New("configuration error")

	// ErrIO marks storage failures: unwritable destinations, artifact key
	// collisions, failed renames or uploads.
	ErrIO = errors.New("storage error")

	// ErrRetention marks sweep failures. A sweep that fails after a
	// successful backup does not invalidate the backup.
	ErrRetention = errors.New("retention error")
)
