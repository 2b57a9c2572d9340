package storage

import (
	"context"
	"io"
)

// Storage writes backup artifacts under string keys. OpenWriter returns the
// writer plus a human-readable destination (filesystem path, s3:// URL) for
// the result line.
type Storage interface {
	Name() string
	OpenWriter(ctx context.Context, key string) (io.WriteCloser, string, error)
}

// Statter is an optional capability: backends that can answer existence
// checks let the backup runner refuse to overwrite a colliding key.
type Statter interface {
	Exists(ctx context.Context, key string) (bool, error)
}
