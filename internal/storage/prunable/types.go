package prunable

import (
	"context"
	"time"
)

type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Prunable is implemented by storage backends that can enumerate and delete
// backup artifacts, which is what the retention sweep needs. Backends that
// cannot (write-only targets) are skipped by retention.
type Prunable interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
}
