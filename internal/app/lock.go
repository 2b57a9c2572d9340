package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// AcquireLock takes a per-database advisory file lock so two backups of the
// same database never interleave. It returns (nil, nil) when the lock is
// already held elsewhere; the caller decides whether that is an error or a
// skip.
func AcquireLock(db string) (*flock.Flock, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("pgkeep_%s.lock", db))

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !locked {
		return nil, nil
	}
	return fl, nil
}
