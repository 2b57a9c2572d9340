package backup

import (
	"context"
	"fmt"
	"io"

	"github.com/nkoval/pgkeep/internal/config"
)

// Dumper produces a logical dump stream for one database. The caller must
// drain the reader and then Close it; Close reports the dump tool's final
// status, returning a *DumpError on non-zero exit.
type Dumper interface {
	Dump(ctx context.Context, conn config.ConnectionConfig) (io.ReadCloser, error)
}

// DumpError carries the external dump tool's exit code and captured stderr
// so operators can see why the tool failed without re-running it.
type DumpError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *DumpError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s failed (exit %d): %s", e.Tool, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s failed (exit %d): %v", e.Tool, e.ExitCode, e.Err)
}

func (e *DumpError) Unwrap() error { return e.Err }
