package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/nkoval/pgkeep/internal/backup"
	"github.com/nkoval/pgkeep/internal/compression"
	"github.com/nkoval/pgkeep/internal/config"
)

// Restore feeds a gzipped plain-SQL artifact into psql against the target
// connection. The archive is streamed; it is never decompressed to disk.
func Restore(ctx context.Context, conn config.ConnectionConfig, archivePath string) error {
	if conn.Password == "" {
		return fmt.Errorf("%w: no password resolved for %s", ErrConfig, conn.Database)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: open archive: %v", ErrIO, err)
	}
	defer f.Close()

	cmd := exec.CommandContext(ctx, "psql",
		"--host", conn.Host,
		"--port", fmt.Sprintf("%d", conn.Port),
		"--username", conn.User,
		"--dbname", conn.Database,
		"--no-password",
		"--set", "ON_ERROR_STOP=on",
	)
	cmd.Env = append(os.Environ(), "PGPASSWORD="+conn.Password)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("psql stdin: %w", err)
	}
	stderr := backup.NewStderrBuffer()
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start psql: %w", err)
	}

	_, copyErr := compression.Gunzip(stdin, f)
	closeErr := stdin.Close()

	if err := cmd.Wait(); err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return &backup.DumpError{
				Tool:     "psql",
				ExitCode: exitErr.ExitCode(),
				Stderr:   stderr.String(),
				Err:      err,
			}
		}
		return fmt.Errorf("psql: %w", err)
	}
	if copyErr != nil {
		return fmt.Errorf("%w: read archive: %v", ErrIO, copyErr)
	}
	if closeErr != nil && closeErr != io.ErrClosedPipe {
		return fmt.Errorf("close psql stdin: %w", closeErr)
	}

	return nil
}
