package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/nkoval/pgkeep/internal/config"
)

// stderr capture is capped so a chatty tool cannot balloon memory.
const maxStderrCapture = 8 << 10

type PostgresDumper struct{}

// Dump starts pg_dump in plain format, streaming the SQL text on the
// returned reader. Close waits for the process and surfaces a *DumpError
// when it exited non-zero.
func (PostgresDumper) Dump(ctx context.Context, conn config.ConnectionConfig) (io.ReadCloser, error) {
	cmd := exec.CommandContext(
		ctx,
		"pg_dump",
		"--host", loopbackHost(conn.Host),
		"--port", strconv.Itoa(conn.Port),
		"--username", conn.User,
		"--dbname", conn.Database,
		"--format=plain",
		"--no-password",
	)
	// pg_dump reads the password from the environment; --no-password keeps
	// it from ever prompting in an unattended run.
	cmd.Env = append(os.Environ(), "PGPASSWORD="+conn.Password)

	stderr := NewStderrBuffer()
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pg_dump stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start pg_dump: %w", err)
	}

	return &dumpStream{stdout: stdout, cmd: cmd, stderr: stderr}, nil
}

// loopbackHost pins "localhost" to the IPv4 loopback address. The ::1 and
// 127.0.0.1 entries in pg_hba.conf can carry different auth rules, and a
// dual-stack resolver may pick either.
func loopbackHost(host string) string {
	if host == "" || host == "localhost" {
		return "127.0.0.1"
	}
	return host
}

type dumpStream struct {
	stdout io.ReadCloser
	cmd    *exec.Cmd
	stderr *CappedBuffer
	waited bool
}

func (d *dumpStream) Read(p []byte) (int, error) {
	return d.stdout.Read(p)
}

func (d *dumpStream) Close() error {
	if d.waited {
		return nil
	}
	d.waited = true

	_ = d.stdout.Close()

	err := d.cmd.Wait()
	if err == nil {
		return nil
	}

	de := &DumpError{
		Tool:     "pg_dump",
		ExitCode: -1,
		Stderr:   strings.TrimSpace(d.stderr.String()),
		Err:      err,
	}
	if ee, ok := err.(*exec.ExitError); ok {
		de.ExitCode = ee.ExitCode()
	}
	return de
}

// CappedBuffer retains at most max bytes while reporting full consumption,
// so a pipe feeding it never blocks.
type CappedBuffer struct {
	buf bytes.Buffer
	max int
}

// NewStderrBuffer returns a CappedBuffer sized for capturing tool stderr.
func NewStderrBuffer() *CappedBuffer {
	return &CappedBuffer{max: maxStderrCapture}
}

func (b *CappedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			p = p[:room]
		}
		b.buf.Write(p)
	}
	return n, nil
}

func (b *CappedBuffer) String() string { return b.buf.String() }
