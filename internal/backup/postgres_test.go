package backup

import (
	"strings"
	"testing"
)

func TestLoopbackHostPinsIPv4(t *testing.T) {
	if got := loopbackHost(""); got != "127.0.0.1" {
		t.Fatalf("empty host: got %q", got)
	}
	if got := loopbackHost("localhost"); got != "127.0.0.1" {
		t.Fatalf("localhost: got %q", got)
	}
	if got := loopbackHost("db.internal"); got != "db.internal" {
		t.Fatalf("explicit host must pass through, got %q", got)
	}
}

func TestCappedBufferStopsAtLimit(t *testing.T) {
	b := &CappedBuffer{max: 10}

	n, err := b.Write([]byte(strings.Repeat("x", 25)))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	// Write must report full consumption so the producer never blocks.
	if n != 25 {
		t.Fatalf("Write returned %d, want 25", n)
	}
	if got := len(b.String()); got != 10 {
		t.Fatalf("captured %d bytes, want 10", got)
	}
}

func TestDumpErrorMessageIncludesStderr(t *testing.T) {
	e := &DumpError{Tool: "pg_dump", ExitCode: 1, Stderr: "connection refused"}
	msg := e.Error()
	if !strings.Contains(msg, "exit 1") || !strings.Contains(msg, "connection refused") {
		t.Fatalf("unexpected message: %s", msg)
	}
}
