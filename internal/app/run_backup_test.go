package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nkoval/pgkeep/internal/backup"
	"github.com/nkoval/pgkeep/internal/compression"
	"github.com/nkoval/pgkeep/internal/config"
	"github.com/nkoval/pgkeep/internal/storage/local"
)

type fakeDumper struct {
	data     string
	startErr error
	closeErr error
}

type fakeStream struct {
	io.Reader
	closeErr error
}

func (s *fakeStream) Close() error { return s.closeErr }

func (f fakeDumper) Dump(_ context.Context, _ config.ConnectionConfig) (io.ReadCloser, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &fakeStream{Reader: strings.NewReader(f.data)}, nil
}

func newTestRunner(t *testing.T, dumper backup.Dumper, now time.Time) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	return &Runner{
		Dumper: dumper,
		Store:  local.New("local", dir),
		Log:    zap.NewNop().Sugar(),
		Now:    func() time.Time { return now },
	}, dir
}

func testDB(name string) config.DatabaseConfig {
	return config.DatabaseConfig{
		Name: name,
		Connection: config.ConnectionConfig{
			Host:     "127.0.0.1",
			Port:     5432,
			Database: name,
			User:     "backup",
			Password: "secret",
		},
	}
}

func TestBackupWritesTimestampedArtifact(t *testing.T) {
	dump := "-- PostgreSQL database dump\nCREATE TABLE t (id int);\n"
	now := time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC)
	r, dir := newTestRunner(t, fakeDumper{data: dump}, now)

	artifact, err := r.Backup(context.Background(), testDB("euem_db"))
	if err != nil {
		t.Fatalf("Backup: %v", err)
	}

	wantKey := "backup_euem_db_20250615_020000.sql.gz"
	if artifact.Key != wantKey {
		t.Errorf("Key = %q, want %q", artifact.Key, wantKey)
	}
	if artifact.Database != "euem_db" {
		t.Errorf("Database = %q", artifact.Database)
	}
	if artifact.SizeBytes <= 0 {
		t.Errorf("SizeBytes = %d, want > 0", artifact.SizeBytes)
	}

	raw, err := os.ReadFile(filepath.Join(dir, wantKey))
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if int64(len(raw)) != artifact.SizeBytes {
		t.Errorf("artifact is %d bytes on disk, runner reported %d", len(raw), artifact.SizeBytes)
	}

	var restored bytes.Buffer
	if _, err := compression.Gunzip(&restored, bytes.NewReader(raw)); err != nil {
		t.Fatalf("gunzip artifact: %v", err)
	}
	if restored.String() != dump {
		t.Errorf("restored dump differs from original")
	}
}

func TestBackupEmptyPasswordIsConfigError(t *testing.T) {
	now := time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC)
	r, dir := newTestRunner(t, fakeDumper{data: "never read"}, now)

	db := testDB("euem_db")
	db.Connection.Password = ""

	_, err := r.Backup(context.Background(), db)
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("err = %v, want ErrConfig", err)
	}
	assertDirEmpty(t, dir)
}

func TestBackupDumpFailureLeavesNothing(t *testing.T) {
	dumpErr := &backup.DumpError{Tool: "pg_dump", ExitCode: 1, Stderr: "connection refused"}
	now := time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC)
	r, dir := newTestRunner(t, failingDumper{err: dumpErr}, now)

	_, err := r.Backup(context.Background(), testDB("euem_db"))

	var de *backup.DumpError
	if !errors.As(err, &de) {
		t.Fatalf("err = %v, want *backup.DumpError", err)
	}
	if de.ExitCode != 1 || !strings.Contains(de.Stderr, "connection refused") {
		t.Errorf("DumpError = %+v", de)
	}
	assertDirEmpty(t, dir)
}

// failingDumper streams some output and then reports a non-zero exit on
// Close, like a dump tool dying mid-run.
type failingDumper struct {
	err error
}

func (f failingDumper) Dump(_ context.Context, _ config.ConnectionConfig) (io.ReadCloser, error) {
	return &fakeStream{Reader: strings.NewReader("partial output"), closeErr: f.err}, nil
}

func TestBackupRefusesToOverwrite(t *testing.T) {
	now := time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC)
	r, dir := newTestRunner(t, fakeDumper{data: "dump"}, now)

	key := ArtifactKey("euem_db", now)
	if err := os.WriteFile(filepath.Join(dir, key), []byte("existing"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := r.Backup(context.Background(), testDB("euem_db"))
	if !errors.Is(err, ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}

	raw, err := os.ReadFile(filepath.Join(dir, key))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "existing" {
		t.Error("existing artifact was overwritten")
	}
}

func TestBackupSweepsExpiredArtifacts(t *testing.T) {
	now := time.Date(2025, 6, 15, 2, 0, 0, 0, time.UTC)
	r, dir := newTestRunner(t, fakeDumper{data: "dump"}, now)

	old := ArtifactKey("euem_db", now.AddDate(0, 0, -40))
	fresh := ArtifactKey("euem_db", now.AddDate(0, 0, -5))
	otherDB := ArtifactKey("euem_db_staging", now.AddDate(0, 0, -40))
	for _, k := range []string{old, fresh, otherDB} {
		if err := os.WriteFile(filepath.Join(dir, k), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	db := testDB("euem_db")
	db.Retention.MaxAgeDays = 30
	if _, err := r.Backup(context.Background(), db); err != nil {
		t.Fatalf("Backup: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, old)); !os.IsNotExist(err) {
		t.Errorf("expired artifact %s still present", old)
	}
	for _, k := range []string{fresh, otherDB} {
		if _, err := os.Stat(filepath.Join(dir, k)); err != nil {
			t.Errorf("artifact %s should have survived: %v", k, err)
		}
	}
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		t.Errorf("unexpected file left behind: %s", e.Name())
	}
}
