package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenWriterRenamesOnClose(t *testing.T) {
	base := t.TempDir()
	s := New("test", base)

	w, dest, err := s.OpenWriter(context.Background(), "backup_db_20260101_000000.sql.gz")
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}

	if _, err := w.Write([]byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// before Close, only the temp file exists
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("final path should not exist before Close, stat err: %v", err)
	}
	if _, err := os.Stat(dest + ".tmp"); err != nil {
		t.Fatalf("temp file missing before Close: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read final file: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("unexpected content %q", got)
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file should be gone after Close")
	}
}

func TestAbortRemovesTempFile(t *testing.T) {
	base := t.TempDir()
	s := New("test", base)

	w, dest, err := s.OpenWriter(context.Background(), "backup_db_20260101_000000.sql.gz")
	if err != nil {
		t.Fatalf("OpenWriter: %v", err)
	}
	if _, err := w.Write([]byte("partial")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	lw := w.(*Writer)
	lw.Abort()
	if err := w.Close(); err != nil {
		t.Fatalf("Close after Abort: %v", err)
	}

	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Fatalf("final path should not exist after aborted write")
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file should be removed after aborted write")
	}
}

func TestExists(t *testing.T) {
	base := t.TempDir()
	s := New("test", base)

	ok, err := s.Exists(context.Background(), "nope.sql.gz")
	if err != nil || ok {
		t.Fatalf("Exists on missing key: ok=%v err=%v", ok, err)
	}

	name := "backup_db_20260101_000000.sql.gz"
	if err := os.WriteFile(filepath.Join(base, name), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	ok, err = s.Exists(context.Background(), name)
	if err != nil || !ok {
		t.Fatalf("Exists on present key: ok=%v err=%v", ok, err)
	}
}

func TestListSkipsDirsAndTempFiles(t *testing.T) {
	base := t.TempDir()
	s := New("test", base)

	if err := os.WriteFile(filepath.Join(base, "a.sql.gz"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(base, "b.sql.gz.tmp"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(base, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	objs, err := s.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 1 || objs[0].Key != "a.sql.gz" {
		t.Fatalf("unexpected listing: %+v", objs)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	base := t.TempDir()
	s := New("test", base)

	name := "a.sql.gz"
	if err := os.WriteFile(filepath.Join(base, name), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(context.Background(), name); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(context.Background(), name); err != nil {
		t.Fatalf("Delete of missing key should be nil, got %v", err)
	}
}
