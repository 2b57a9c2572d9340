package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/nkoval/pgkeep/internal/backup"
	"github.com/nkoval/pgkeep/internal/compression"
	"github.com/nkoval/pgkeep/internal/config"
	"github.com/nkoval/pgkeep/internal/notify"
	"github.com/nkoval/pgkeep/internal/storage"
	"github.com/nkoval/pgkeep/internal/storage/prunable"
)

const timestampLayout = "20060102_150405"

// Artifact describes one completed backup.
type Artifact struct {
	Database    string
	Key         string
	Destination string
	SizeBytes   int64
	CreatedAt   time.Time
	Duration    time.Duration
}

// Runner executes backups for one configured database.
type Runner struct {
	Dumper backup.Dumper
	Store  storage.Storage
	Log    *zap.SugaredLogger
	Notify *notify.Dispatcher

	// Now is the clock used for artifact timestamps and retention cutoffs.
	// Nil means time.Now.
	Now func() time.Time
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// ArtifactKey builds the storage key for a backup of db taken at ts. The
// timestamp is rendered in UTC so keys sort chronologically regardless of
// the host timezone.
func ArtifactKey(db string, ts time.Time) string {
	return fmt.Sprintf("backup_%s_%s.sql.gz", db, ts.UTC().Format(timestampLayout))
}

type aborter interface {
	Abort()
}

// Backup dumps the database, compresses the stream, and writes it to storage
// under a timestamped key. On any failure no artifact, partial or complete,
// is left behind. After a successful write it runs the retention sweep when
// the backend supports listing; sweep failures are logged, not returned.
func (r *Runner) Backup(ctx context.Context, db config.DatabaseConfig) (*Artifact, error) {
	start := r.now()
	artifact, err := r.backup(ctx, db, start)
	r.report(ctx, db.Name, start, artifact, err)
	return artifact, err
}

// report emits the outcome to configured notifiers. It runs on a detached
// context so a cancelled backup still reports its failure.
func (r *Runner) report(ctx context.Context, dbName string, start time.Time, artifact *Artifact, err error) {
	if r.Notify == nil {
		return
	}

	event := notify.Event{
		Database: dbName,
		Status:   notify.StatusSuccess,
		Duration: r.now().Sub(start).Round(time.Millisecond).String(),
	}
	if artifact != nil {
		event.Artifact = artifact.Key
		event.Bytes = artifact.SizeBytes
	}
	if err != nil {
		event.Status = notify.StatusFailure
		event.Error = err.Error()
	}

	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if nerr := r.Notify.Notify(notifyCtx, event); nerr != nil {
		r.Log.Warnw("notification delivery failed", "database", dbName, "error", nerr)
	}
}

func (r *Runner) backup(ctx context.Context, db config.DatabaseConfig, start time.Time) (*Artifact, error) {
	if db.Connection.Password == "" {
		return nil, fmt.Errorf("%w: database %s has no password resolved", ErrConfig, db.Name)
	}

	key := ArtifactKey(db.Name, start)

	if statter, ok := r.Store.(storage.Statter); ok {
		exists, err := statter.Exists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("%w: check %s: %v", ErrIO, key, err)
		}
		if exists {
			return nil, fmt.Errorf("%w: artifact %s already exists, refusing to overwrite", ErrIO, key)
		}
	}

	w, dest, err := r.Store.OpenWriter(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrIO, key, err)
	}

	size, err := r.dumpInto(ctx, db, w)
	if err != nil {
		if a, ok := w.(aborter); ok {
			a.Abort()
		}
		_ = w.Close()
		return nil, err
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("%w: finalize %s: %v", ErrIO, key, err)
	}

	artifact := &Artifact{
		Database:    db.Name,
		Key:         key,
		Destination: dest,
		SizeBytes:   size,
		CreatedAt:   start.UTC(),
		Duration:    r.now().Sub(start),
	}

	r.Log.Infow("backup complete",
		"database", db.Name,
		"dest", dest,
		"bytes", size,
		"duration", artifact.Duration.Round(time.Millisecond).String(),
	)

	if db.Retention.MaxAgeDays > 0 {
		if pr, ok := r.Store.(prunable.Prunable); ok {
			deleted, err := Sweep(ctx, pr, db.Name, db.Retention.MaxAgeDays, r.now())
			if err != nil {
				r.Log.Warnw("retention sweep incomplete", "database", db.Name, "error", err)
			}
			for _, key := range deleted {
				r.Log.Infow("expired backup removed", "database", db.Name, "key", key)
			}
		}
	}

	return artifact, nil
}

// dumpInto runs the dump tool and streams its output through gzip into w,
// returning the compressed byte count. The dump is never buffered whole.
func (r *Runner) dumpInto(ctx context.Context, db config.DatabaseConfig, w io.Writer) (int64, error) {
	stream, err := r.Dumper.Dump(ctx, db.Connection)
	if err != nil {
		return 0, fmt.Errorf("start dump of %s: %w", db.Name, err)
	}

	counted := &countingWriter{w: w}
	_, copyErr := compression.Gzip(counted, stream)

	// Close waits for the tool to exit and surfaces *backup.DumpError on a
	// non-zero exit. A tool failure explains any copy error, so it wins.
	if err := stream.Close(); err != nil {
		return counted.n, err
	}
	if copyErr != nil {
		return counted.n, fmt.Errorf("%w: write artifact: %v", ErrIO, copyErr)
	}

	return counted.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
