package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nkoval/pgkeep/internal/config"
	"github.com/nkoval/pgkeep/internal/schedule"
)

// Daemon runs scheduled backups for every database whose config carries a
// cron spec. Databases without a schedule are skipped with a warning.
type Daemon struct {
	Runners map[string]*Runner
	Log     *zap.SugaredLogger
}

// Run blocks until ctx is cancelled or the process receives SIGINT/SIGTERM,
// then waits for in-flight jobs to finish.
func (d *Daemon) Run(ctx context.Context, databases []config.DatabaseConfig) error {
	sched := schedule.New()

	scheduled := 0
	for _, db := range databases {
		if db.Backup.Schedule == "" {
			d.Log.Warnw("no schedule, skipping", "database", db.Name)
			continue
		}

		runner, ok := d.Runners[db.Name]
		if !ok {
			return fmt.Errorf("%w: no runner for database %s", ErrConfig, db.Name)
		}

		err := sched.AddJob(db.Backup.Schedule, func(jobCtx context.Context) error {
			return d.runOnce(jobCtx, runner, db)
		})
		if err != nil {
			return fmt.Errorf("%w: schedule for %s: %v", ErrConfig, db.Name, err)
		}
		scheduled++
		d.Log.Infow("scheduled", "database", db.Name, "spec", db.Backup.Schedule)
	}

	if scheduled == 0 {
		return fmt.Errorf("%w: no database has a schedule", ErrConfig)
	}

	sched.Start()
	defer sched.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
		d.Log.Info("context cancelled, shutting down")
	case sig := <-sigCh:
		d.Log.Infow("signal received, shutting down", "signal", sig.String())
	}

	return nil
}

// runOnce executes one scheduled backup under the per-database lock. A held
// lock means a previous run is still going; the tick is skipped rather than
// queued.
func (d *Daemon) runOnce(ctx context.Context, runner *Runner, db config.DatabaseConfig) error {
	lock, err := AcquireLock(db.Name)
	if err != nil {
		d.Log.Errorw("lock failed", "database", db.Name, "error", err)
		return err
	}
	if lock == nil {
		d.Log.Warnw("previous backup still running, skipping tick", "database", db.Name)
		return nil
	}
	defer lock.Unlock()

	if _, err := runner.Backup(ctx, db); err != nil {
		d.Log.Errorw("scheduled backup failed", "database", db.Name, "error", err)
		return err
	}
	return nil
}
