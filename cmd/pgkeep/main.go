package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/nkoval/pgkeep/internal/app"
	"github.com/nkoval/pgkeep/internal/backup"
	"github.com/nkoval/pgkeep/internal/config"
	"github.com/nkoval/pgkeep/internal/logging"
	"github.com/nkoval/pgkeep/internal/notify"
	"github.com/nkoval/pgkeep/internal/storage"
	"github.com/nkoval/pgkeep/internal/storage/prunable"
	"github.com/nkoval/pgkeep/internal/vault"
)

var version = "dev"

func main() {
	cliApp := &cli.App{
		Name:    "pgkeep",
		Usage:   "PostgreSQL backup and retention tool",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "pgkeep.yaml",
				Usage:   "path to the configuration file",
				EnvVars: []string{"PGKEEP_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			backupCommand(),
			sweepCommand(),
			restoreCommand(),
			daemonCommand(),
			checkCommand(),
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// env carries everything a command needs after config load.
type env struct {
	cfg *config.Config
	log *zap.SugaredLogger
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log, err := logging.New(cfg.Logging.Level, cfg.Logging.File)
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, log: log}, nil
}

// resolvePasswords fills in connection passwords referenced via Vault. It is
// a no-op when no database uses password_vault.
func resolvePasswords(ctx context.Context, cfg *config.Config) error {
	var client *vault.Client
	for i := range cfg.Databases {
		ref := cfg.Databases[i].Connection.PasswordVault
		if ref == nil {
			continue
		}

		if client == nil {
			var err error
			client, err = vault.NewClient(cfg.Vault.Address)
			if err != nil {
				return fmt.Errorf("%w: %v", app.ErrConfig, err)
			}
		}

		field := ref.Field
		if field == "" {
			field = "password"
		}
		password, err := client.ReadField(ctx, ref.Path, field)
		if err != nil {
			return fmt.Errorf("%w: database %s: %v", app.ErrConfig, cfg.Databases[i].Name, err)
		}
		cfg.Databases[i].Connection.Password = password
	}
	return nil
}

func findDatabase(cfg *config.Config, name string) (config.DatabaseConfig, error) {
	for _, db := range cfg.Databases {
		if db.Name == name {
			return db, nil
		}
	}
	return config.DatabaseConfig{}, fmt.Errorf("%w: database %q not configured", app.ErrConfig, name)
}

func buildRunner(ctx context.Context, e *env, db config.DatabaseConfig) (*app.Runner, error) {
	stores, err := storage.FromConfigByNames(ctx, e.cfg, map[string]struct{}{db.Backup.Storage: {}})
	if err != nil {
		return nil, err
	}
	store, ok := stores[db.Backup.Storage]
	if !ok {
		return nil, fmt.Errorf("%w: storage %q not configured", app.ErrConfig, db.Backup.Storage)
	}

	dispatcher, err := notify.NewDispatcher(e.cfg.Notifications)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", app.ErrConfig, err)
	}

	return &app.Runner{
		Dumper: backup.PostgresDumper{},
		Store:  store,
		Log:    e.log,
		Notify: dispatcher,
	}, nil
}

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:      "backup",
		Usage:     "dump, compress, and store backups; all configured databases unless one is named",
		ArgsUsage: "[database]",
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.log.Sync()

			ctx := c.Context
			if err := resolvePasswords(ctx, e.cfg); err != nil {
				return err
			}

			targets := e.cfg.Databases
			if c.NArg() > 0 {
				db, err := findDatabase(e.cfg, c.Args().First())
				if err != nil {
					return err
				}
				targets = []config.DatabaseConfig{db}
			}

			failures := 0
			for _, db := range targets {
				if err := runBackupOnce(ctx, e, db); err != nil {
					fmt.Fprintf(os.Stderr, "backup FAILED: db=%s reason=%v\n", db.Name, err)
					failures++
				}
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d backups failed", failures, len(targets))
			}
			return nil
		},
	}
}

// runBackupOnce executes one backup cycle under the per-database lock and
// prints the result line.
func runBackupOnce(ctx context.Context, e *env, db config.DatabaseConfig) error {
	runner, err := buildRunner(ctx, e, db)
	if err != nil {
		return err
	}

	lock, err := app.AcquireLock(db.Name)
	if err != nil {
		return err
	}
	if lock == nil {
		return fmt.Errorf("another backup of %s is already running", db.Name)
	}
	defer lock.Unlock()

	artifact, err := runner.Backup(ctx, db)
	if err != nil {
		return err
	}

	fmt.Printf("backup OK: db=%s dest=%s bytes=%d duration=%s\n",
		artifact.Database, artifact.Destination, artifact.SizeBytes,
		artifact.Duration.Round(time.Millisecond))
	return nil
}

func sweepCommand() *cli.Command {
	return &cli.Command{
		Name:      "sweep",
		Usage:     "delete expired backups of one database",
		ArgsUsage: "<database>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "list what would be deleted without deleting",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.ShowSubcommandHelp(c)
			}

			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.log.Sync()

			ctx := c.Context
			db, err := findDatabase(e.cfg, c.Args().First())
			if err != nil {
				return err
			}
			if db.Retention.MaxAgeDays <= 0 {
				fmt.Printf("sweep skipped: db=%s retention disabled\n", db.Name)
				return nil
			}

			stores, err := storage.FromConfigByNames(ctx, e.cfg, map[string]struct{}{db.Backup.Storage: {}})
			if err != nil {
				return err
			}
			pr, ok := stores[db.Backup.Storage].(prunable.Prunable)
			if !ok {
				return fmt.Errorf("%w: storage %q cannot list artifacts", app.ErrRetention, db.Backup.Storage)
			}

			if c.Bool("dry-run") {
				return sweepDryRun(ctx, pr, db)
			}

			deleted, err := app.Sweep(ctx, pr, db.Name, db.Retention.MaxAgeDays, time.Now())
			for _, key := range deleted {
				fmt.Printf("deleted %s\n", key)
			}
			if err != nil {
				return err
			}
			fmt.Printf("sweep OK: db=%s deleted=%d\n", db.Name, len(deleted))
			return nil
		},
	}
}

func sweepDryRun(ctx context.Context, pr prunable.Prunable, db config.DatabaseConfig) error {
	objects, err := pr.List(ctx, "")
	if err != nil {
		return fmt.Errorf("%w: list artifacts: %v", app.ErrRetention, err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -db.Retention.MaxAgeDays)
	expired := 0
	for _, obj := range objects {
		name, createdAt, ok := app.ParseArtifactKey(obj.Key)
		if !ok || name != db.Name || !createdAt.Before(cutoff) {
			continue
		}
		fmt.Printf("would delete %s\n", obj.Key)
		expired++
	}
	fmt.Printf("sweep dry-run: db=%s expired=%d\n", db.Name, expired)
	return nil
}

func restoreCommand() *cli.Command {
	return &cli.Command{
		Name:      "restore",
		Usage:     "restore a backup artifact into a database via psql",
		ArgsUsage: "<database> <archive>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 2 {
				return cli.ShowSubcommandHelp(c)
			}

			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.log.Sync()

			ctx := c.Context
			if err := resolvePasswords(ctx, e.cfg); err != nil {
				return err
			}

			db, err := findDatabase(e.cfg, c.Args().First())
			if err != nil {
				return err
			}

			archive := c.Args().Get(1)
			if err := app.Restore(ctx, db.Connection, archive); err != nil {
				return err
			}

			fmt.Printf("restore OK: db=%s archive=%s\n", db.Name, archive)
			return nil
		},
	}
}

func daemonCommand() *cli.Command {
	return &cli.Command{
		Name:  "daemon",
		Usage: "run scheduled backups for all configured databases",
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.log.Sync()

			ctx := c.Context
			if err := resolvePasswords(ctx, e.cfg); err != nil {
				return err
			}

			runners := make(map[string]*app.Runner, len(e.cfg.Databases))
			for _, db := range e.cfg.Databases {
				runner, err := buildRunner(ctx, e, db)
				if err != nil {
					return err
				}
				runners[db.Name] = runner
			}

			d := &app.Daemon{Runners: runners, Log: e.log}
			return d.Run(ctx, e.cfg.Databases)
		},
	}
}

func checkCommand() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "validate the configuration and storage wiring",
		Action: func(c *cli.Context) error {
			e, err := setup(c)
			if err != nil {
				return err
			}
			defer e.log.Sync()

			if _, err := storage.FromConfig(c.Context, e.cfg); err != nil {
				return err
			}
			if _, err := notify.NewDispatcher(e.cfg.Notifications); err != nil {
				return err
			}

			fmt.Printf("config OK: databases=%d storage=%d notifications=%d\n",
				len(e.cfg.Databases), len(e.cfg.Storage), len(e.cfg.Notifications))
			return nil
		},
	}
}
