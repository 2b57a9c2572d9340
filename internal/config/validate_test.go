package config

import (
	"strings"
	"testing"
)

func baseValidConfig() *Config {
	return &Config{
		Version: 1,
		Storage: []StorageConfig{
			{
				Name: "local-main",
				Type: "local",
				Local: &LocalConfig{
					Path: "/tmp/backups",
				},
			},
		},
		Databases: []DatabaseConfig{
			{
				Name: "euem_db",
				Connection: ConnectionConfig{
					Host:     "127.0.0.1",
					Port:     5432,
					Database: "euem_db",
					User:     "euem",
					Password: "secret",
				},
				Backup: BackupConfig{
					Storage:  "local-main",
					Schedule: "0 2 * * *",
				},
				Retention: RetentionConfig{MaxAgeDays: 30},
			},
		},
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	cfg := baseValidConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidateRejectsInvalidSchedule(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Databases[0].Backup.Schedule = "61 * * * *"

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "backup.schedule") {
		t.Fatalf("expected backup.schedule error, got: %v", err)
	}
}

func TestValidateAllowsEmptySchedule(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Databases[0].Backup.Schedule = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error for empty schedule: %v", err)
	}
}

func TestValidateRejectsUnknownStorageReference(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Databases[0].Backup.Storage = "missing"

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "not found in storage list") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsDuplicateDatabaseNames(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Databases = append(cfg.Databases, cfg.Databases[0])

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected duplicate name error, got nil")
	}
}

func TestValidateAllowsEmptyPasswordWithVaultRef(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Databases[0].Connection.Password = ""
	cfg.Databases[0].Connection.PasswordVault = &VaultRef{Path: "kv/data/euem", Field: "password"}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
}

func TestValidateRejectsNegativeRetention(t *testing.T) {
	cfg := baseValidConfig()
	cfg.Databases[0].Retention.MaxAgeDays = -1

	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected retention error, got nil")
	}
}
