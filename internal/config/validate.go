package config

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Validate checks cross-references and required fields. Passwords are not
// required here: a database may carry a Vault reference instead, and the
// backup runner re-checks the resolved password before dumping.
func (c *Config) Validate() error {
	if c.Version == 0 {
		return fmt.Errorf("config: version must be > 0")
	}

	storageNames := map[string]struct{}{}
	for i, st := range c.Storage {
		if st.Name == "" {
			return fmt.Errorf("storage[%d]: name is required", i)
		}
		if _, ok := storageNames[st.Name]; ok {
			return fmt.Errorf("storage[%d]: duplicate name %q", i, st.Name)
		}
		storageNames[st.Name] = struct{}{}

		switch st.Type {
		case "local":
			if st.Local == nil || st.Local.Path == "" {
				return fmt.Errorf("storage %s: local.path is required", st.Name)
			}
		case "s3":
			if st.S3 == nil {
				return fmt.Errorf("storage %s: s3 config is required", st.Name)
			}
			if st.S3.Bucket == "" || st.S3.Region == "" {
				return fmt.Errorf("storage %s: s3.bucket and s3.region are required", st.Name)
			}
		case "":
			return fmt.Errorf("storage %s: type is required", st.Name)
		default:
			return fmt.Errorf("storage %s: unknown type %q", st.Name, st.Type)
		}
	}

	dbNames := map[string]struct{}{}
	for i, db := range c.Databases {
		if db.Name == "" {
			return fmt.Errorf("databases[%d]: name is required", i)
		}
		if _, ok := dbNames[db.Name]; ok {
			return fmt.Errorf("databases[%d]: duplicate name %q", i, db.Name)
		}
		dbNames[db.Name] = struct{}{}

		conn := db.Connection
		if conn.Host == "" || conn.Port == 0 || conn.Database == "" || conn.User == "" {
			return fmt.Errorf("databases[%d]: connection is incomplete (host/port/database/user required)", i)
		}
		if db.Backup.Storage == "" {
			return fmt.Errorf("databases[%d]: backup.storage is required (must match a storage.name)", i)
		}
		if _, ok := storageNames[db.Backup.Storage]; !ok {
			return fmt.Errorf("databases[%d]: backup.storage=%q not found in storage list", i, db.Backup.Storage)
		}
		if db.Retention.MaxAgeDays < 0 {
			return fmt.Errorf("databases[%d]: retention.max_age_days must be >= 0", i)
		}
		if s := db.Backup.Schedule; s != "" {
			if _, err := cron.ParseStandard(s); err != nil {
				return fmt.Errorf("databases[%d]: invalid backup.schedule %q: %w", i, s, err)
			}
		}
		if ref := conn.PasswordVault; ref != nil && ref.Path == "" {
			return fmt.Errorf("databases[%d]: password_vault.path is required when password_vault is set", i)
		}
	}

	return nil
}
