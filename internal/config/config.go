package config

import (
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

type Config struct {
	Version       int                  `yaml:"version"`
	Logging       LoggingConfig        `yaml:"logging"`
	Vault         VaultConfig          `yaml:"vault"`
	Databases     []DatabaseConfig     `yaml:"databases"`
	Storage       []StorageConfig      `yaml:"storage"`
	Notifications []NotificationConfig `yaml:"notifications"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// VaultConfig points at a HashiCorp Vault server used to resolve database
// passwords referenced via connection.password_vault. Address falls back to
// VAULT_ADDR when empty.
type VaultConfig struct {
	Address string `yaml:"address"`
}

type DatabaseConfig struct {
	Name       string           `yaml:"name"`
	Connection ConnectionConfig `yaml:"connection"`
	Backup     BackupConfig     `yaml:"backup"`
	Retention  RetentionConfig  `yaml:"retention"`
}

type ConnectionConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`

	// PasswordVault, when set, overrides Password with a value read from
	// Vault at startup.
	PasswordVault *VaultRef `yaml:"password_vault"`
}

type VaultRef struct {
	Path  string `yaml:"path"`
	Field string `yaml:"field"`
}

type BackupConfig struct {
	Schedule string `yaml:"schedule"`
	Storage  string `yaml:"storage"`
}

// RetentionConfig is an age window: artifacts older than MaxAgeDays are
// deleted by the sweep that follows a successful backup. Zero disables
// the sweep.
type RetentionConfig struct {
	MaxAgeDays int `yaml:"max_age_days"`
}

type StorageConfig struct {
	Name  string       `yaml:"name"`
	Type  string       `yaml:"type"`
	Local *LocalConfig `yaml:"local"`
	S3    *S3Config    `yaml:"s3"`
}

type LocalConfig struct {
	Path string `yaml:"path"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Prefix    string `yaml:"prefix"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

type NotificationConfig struct {
	Type   string              `yaml:"type"`
	On     []string            `yaml:"on"`
	Config NotificationDetails `yaml:"config"`
}

type NotificationDetails struct {
	SMTPHost string            `yaml:"smtp_host"`
	SMTPPort int               `yaml:"smtp_port"`
	From     string            `yaml:"from"`
	To       []string          `yaml:"to"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	URL      string            `yaml:"url"`
	Headers  map[string]string `yaml:"headers"`
}

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	// Struct tags are yaml so the snake_case keys bind as written in the file.
	err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	expandEnv(&cfg)

	return &cfg, nil
}

// expandEnv substitutes ${VAR} references so credentials can live in the
// environment instead of the config file.
func expandEnv(cfg *Config) {
	cfg.Vault.Address = os.ExpandEnv(cfg.Vault.Address)
	cfg.Logging.File = os.ExpandEnv(cfg.Logging.File)

	for i := range cfg.Databases {
		db := &cfg.Databases[i]
		db.Name = os.ExpandEnv(db.Name)
		db.Connection.Host = os.ExpandEnv(db.Connection.Host)
		db.Connection.Database = os.ExpandEnv(db.Connection.Database)
		db.Connection.User = os.ExpandEnv(db.Connection.User)
		db.Connection.Password = os.ExpandEnv(db.Connection.Password)
		db.Backup.Schedule = os.ExpandEnv(db.Backup.Schedule)
		db.Backup.Storage = os.ExpandEnv(db.Backup.Storage)
		if db.Connection.PasswordVault != nil {
			db.Connection.PasswordVault.Path = os.ExpandEnv(db.Connection.PasswordVault.Path)
			db.Connection.PasswordVault.Field = os.ExpandEnv(db.Connection.PasswordVault.Field)
		}
	}

	for i := range cfg.Storage {
		st := &cfg.Storage[i]
		st.Name = os.ExpandEnv(st.Name)
		st.Type = os.ExpandEnv(st.Type)
		if st.Local != nil {
			st.Local.Path = os.ExpandEnv(st.Local.Path)
		}
		if st.S3 != nil {
			st.S3.Bucket = os.ExpandEnv(st.S3.Bucket)
			st.S3.Region = os.ExpandEnv(st.S3.Region)
			st.S3.Prefix = os.ExpandEnv(st.S3.Prefix)
			st.S3.AccessKey = os.ExpandEnv(st.S3.AccessKey)
			st.S3.SecretKey = os.ExpandEnv(st.S3.SecretKey)
		}
	}

	for i := range cfg.Notifications {
		nt := &cfg.Notifications[i]
		nt.Type = os.ExpandEnv(nt.Type)
		nt.Config.SMTPHost = os.ExpandEnv(nt.Config.SMTPHost)
		nt.Config.From = os.ExpandEnv(nt.Config.From)
		for j := range nt.Config.To {
			nt.Config.To[j] = os.ExpandEnv(nt.Config.To[j])
		}
		nt.Config.Username = os.ExpandEnv(nt.Config.Username)
		nt.Config.Password = os.ExpandEnv(nt.Config.Password)
		nt.Config.URL = os.ExpandEnv(nt.Config.URL)
		for k, val := range nt.Config.Headers {
			nt.Config.Headers[k] = os.ExpandEnv(val)
		}
	}
}
