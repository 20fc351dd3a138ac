// Package config provides configuration management for notion-backup.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/nikhilbadyal/notion-backup/internal/errors"
)

const (
	// ConfigFileName is the default config file name
	ConfigFileName = "config.yaml"
	// AppDir is the notion-backup configuration directory
	AppDir = ".notion-backup"
	// EnvPrefix is the prefix for environment variable overrides
	EnvPrefix = "NOTION_BACKUP"
)

// ExportFormat is the format the export service produces.
type ExportFormat string

const (
	FormatMarkdown ExportFormat = "markdown"
	FormatHTML     ExportFormat = "html"
)

// StorageBackend selects the storage implementation.
type StorageBackend string

const (
	StorageLocal  StorageBackend = "local"
	StorageRclone StorageBackend = "rclone"
)

// NotifyLevel controls which run outcomes produce notifications.
type NotifyLevel string

const (
	NotifySuccess NotifyLevel = "success"
	NotifyError   NotifyLevel = "error"
	NotifyAll     NotifyLevel = "all"
	NotifyNone    NotifyLevel = "none"
)

// RecoveryOff is the sentinel DSN that disables the recovery store.
const RecoveryOff = "off"

// ExportConfig controls the export job options.
type ExportConfig struct {
	Format          ExportFormat `yaml:"format"`
	FlattenFiletree bool         `yaml:"flatten_filetree"`
	IncludeComments bool         `yaml:"include_comments"`
	TimeZone        string       `yaml:"time_zone"`
}

// PollConfig controls the export status poll loop.
type PollConfig struct {
	// Interval between status checks
	Interval time.Duration `yaml:"interval"`
	// MaxWait is the hard ceiling on total poll time; exceeding it routes
	// the job to the recovery queue, not to outright failure.
	MaxWait time.Duration `yaml:"max_wait"`
}

// RetryConfig controls transient-error retry behavior.
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// LocalStorageConfig configures the local filesystem backend.
type LocalStorageConfig struct {
	Path string `yaml:"path"`
	// Pattern matches backup filenames when listing; doublestar syntax.
	Pattern string `yaml:"pattern"`
	// MaxBackups caps retained backups after a successful store; 0 = unlimited.
	MaxBackups int `yaml:"max_backups"`
}

// RcloneStorageConfig configures the rclone backend.
type RcloneStorageConfig struct {
	Remote     string   `yaml:"remote"`
	Path       string   `yaml:"path"`
	ConfigPath string   `yaml:"config_path,omitempty"`
	ExtraArgs  []string `yaml:"extra_args,omitempty"`
	KeepLocal  bool     `yaml:"keep_local"`
	MaxBackups int      `yaml:"max_backups"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Backend StorageBackend      `yaml:"backend"`
	Local   LocalStorageConfig  `yaml:"local"`
	Rclone  RcloneStorageConfig `yaml:"rclone"`
}

// NotificationConfig configures outcome notifications.
type NotificationConfig struct {
	Enabled bool        `yaml:"enabled"`
	Level   NotifyLevel `yaml:"level"`
	// URLs are shoutrrr service URLs (telegram://..., discord://..., etc.)
	URLs  []string `yaml:"urls,omitempty"`
	Title string   `yaml:"title"`
}

// RecoveryConfig configures the cross-run recovery store.
type RecoveryConfig struct {
	// Dialect is sqlite or postgres.
	Dialect string `yaml:"dialect"`
	// DSN is the store location. Empty uses the default SQLite database
	// under ~/.notion-backup; the value "off" disables recovery entirely,
	// degrading enqueue-for-retry transitions to fatal exits.
	DSN string `yaml:"dsn,omitempty"`
	// Lease is how long a run's claim on a recovery entry is honored
	// before another run may reclaim it.
	Lease time.Duration `yaml:"lease"`
}

// Enabled reports whether a recovery store is configured.
func (r RecoveryConfig) Enabled() bool {
	return r.DSN != RecoveryOff
}

// Config represents the notion-backup configuration.
// It is constructed once at startup and passed by value into each
// component's constructor; no component reads ambient global state.
type Config struct {
	// Workspace credentials
	SpaceID   string `yaml:"space_id"`
	TokenV2   string `yaml:"token_v2"`
	FileToken string `yaml:"file_token"`

	// APIBaseURL overrides the export service endpoint (tests only).
	APIBaseURL string `yaml:"api_base_url,omitempty"`

	Export ExportConfig `yaml:"export"`
	Poll   PollConfig   `yaml:"poll"`
	Retry  RetryConfig  `yaml:"retry"`

	// DownloadTimeout bounds a single artifact download.
	DownloadTimeout time.Duration `yaml:"download_timeout"`

	Storage       StorageConfig      `yaml:"storage"`
	Notifications NotificationConfig `yaml:"notifications"`
	Recovery      RecoveryConfig     `yaml:"recovery"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Export: ExportConfig{
			Format:          FormatMarkdown,
			FlattenFiletree: false,
			IncludeComments: true,
			TimeZone:        "UTC",
		},
		Poll: PollConfig{
			Interval: 10 * time.Second,
			MaxWait:  20 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   5 * time.Second,
			MaxDelay:    60 * time.Second,
		},
		DownloadTimeout: 5 * time.Minute,
		Storage: StorageConfig{
			Backend: StorageLocal,
			Local: LocalStorageConfig{
				Path:    "./backups",
				Pattern: "notion-export-*.zip",
			},
			Rclone: RcloneStorageConfig{
				Path:      "notion-backups",
				KeepLocal: true,
			},
		},
		Notifications: NotificationConfig{
			Enabled: false,
			Level:   NotifyAll,
			Title:   "Notion Backup",
		},
		Recovery: RecoveryConfig{
			Dialect: "sqlite",
			Lease:   10 * time.Minute,
		},
	}
}

// Validate checks that required settings are present and enum values are
// known. It runs before any state-machine step; failures are fatal.
func (c *Config) Validate() error {
	if c.SpaceID == "" {
		return errors.ErrConfigMissing("space_id")
	}
	if c.TokenV2 == "" {
		return errors.ErrConfigMissing("token_v2")
	}
	if c.FileToken == "" {
		return errors.ErrConfigMissing("file_token")
	}

	switch c.Export.Format {
	case FormatMarkdown, FormatHTML:
	default:
		return errors.ErrConfigInvalid("export.format", "must be markdown or html")
	}

	switch c.Storage.Backend {
	case StorageLocal:
	case StorageRclone:
		if c.Storage.Rclone.Remote == "" {
			return errors.ErrConfigMissing("storage.rclone.remote")
		}
	default:
		return errors.ErrConfigInvalid("storage.backend", "must be local or rclone")
	}

	if c.Notifications.Enabled {
		switch c.Notifications.Level {
		case NotifySuccess, NotifyError, NotifyAll, NotifyNone:
		default:
			return errors.ErrConfigInvalid("notifications.level", "must be success, error, all or none")
		}
		if c.Notifications.Level != NotifyNone && len(c.Notifications.URLs) == 0 {
			return errors.ErrConfigMissing("notifications.urls")
		}
	}

	if c.Recovery.Enabled() {
		switch c.Recovery.Dialect {
		case "sqlite", "postgres":
		default:
			return errors.ErrConfigInvalid("recovery.dialect", "must be sqlite or postgres")
		}
		if c.Recovery.Dialect == "postgres" && c.Recovery.DSN == "" {
			return errors.ErrConfigMissing("recovery.dsn")
		}
	}

	if c.Poll.Interval <= 0 {
		return errors.ErrConfigInvalid("poll.interval", "must be positive")
	}
	if c.Poll.MaxWait < c.Poll.Interval {
		return errors.ErrConfigInvalid("poll.max_wait", "must be at least poll.interval")
	}
	if c.Retry.MaxAttempts < 1 {
		return errors.ErrConfigInvalid("retry.max_attempts", "must be at least 1")
	}
	if c.Retry.MaxDelay < c.Retry.BaseDelay {
		return errors.ErrConfigInvalid("retry.max_delay", "must be at least retry.base_delay")
	}

	return nil
}

// RecoveryDSN resolves the effective recovery store DSN, defaulting the
// SQLite database to ~/.notion-backup/recovery.db.
func (c *Config) RecoveryDSN() string {
	if c.Recovery.DSN != "" {
		return c.Recovery.DSN
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(AppDir, "recovery.db")
	}
	return filepath.Join(home, AppDir, "recovery.db")
}
