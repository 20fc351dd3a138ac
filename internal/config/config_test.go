package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbadyal/notion-backup/internal/errors"
)

func validConfig() *Config {
	cfg := Default()
	cfg.SpaceID = "space-1"
	cfg.TokenV2 = "tok"
	cfg.FileToken = "ftok"
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, FormatMarkdown, cfg.Export.Format)
	assert.True(t, cfg.Export.IncludeComments)
	assert.Equal(t, 10*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 20*time.Minute, cfg.Poll.MaxWait)
	assert.Equal(t, StorageLocal, cfg.Storage.Backend)
	assert.Equal(t, NotifyAll, cfg.Notifications.Level)
	assert.True(t, cfg.Recovery.Enabled(), "recovery should be on by default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*Config)
		wantCode errors.Code
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing space id", func(c *Config) { c.SpaceID = "" }, errors.CodeConfigMissing},
		{"missing token", func(c *Config) { c.TokenV2 = "" }, errors.CodeConfigMissing},
		{"missing file token", func(c *Config) { c.FileToken = "" }, errors.CodeConfigMissing},
		{"bad format", func(c *Config) { c.Export.Format = "pdf" }, errors.CodeConfigInvalid},
		{"html format ok", func(c *Config) { c.Export.Format = FormatHTML }, ""},
		{"bad storage backend", func(c *Config) { c.Storage.Backend = "s3" }, errors.CodeConfigInvalid},
		{"rclone without remote", func(c *Config) { c.Storage.Backend = StorageRclone }, errors.CodeConfigMissing},
		{"rclone with remote ok", func(c *Config) {
			c.Storage.Backend = StorageRclone
			c.Storage.Rclone.Remote = "gdrive"
		}, ""},
		{"notifications without urls", func(c *Config) { c.Notifications.Enabled = true }, errors.CodeConfigMissing},
		{"notifications level none needs no urls", func(c *Config) {
			c.Notifications.Enabled = true
			c.Notifications.Level = NotifyNone
		}, ""},
		{"bad notify level", func(c *Config) {
			c.Notifications.Enabled = true
			c.Notifications.URLs = []string{"telegram://t/c"}
			c.Notifications.Level = "loud"
		}, errors.CodeConfigInvalid},
		{"bad recovery dialect", func(c *Config) { c.Recovery.Dialect = "redis" }, errors.CodeConfigInvalid},
		{"recovery off skips dialect check", func(c *Config) {
			c.Recovery.Dialect = "redis"
			c.Recovery.DSN = RecoveryOff
		}, ""},
		{"postgres needs dsn", func(c *Config) { c.Recovery.Dialect = "postgres" }, errors.CodeConfigMissing},
		{"zero poll interval", func(c *Config) { c.Poll.Interval = 0 }, errors.CodeConfigInvalid},
		{"max wait below interval", func(c *Config) { c.Poll.MaxWait = time.Second }, errors.CodeConfigInvalid},
		{"zero retry attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, errors.CodeConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantCode == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.CodeOf(err))
		})
	}
}

func TestRecoveryConfig_Enabled(t *testing.T) {
	r := RecoveryConfig{}
	assert.True(t, r.Enabled())
	r.DSN = RecoveryOff
	assert.False(t, r.Enabled())
	r.DSN = "/tmp/recovery.db"
	assert.True(t, r.Enabled())
}
