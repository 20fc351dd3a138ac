package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvVars overrides cfg fields from NOTION_BACKUP_* environment
// variables. Unknown or malformed values are ignored; the credentials and
// the recovery DSN are the ones that matter for scheduled deployments.
func ApplyEnvVars(cfg *Config) {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + "_" + key); ok {
			*dst = v
		}
	}
	setBool := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(EnvPrefix + "_" + key); ok {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + "_" + key); ok {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(EnvPrefix + "_" + key); ok {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setString("SPACE_ID", &cfg.SpaceID)
	setString("TOKEN_V2", &cfg.TokenV2)
	setString("FILE_TOKEN", &cfg.FileToken)
	setString("API_BASE_URL", &cfg.APIBaseURL)

	if v, ok := os.LookupEnv(EnvPrefix + "_EXPORT_FORMAT"); ok {
		cfg.Export.Format = ExportFormat(v)
	}
	setBool("EXPORT_FLATTEN_FILETREE", &cfg.Export.FlattenFiletree)
	setBool("EXPORT_INCLUDE_COMMENTS", &cfg.Export.IncludeComments)
	setString("EXPORT_TIME_ZONE", &cfg.Export.TimeZone)

	setDuration("POLL_INTERVAL", &cfg.Poll.Interval)
	setDuration("POLL_MAX_WAIT", &cfg.Poll.MaxWait)

	setInt("RETRY_MAX_ATTEMPTS", &cfg.Retry.MaxAttempts)
	setDuration("RETRY_BASE_DELAY", &cfg.Retry.BaseDelay)
	setDuration("RETRY_MAX_DELAY", &cfg.Retry.MaxDelay)
	setDuration("DOWNLOAD_TIMEOUT", &cfg.DownloadTimeout)

	if v, ok := os.LookupEnv(EnvPrefix + "_STORAGE_BACKEND"); ok {
		cfg.Storage.Backend = StorageBackend(v)
	}
	setString("STORAGE_LOCAL_PATH", &cfg.Storage.Local.Path)
	setString("STORAGE_LOCAL_PATTERN", &cfg.Storage.Local.Pattern)
	setInt("STORAGE_LOCAL_MAX_BACKUPS", &cfg.Storage.Local.MaxBackups)
	setString("STORAGE_RCLONE_REMOTE", &cfg.Storage.Rclone.Remote)
	setString("STORAGE_RCLONE_PATH", &cfg.Storage.Rclone.Path)
	setString("STORAGE_RCLONE_CONFIG_PATH", &cfg.Storage.Rclone.ConfigPath)
	setBool("STORAGE_RCLONE_KEEP_LOCAL", &cfg.Storage.Rclone.KeepLocal)
	setInt("STORAGE_RCLONE_MAX_BACKUPS", &cfg.Storage.Rclone.MaxBackups)

	setBool("NOTIFICATIONS_ENABLED", &cfg.Notifications.Enabled)
	if v, ok := os.LookupEnv(EnvPrefix + "_NOTIFICATIONS_LEVEL"); ok {
		cfg.Notifications.Level = NotifyLevel(v)
	}
	if v, ok := os.LookupEnv(EnvPrefix + "_NOTIFICATIONS_URLS"); ok {
		cfg.Notifications.URLs = splitURLList(v)
	}
	setString("NOTIFICATIONS_TITLE", &cfg.Notifications.Title)

	setString("RECOVERY_DIALECT", &cfg.Recovery.Dialect)
	setString("RECOVERY_DSN", &cfg.Recovery.DSN)
	setDuration("RECOVERY_LEASE", &cfg.Recovery.Lease)
}

// splitURLList parses a comma-separated URL list from an environment
// variable, trimming whitespace and surrounding quotes.
func splitURLList(v string) []string {
	var urls []string
	for _, u := range strings.Split(v, ",") {
		u = strings.Trim(strings.TrimSpace(u), `"'`)
		if u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}
