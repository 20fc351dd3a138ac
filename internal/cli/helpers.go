// Package cli implements the notion-backup command-line interface.
// This file wires configuration into the components a command needs.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/nikhilbadyal/notion-backup/internal/config"
	"github.com/nikhilbadyal/notion-backup/internal/db"
	"github.com/nikhilbadyal/notion-backup/internal/db/driver"
	"github.com/nikhilbadyal/notion-backup/internal/export"
	"github.com/nikhilbadyal/notion-backup/internal/notify"
	"github.com/nikhilbadyal/notion-backup/internal/recovery"
	"github.com/nikhilbadyal/notion-backup/internal/retry"
	"github.com/nikhilbadyal/notion-backup/internal/storage"
)

// buildClient returns the export service, or a no-op stand-in when
// --dry-run is set.
func buildClient(cfg *config.Config, logger *slog.Logger) (export.Service, error) {
	if dryRun {
		logger.Info("dry run: remote workspace will not be touched")
		return export.NewDryRunClient(logger), nil
	}
	return export.NewClient(export.ClientConfig{
		BaseURL:         cfg.APIBaseURL,
		SpaceID:         cfg.SpaceID,
		TokenV2:         cfg.TokenV2,
		FileToken:       cfg.FileToken,
		DownloadTimeout: cfg.DownloadTimeout,
	}, logger)
}

func buildSink(cfg *config.Config, logger *slog.Logger) (storage.Sink, error) {
	return storage.New(cfg.Storage, retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
	}, logger)
}

func buildNotifier(cfg *config.Config, logger *slog.Logger) (notify.Sink, error) {
	if dryRun {
		return notify.NoopSink{}, nil
	}
	return notify.NewSink(cfg.Notifications, logger)
}

// openQueue opens the recovery store. Returns (nil, nil) when recovery
// is disabled; a dry run also skips it so simulated jobs never land in
// the real queue.
func openQueue(cfg *config.Config, logger *slog.Logger) (*recovery.Store, error) {
	if !cfg.Recovery.Enabled() || dryRun {
		return nil, nil
	}

	database, err := db.OpenWithDialect(cfg.RecoveryDSN(), driver.Dialect(cfg.Recovery.Dialect))
	if err != nil {
		return nil, fmt.Errorf("open recovery store: %w", err)
	}
	store, err := recovery.New(database, cfg.Recovery.Lease, logger)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init recovery store: %w", err)
	}
	return store, nil
}
