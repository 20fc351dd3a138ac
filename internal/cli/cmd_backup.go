package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nikhilbadyal/notion-backup/internal/backup"
	"github.com/nikhilbadyal/notion-backup/internal/util"
)

// newBackupCmd creates the explicit backup command; the root command
// runs the same pass when invoked bare.
func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Run one backup pass",
		Long: `Run one backup pass: drain the recovery queue, request a fresh
workspace export, poll it to completion, download and store the archive,
then send the outcome notification.

Exits nonzero when the export could not be completed; if a recovery
store is configured the job is queued and resolved on a later run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBackup(cmd.Context())
		},
	}
}

func runBackup(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !dryRun {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger := newLogger()

	client, err := buildClient(cfg, logger)
	if err != nil {
		return err
	}
	sink, err := buildSink(cfg, logger)
	if err != nil {
		return err
	}
	notifier, err := buildNotifier(cfg, logger)
	if err != nil {
		return err
	}

	store, err := openQueue(cfg, logger)
	if err != nil {
		// A configured-but-unreachable store is reported, not silently
		// degraded: the run would lose its safety net without notice.
		return err
	}
	var queue backup.RecoveryQueue
	if store != nil {
		defer func() { _ = store.Close() }()
		queue = store
	}

	orch := backup.New(cfg, client, sink, notifier, queue, logger)
	result, err := orch.Run(ctx)
	if err != nil {
		return err
	}

	if !quiet {
		if result.Recovered > 0 {
			fmt.Printf("Recovered %d deferred export(s)\n", result.Recovered)
		}
		fmt.Printf("Backup complete: %s (%s)\n", result.Location, util.FormatFileSize(result.SizeBytes))
	}
	return nil
}
