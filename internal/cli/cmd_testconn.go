package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nikhilbadyal/notion-backup/internal/config"
	"github.com/nikhilbadyal/notion-backup/internal/notify"
)

// newTestCmd creates the test command. The file is not named after the
// command because *_test.go is reserved for Go test files.
func newTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test storage, notification, and recovery connectivity",
		Long: `Verify that each configured collaborator is reachable: the storage
backend accepts writes, every notification service delivers a probe
message, and the recovery store answers.

Exits nonzero when any check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()
			ctx := cmd.Context()

			failed := 0
			failed += testStorage(ctx, cfg, logger)
			failed += testNotifications(ctx, cfg, logger)
			failed += testRecovery(ctx, cfg, logger)

			if failed > 0 {
				return fmt.Errorf("%d connectivity check(s) failed", failed)
			}
			fmt.Println("All connectivity checks passed")
			return nil
		},
	}
}

func testStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	sink, err := buildSink(cfg, logger)
	if err == nil {
		err = sink.TestConnection(ctx)
	}
	reportCheck("storage ("+string(cfg.Storage.Backend)+")", err)
	if err != nil {
		return 1
	}
	return 0
}

func testNotifications(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	if !cfg.Notifications.Enabled {
		fmt.Println("  skip  notifications (disabled)")
		return 0
	}
	notifier, err := notify.NewSink(cfg.Notifications, logger)
	if err == nil {
		err = notifier.TestConnection(ctx)
	}
	reportCheck("notifications", err)
	if err != nil {
		return 1
	}
	return 0
}

func testRecovery(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	if !cfg.Recovery.Enabled() {
		fmt.Println("  skip  recovery store (disabled)")
		return 0
	}
	store, err := openQueue(cfg, logger)
	if err == nil && store != nil {
		defer func() { _ = store.Close() }()
		err = store.Ping(ctx)
	}
	reportCheck("recovery store", err)
	if err != nil {
		return 1
	}
	return 0
}

func reportCheck(name string, err error) {
	if err != nil {
		fmt.Printf("  FAIL  %s: %v\n", name, err)
		return
	}
	fmt.Printf("  ok    %s\n", name)
}
