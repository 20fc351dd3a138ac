package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nikhilbadyal/notion-backup/internal/config"
	apperrors "github.com/nikhilbadyal/notion-backup/internal/errors"
)

// newCleanupCmd creates the cleanup command.
func newCleanupCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove old backups beyond the retention count",
		Long: `Remove old backups from the configured storage backend, keeping only
the newest ones.

Examples:
  notion-backup cleanup --keep 5     # Keep the 5 newest backups
  notion-backup cleanup              # Use max_backups from config`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()

			if keep < 0 {
				keep = configuredKeep(cfg)
			}
			if keep <= 0 {
				return apperrors.ErrConfigInvalid("max_backups",
					"no retention count: pass --keep or set storage max_backups")
			}

			sink, err := buildSink(cfg, logger)
			if err != nil {
				return err
			}

			if dryRun {
				backups, err := sink.List(cmd.Context())
				if err != nil {
					return err
				}
				if len(backups) <= keep {
					fmt.Printf("Nothing to remove: %d backup(s), keeping %d\n", len(backups), keep)
					return nil
				}
				fmt.Printf("Would remove %d backup(s):\n", len(backups)-keep)
				for _, b := range backups[keep:] {
					fmt.Printf("  %s\n", b.Name)
				}
				return nil
			}

			removed, err := sink.Cleanup(cmd.Context(), keep)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d old backup(s), kept %d newest\n", removed, keep)
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", -1, "number of backups to keep (default: storage max_backups)")
	return cmd
}

func configuredKeep(cfg *config.Config) int {
	if cfg.Storage.Backend == config.StorageRclone {
		return cfg.Storage.Rclone.MaxBackups
	}
	return cfg.Storage.Local.MaxBackups
}
