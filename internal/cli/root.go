// Package cli implements the notion-backup command-line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nikhilbadyal/notion-backup/internal/config"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
	dryRun  bool
)

// rootCmd represents the base command. Called without a subcommand it
// runs one backup pass, so a bare crontab line does the right thing.
var rootCmd = &cobra.Command{
	Use:   "notion-backup",
	Short: "Back up a Notion workspace to local or remote storage",
	Long: `notion-backup exports a Notion workspace and stores the archive
locally or on any rclone remote.

Exports that cannot be confirmed in one run (the export service keeps
working after a timeout, or the process is killed mid-poll) are queued
in a durable recovery store and resolved on a later invocation from the
workspace's completion notifications.

Quick start:
  notion-backup                 Run one backup pass
  notion-backup list            List stored backups
  notion-backup pending         Show exports awaiting recovery
  notion-backup test            Test storage and notification connectivity`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBackup(cmd.Context())
	},
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initViper)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.notion-backup/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "simulate the export without touching the workspace")

	rootCmd.AddCommand(newBackupCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newPendingCmd())
	rootCmd.AddCommand(newTestCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initViper locates the config file so ConfigFileUsed can report it;
// the typed load happens in loadConfig.
func initViper() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/" + config.AppDir)
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// loadConfig builds the effective configuration for a command.
func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		path = viper.ConfigFileUsed()
	}
	return config.Load(path)
}

// newLogger builds the run logger honoring --verbose/--quiet.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	if quiet {
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
