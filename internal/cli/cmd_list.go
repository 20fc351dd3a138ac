package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nikhilbadyal/notion-backup/internal/util"
)

// newListCmd creates the list command.
func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored backups",
		Long:  `List backups on the configured storage backend, newest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := newLogger()

			sink, err := buildSink(cfg, logger)
			if err != nil {
				return err
			}

			backups, err := sink.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(backups) == 0 {
				fmt.Printf("No backups found on %s storage\n", sink.Name())
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			if isatty.IsTerminal(os.Stdout.Fd()) {
				fmt.Fprintln(w, "NAME\tSIZE\tMODIFIED")
			}
			var total int64
			for _, b := range backups {
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					b.Name,
					util.FormatFileSize(b.SizeBytes),
					b.ModifiedAt.Format("2006-01-02 15:04"))
				total += b.SizeBytes
			}
			if err := w.Flush(); err != nil {
				return err
			}

			if !quiet && isatty.IsTerminal(os.Stdout.Fd()) {
				fmt.Printf("\n%d backup(s), %s total\n", len(backups), util.FormatFileSize(total))
			}
			return nil
		},
	}
}
