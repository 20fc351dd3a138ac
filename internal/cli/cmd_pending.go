package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nikhilbadyal/notion-backup/internal/util"
)

// newPendingCmd creates the pending command.
func newPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Show exports awaiting recovery",
		Long: `Show recovery-queue entries: exports whose outcome could not be
confirmed in a previous run. Each entry is retried on the next backup
pass and discarded after three failed attempts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.Recovery.Enabled() {
				fmt.Println("Recovery store is disabled")
				return nil
			}

			store, err := openQueue(cfg, newLogger())
			if err != nil {
				return err
			}
			if store == nil {
				fmt.Println("Recovery store is disabled")
				return nil
			}
			defer func() { _ = store.Close() }()

			entries, err := store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No exports awaiting recovery")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB\tRETRIES\tENQUEUED\tLAST ERROR")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%d/3\t%s\t%s\n",
					e.JobID,
					e.RetryCount,
					e.EnqueuedAt.Format("2006-01-02 15:04"),
					util.TruncateString(e.LastError, 60))
			}
			return w.Flush()
		},
	}
}
