package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "0.1.0-dev"

// newVersionCmd creates the version command.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show notion-backup version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("notion-backup version " + version)
		},
	}
}
