// Package main provides the entry point for the notion-backup CLI.
package main

import (
	"os"

	"github.com/nikhilbadyal/notion-backup/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
