// Package cli wires Encapure's cobra command tree, following
// kamusis-axon-cli's src/cmd package: one file per command, each
// registering itself onto rootCmd from init.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "encapure",
	Short:        "Encapure — low-latency context-aware semantic search over a tool catalog",
	SilenceUsage: true,
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
