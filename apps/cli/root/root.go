package root

import (
	"github.com/spf13/cobra"
)

// rootCmd is the base command for the QueueX admin CLI. Subcommands (company, auth) are attached here.
var rootCmd = &cobra.Command{
	Use:           "queuexctl",
	Short:         "QueueX admin CLI",
	Long:          "Administrative utilities for QueueX (company database provisioning, super-admin tokens).",
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

// Root returns the mutable root command for wiring from subpackages.
func Root() *cobra.Command {
	return rootCmd
}
