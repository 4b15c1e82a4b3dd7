// Package cli implements the diaguru command line.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is stamped at build time.
var Version = "dev"

// NewRootCommand assembles the command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "diaguru",
		Short:         "Personal task auto-scheduler",
		Long:          "diaguru captures tasks in natural language and places them on your calendar automatically.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCommand(),
		newCaptureCommand(),
		newScheduleCommand(),
		newUndoCommand(),
		newVersionCommand(),
	)
	return root
}
