// Package main is the entry point for the symdict CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/symdict/cmd/symdict/commands"
	"github.com/Sumatoshi-tech/symdict/pkg/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	root := commands.NewRootCommand()
	root.AddCommand(newVersionCommand())

	return root.Execute()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Overrides the root bootstrap hook so version works without config.
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "symdict %s (commit: %s)\n", version.Version, version.GitHash)
		},
	}
}
