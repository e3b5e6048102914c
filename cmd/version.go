package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Populated by goreleaser during build
var version = "latest"

func NewVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version)
			return err
		},
	}
	return cmd
}
