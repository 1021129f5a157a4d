package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keyward/keyward/internal"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display the keyward version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), internal.FullVersion())
			return nil
		},
	}
}
