package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"langworker/pkg/contracts"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), contracts.GetFullVersionString())
		},
	}
}
