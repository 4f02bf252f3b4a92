package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NicolasHaas/quicchat/pkg/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the client version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.Current().Banner("quicchat"))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
