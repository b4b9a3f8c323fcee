package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tempo-sim/tempo-go/pkg/core/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Shows the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String("tempoctl"))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
