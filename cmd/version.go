package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the sngrep-agent version",
	RunE: func(cmd *cobra.Command, args []string) error {
		if rootCmd.Version == "" {
			exitWithError("version not set", nil)
		}
		fmt.Fprintln(cmd.OutOrStdout(), rootCmd.Version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
