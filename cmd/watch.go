package cmd

import (
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Build and rebuild on change without serving",
	Long: `Run the sequential build and rebuild each category as its sources change.
No server is started and no reload notifications are sent.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, _ []string) error {
	return runResident(cmd, false)
}
