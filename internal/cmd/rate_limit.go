package cmd

import "github.com/spf13/cobra"

var rateLimitCmd = &cobra.Command{
	Use:   "rate-limit",
	Short: "Inspect rate limit rules",
}

func init() {
	rateLimitCmd.AddCommand(rateLimitListCmd)
	rootCmd.AddCommand(rateLimitCmd)
}
