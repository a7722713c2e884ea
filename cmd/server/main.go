// Package main is the entry point for the session server
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "session-api",
	Short: "Live session synchronization server",
	Long:  `session-api keeps a tabletop session's combat encounter state consistent across the moderator's command stream and every connected viewer.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
