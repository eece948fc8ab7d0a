package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "nexus",
	Short: "Multi-role task pipeline",
	Long: `Nexus routes tasks through a pipeline of AI roles. Tasks are markdown
files in status directories; dropping a file into the inbox moves it
through every configured stage automatically.

Core capabilities:
- Watches the inbox and promotes new tasks into the backlog
- Advances each task through the role pipeline in order
- Routes each role to a provider chain with automatic fallback
- Respects per-provider rate limits with a sliding usage window
- Archives stage completions and posts webhook notifications`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(orchestrateCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(versionCmd)
}
