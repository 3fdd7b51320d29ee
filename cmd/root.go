// Package cmd defines the niko command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "niko",
	Short: "Niko - AI chat assistant for Korean language learning",
	Long: `Niko is a chat assistant for language learners. It streams Gemini
responses, keeps conversation history in PostgreSQL, and saves
vocabulary and sentences straight into your Notion databases.

Running niko without arguments starts the API server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
