// Package main provides the entry point for the job discovery agent CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "discovery_agent",
	Short: "Job posting discovery agent",
	Long:  "Discovers job postings from ATS boards and community feeds, normalizes and deduplicates them, scores posting domains for trust, and persists the results to PostgreSQL.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
