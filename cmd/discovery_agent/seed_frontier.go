package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var seedFrontierCommand = &cobra.Command{
	Use:   "seed-frontier",
	Short: "Discover new crawl targets without crawling them",
	Long: `Runs only the discovery pass of each frontier source: parses the
board sitemap for org slugs and records the new ones as crawl targets. No
postings are fetched.`,
	RunE: seedFrontierCmd,
}

var seedDatabaseURL string

func init() {
	seedFrontierCommand.Flags().StringVar(&seedDatabaseURL, "db-url", "", "PostgreSQL connection URL (defaults to DATABASE_URL env var)")

	rootCmd.AddCommand(seedFrontierCommand)
}

func seedFrontierCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	settings, database, err := connect(ctx, seedDatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	for _, adapter := range buildAdapters(settings) {
		if !adapter.UsesFrontier() {
			continue
		}
		slugs, err := adapter.Discover(ctx)
		if err != nil {
			return fmt.Errorf("failed to discover %s targets: %w", adapter.SourceName(), err)
		}
		seeded, err := database.SeedFrontier(ctx, adapter.SourceName(), slugs)
		if err != nil {
			return err
		}
		total, err := database.CountFrontierOrgs(ctx, adapter.SourceName())
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d discovered, %d new, %d total\n", adapter.SourceName(), len(slugs), seeded, total)
	}
	return nil
}
