package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-discovery/internal/config"
	"github.com/jonathan/job-discovery/internal/db"
	"github.com/jonathan/job-discovery/internal/discovery"
	"github.com/jonathan/job-discovery/internal/fetch"
	"github.com/jonathan/job-discovery/internal/ratelimit"
	"github.com/jonathan/job-discovery/internal/trust"
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run one full discovery pass",
	Long: `Executes one discovery run across all enabled sources: crawls frontier
orgs on Greenhouse, reads the configured community feeds, normalizes and
deduplicates every posting, evaluates posting domains, and inserts the
survivors. Prints the run summary when done.`,
	RunE: runDiscoveryCmd,
}

var (
	runDatabaseURL string
	runMaxOrgs     int
	runWindowDays  int
)

func init() {
	runCommand.Flags().StringVar(&runDatabaseURL, "db-url", "", "PostgreSQL connection URL (defaults to DATABASE_URL env var)")
	runCommand.Flags().IntVar(&runMaxOrgs, "max-orgs", 0, "Maximum frontier orgs to crawl per source this run")
	runCommand.Flags().IntVar(&runWindowDays, "window-days", 0, "Dedup window in days")

	rootCmd.AddCommand(runCommand)
}

func runDiscoveryCmd(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()

	settings, database, err := connect(ctx, runDatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if runMaxOrgs > 0 {
		settings.MaxOrgsPerRun = runMaxOrgs
	}
	if runWindowDays > 0 {
		settings.DedupWindowDays = runWindowDays
	}

	adapters := buildAdapters(settings)
	if len(adapters) == 0 {
		return fmt.Errorf("no sources enabled")
	}

	summary, err := discovery.RunDiscovery(ctx, database, trust.NewEvaluator(database), adapters, discovery.Options{
		DedupWindow:   time.Duration(settings.DedupWindowDays) * 24 * time.Hour,
		MaxOrgsPerRun: settings.MaxOrgsPerRun,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Discovery run complete\n")
	fmt.Printf("  targets crawled:   %d\n", summary.TargetsCrawled)
	fmt.Printf("  postings seen:     %d\n", summary.PostingsSeen)
	fmt.Printf("  postings inserted: %d\n", summary.PostingsInserted)
	fmt.Printf("  domains scored:    %d\n", summary.DomainsScored)
	return nil
}

// connect loads settings (honoring a --db-url override), opens the pool and
// applies the schema.
func connect(ctx context.Context, dbURLOverride string) (*config.Settings, *db.DB, error) {
	settings, err := config.Load()
	if err != nil && dbURLOverride == "" {
		return nil, nil, err
	}
	if dbURLOverride != "" {
		// Load validates DATABASE_URL from the environment; retry with the
		// flag value in place when only that was missing
		if err := os.Setenv("DATABASE_URL", dbURLOverride); err != nil {
			return nil, nil, err
		}
		if settings, err = config.Load(); err != nil {
			return nil, nil, err
		}
	}

	database, err := db.Connect(ctx, settings.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := database.EnsureSchema(ctx); err != nil {
		database.Close()
		return nil, nil, err
	}
	return settings, database, nil
}

// buildAdapters constructs the enabled source adapters. All adapters share
// one per-host limiter so the per-host request rate holds across sources.
func buildAdapters(settings *config.Settings) []discovery.SourceAdapter {
	limiter := ratelimit.NewPerHost(settings.RequestsPerMinute)
	timeout := time.Duration(settings.RequestTimeoutSeconds) * time.Second

	var adapters []discovery.SourceAdapter

	if settings.EnableGreenhouse {
		boardClient := fetch.NewClient(fetch.Options{
			Timeout:        timeout,
			UserAgent:      settings.UserAgent,
			AllowedDomains: settings.AllowedDomains,
			CheckRobots:    true,
			Limiter:        limiter,
		})
		adapters = append(adapters, discovery.NewGreenhouseAdapter(boardClient, settings.DiscoveryBaseURL, settings.DiscoverySitemapURL))
	}

	feedClient := fetch.NewClient(fetch.Options{
		Timeout:   timeout,
		UserAgent: settings.UserAgent,
		Limiter:   limiter,
	})
	for _, feedCfg := range settings.FeedSources {
		if feedCfg.Enabled {
			adapters = append(adapters, discovery.NewFeedAdapter(feedClient, feedCfg))
		}
	}
	return adapters
}
