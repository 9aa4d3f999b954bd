package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-discovery/internal/trust"
	"github.com/jonathan/job-discovery/internal/types"
)

var trustCommand = &cobra.Command{
	Use:   "trust",
	Short: "Inspect and override domain trust verdicts",
}

var trustShowCommand = &cobra.Command{
	Use:   "show <domain>",
	Short: "Show the stored trust verdict for a domain",
	Args:  cobra.ExactArgs(1),
	RunE:  trustShowCmd,
}

var trustOverrideCommand = &cobra.Command{
	Use:   "override <domain> <verdict>",
	Short: "Record a human trust decision for a domain",
	Long: `Replaces the rule-based verdict for a domain with a human decision.
Verdict is one of: auto-safe, needs-human-approval, reject. Approving a
domain whitelists it for future runs.`,
	Args: cobra.ExactArgs(2),
	RunE: trustOverrideCmd,
}

var (
	trustDatabaseURL string
	trustApprovedBy  string
)

func init() {
	trustCommand.PersistentFlags().StringVar(&trustDatabaseURL, "db-url", "", "PostgreSQL connection URL (defaults to DATABASE_URL env var)")
	trustOverrideCommand.Flags().StringVar(&trustApprovedBy, "approved-by", "", "Reviewer recorded with the decision")

	trustCommand.AddCommand(trustShowCommand)
	trustCommand.AddCommand(trustOverrideCommand)
	rootCmd.AddCommand(trustCommand)
}

func trustShowCmd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	domain := strings.ToLower(args[0])

	_, database, err := connect(ctx, trustDatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	verdict, err := trust.NewEvaluator(database).Verdict(ctx, domain)
	if err != nil {
		return err
	}
	if verdict == nil {
		fmt.Printf("%s: never evaluated\n", domain)
		return nil
	}

	fmt.Printf("%s: %s\n", domain, *verdict)

	event, err := database.LatestTrustEvent(ctx, domain)
	if err != nil {
		return err
	}
	if event != nil {
		fmt.Printf("  score %d, evaluated %s\n", event.Score, event.CreatedAt.Format("2006-01-02 15:04"))
		for _, signal := range event.Signals {
			fmt.Printf("  signal %s = %s\n", signal.Name, signal.Value)
		}
	}
	return nil
}

func trustOverrideCmd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	domain := strings.ToLower(args[0])

	verdict, err := types.ParseTrustVerdict(args[1])
	if err != nil {
		return err
	}

	_, database, err := connect(ctx, trustDatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := trust.NewEvaluator(database).SetOverride(ctx, domain, verdict, trustApprovedBy); err != nil {
		return err
	}
	fmt.Printf("%s: %s recorded\n", domain, verdict)
	return nil
}
