package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/meterd/bootstrap"
	"github.com/artpar/meterd/config"
	"github.com/artpar/meterd/domain/usage"
)

var (
	regenCustomer string
	regenYear     int
	regenMonth    int
	regenAll      bool
)

var regenerateCmd = &cobra.Command{
	Use:   "regenerate",
	Short: "Rebuild monthly usage summaries for a billing period",
	Long: `Rebuild monthly usage summaries from stored usage events.

Regeneration is idempotent: existing summaries for the period are
overwritten, never duplicated. Use it after a missed scheduled run or
after correcting customer plan assignments.

Examples:
  meterd regenerate --year 2026 --month 3 --all
  meterd regenerate --year 2026 --month 3 --customer cust-42`,
	RunE: runRegenerate,
}

func init() {
	rootCmd.AddCommand(regenerateCmd)

	regenerateCmd.Flags().StringVar(&regenCustomer, "customer", "", "customer ID to regenerate")
	regenerateCmd.Flags().IntVar(&regenYear, "year", 0, "billing period year")
	regenerateCmd.Flags().IntVar(&regenMonth, "month", 0, "billing period month (1-12)")
	regenerateCmd.Flags().BoolVar(&regenAll, "all", false, "regenerate for all active customers")
	regenerateCmd.MarkFlagRequired("year")
	regenerateCmd.MarkFlagRequired("month")
}

func runRegenerate(cmd *cobra.Command, args []string) error {
	if regenAll == (regenCustomer != "") {
		return fmt.Errorf("specify exactly one of --all or --customer")
	}

	period := usage.Period{Year: regenYear, Month: regenMonth}
	if !period.Valid() {
		return fmt.Errorf("invalid period %d-%02d", regenYear, regenMonth)
	}

	cfg, err := config.LoadWithFallback(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	// Offline run: no scrape endpoint to serve
	cfg.Metrics.Enabled = false

	app, err := bootstrap.New(cfg)
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}
	defer app.Shutdown()

	ctx := context.Background()

	if regenAll {
		if ok := app.Aggregator.GenerateForAllCustomers(ctx, period); !ok {
			return fmt.Errorf("regeneration completed with failures for %d-%02d", regenYear, regenMonth)
		}
		fmt.Printf("Summaries regenerated for all active customers, period %d-%02d\n", regenYear, regenMonth)
		return nil
	}

	if err := app.Aggregator.Regenerate(ctx, regenCustomer, period); err != nil {
		return fmt.Errorf("regenerate %s: %w", regenCustomer, err)
	}

	s, err := app.Aggregator.SummaryByPeriod(ctx, regenCustomer, period)
	if err != nil {
		return err
	}
	fmt.Printf("Summary regenerated for %s, period %d-%02d\n", regenCustomer, regenYear, regenMonth)
	fmt.Printf("  plan:        %s\n", s.PlanName)
	fmt.Printf("  total calls: %d\n", s.TotalAPICalls)
	fmt.Printf("  total cost:  %.2f\n", s.TotalCost)
	return nil
}
