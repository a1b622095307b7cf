package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "meterd",
	Short: "API metering core with per-identity rate limiting and monthly usage billing",
	Long: `meterd meters multi-tenant API traffic.

It applies per-identity sliding-window rate limits, records usage
events asynchronously, and folds them into priced monthly summaries.

Quick start:
  meterd serve                # Start the metering server
  meterd validate             # Validate configuration

Maintenance:
  meterd regenerate           # Rebuild monthly summaries for a period`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "meterd.yaml", "config file path")
}
