package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/meterd/bootstrap"
	"github.com/artpar/meterd/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the metering server",
	Long: `Start the meterd server.

The server will:
  - Load configuration from meterd.yaml (or --config)
  - Or load configuration from METERD_* environment variables
  - Connect to the database
  - Rate-limit and meter incoming API requests
  - Generate monthly usage summaries on the 1st of each month

Environment variables (for Docker deployments):
  METERD_AUTH_JWT_SECRET    - HMAC secret for bearer tokens (required)
  METERD_DATABASE_DSN       - Database path (default: meterd.db)
  METERD_SERVER_PORT        - Server port (default: 8080)
  METERD_LOG_LEVEL          - Log level: debug, info, warn, error

Examples:
  meterd serve
  meterd serve --config /etc/meterd/config.yaml
  meterd serve --hot-reload=false

  # Docker (env vars only):
  METERD_AUTH_JWT_SECRET=secret meterd serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "enable hot reload of configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	// Create application
	var app *bootstrap.App
	var err error

	if hasConfigFile && hotReload {
		// Hot reload only works with config file
		app, err = bootstrap.NewWithHotReload(cfgFile)
	} else {
		// Load config (file with env overrides, or env-only)
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}

		if !hasConfigFile {
			fmt.Println("Running with environment variables (no config file)")
		}

		app, err = bootstrap.New(cfg)
	}

	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Run (blocks until shutdown)
	return app.Run()
}
