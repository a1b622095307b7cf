package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/artpar/meterd/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
			os.Exit(1)
		}

		fmt.Println("Configuration valid")
		fmt.Printf("  Listen:   %s:%d\n", cfg.Server.Host, cfg.Server.Port)
		fmt.Printf("  Database: %s\n", cfg.Database.DSN)
		fmt.Printf("  Plans:    %d\n", len(cfg.Plans))
		for _, p := range cfg.Plans {
			fmt.Printf("    - %s: %d req/s, %.4f per call\n", p.Name, p.RequestsPerSecond, p.PricePerCall)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
