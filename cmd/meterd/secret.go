package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/artpar/meterd/adapters/auth"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a random JWT signing secret",
	Long: `Generates a random secret suitable for auth.jwt_secret.

Write the output into the config file or export it as
METERD_AUTH_JWT_SECRET before starting the server.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(auth.GenerateSecret())
	},
}

func init() {
	rootCmd.AddCommand(secretCmd)
}
