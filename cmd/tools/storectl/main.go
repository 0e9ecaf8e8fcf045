// Command storectl is the operator CLI: schema migrations, signed test
// webhooks and manual order transitions.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "storectl",
		Short:         "Storefront operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newMigrateCmd(), newWebhookCmd(), newOrderCmd())
	return root
}

// dsn reads DB_DSN without requiring the rest of the web config.
func dsn() (string, error) {
	_ = config.LoadDotEnv()
	v := os.Getenv("DB_DSN")
	if v == "" {
		return "", fmt.Errorf("DB_DSN is not set")
	}
	return v, nil
}
