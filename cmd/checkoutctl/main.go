package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"storefront-checkout/checkout"
	"storefront-checkout/client"
	"storefront-checkout/guard"
	"storefront-checkout/logging"
)

var Version = "dev"

func main() {
	var (
		backendURL string
		timeout    time.Duration
	)

	rootCmd := &cobra.Command{
		Use:     "checkoutctl",
		Short:   "Operate the storefront checkout backend",
		Version: Version,
	}
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", envOr("CHECKOUT_BACKEND_URL", "http://localhost:8081"), "checkout backend base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "request timeout")

	newClient := func() *client.Client { return client.New(backendURL, timeout) }

	rootCmd.AddCommand(syncOrdersCmd(newClient))
	rootCmd.AddCommand(configCmd(newClient))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func syncOrdersCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "sync-orders",
		Short: "Copy provider orders missing from the order store",
		Long: `Ask the backend to reconcile orders with the payment provider.

Orders already stored are skipped, so running this twice in a row reports
zero the second time. A failed run can simply be repeated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := checkout.ReconcileOrders(cmd.Context(), newClient(), logging.GetLogger())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d order(s)\n", res.SyncedCount)
			return nil
		},
	}
}

func configCmd(newClient func() *client.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the public checkout configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := newClient().FetchConfig(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch config: %w", err)
			}
			data, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))

			env, err := guard.ParseEnvironment(cfg.Environment)
			if err != nil {
				return err
			}
			if !guard.ValidateCredentialEnvironment(cfg.ApplicationID, env) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: application id %q does not look like a %s credential\n", cfg.ApplicationID, env)
			}
			return nil
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
