package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long: `Show the configuration prospect runs with: defaults, overlaid by
~/.prospect/config.yaml, overlaid by PROSPECT_* environment variables.

The Postgres password is redacted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			cfg := loadSettings(cmd)

			if jsonOut {
				// Redact the DSN before JSON serialization to prevent leakage
				redacted := *cfg
				redacted.Store.PostgresDSN = cfg.Store.RedactedDSN()
				return writeJSON(cmd.OutOrStdout(), redacted)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Configuration (~/.prospect/config.yaml):")
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprint(cmd.OutOrStdout(), cfg.String())
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\n%s %v\n", red("invalid:"), err)
			}
			return nil
		},
	}
}
