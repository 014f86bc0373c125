package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/prospectsim/prospect/internal/config"
	"github.com/prospectsim/prospect/internal/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "prospect",
		Short: "Monte-Carlo simulation of archaeological field survey",
		Long: `prospect simulates pedestrian field surveys of archaeological sites.

A scenario file describes the surveyed region, the buried feature layers,
the coverage plan and the survey team. Each run places surveyors on units
and rolls for every feature a unit reaches; repeated runs estimate how
often each feature would be found.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON (for agent consumption)")
	rootCmd.PersistentFlags().String("root", ".", "Project root directory; output files must live under it or ~/.prospect")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug, or trace (default: from config)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newRunCmd(),
		newOrientCmd(),
		newGenerateCmd(),
		newConfigCmd(),
		newMCPServerCmd(),
	)

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()
			if jsonOut {
				json.NewEncoder(out).Encode(map[string]string{
					"version": version,
					"commit":  commit,
					"date":    date,
				})
			} else {
				fmt.Fprintf(out, "prospect version %s (commit: %s, built: %s)\n", version, commit, date)
			}
		},
	}
}

// loadSettings loads the user configuration, falling back to defaults when
// the file is unreadable, and applies the --log-level flag.
func loadSettings(cmd *cobra.Command) *config.ProspectConfig {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; using defaults\n", err)
		cfg = config.Default()
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	return cfg
}

// newLogger returns the operational logger, writing to stderr so that
// --json output on stdout stays parseable.
func newLogger(cmd *cobra.Command, cfg *config.ProspectConfig) *slog.Logger {
	return logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
}

// signalContext returns a context cancelled on interrupt.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, shutdownSignals...)
}

// writeJSON encodes v indented to w.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
