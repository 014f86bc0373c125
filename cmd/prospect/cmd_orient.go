package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/prospectsim/prospect/internal/coverage"
	"github.com/prospectsim/prospect/internal/scenario"
)

func newOrientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orient <scenario.yaml>",
		Short: "Search transect orientations for a scenario's region",
		Long: `Lay out the scenario's transects at every multiple of the increment in
[0, 180) degrees and report the angle that maximizes the metric.

Metrics:
  area    clipped sweep area inside the region (default)
  length  total transect length inside the region
  units   number of transects

Examples:
  prospect orient field.yaml
  prospect orient field.yaml --increment 1 --metric length`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			increment, _ := cmd.Flags().GetFloat64("increment")
			metric, _ := cmd.Flags().GetString("metric")

			cfg := loadSettings(cmd)
			sc, err := scenario.LoadWithDefaults(args[0], scenario.DefaultsFromConfig(cfg.Simulation))
			if err != nil {
				return err
			}
			res, err := sc.SearchOrientation(increment, coverage.Metric(metric))
			if err != nil {
				return fmt.Errorf("orientation search failed: %w", err)
			}
			newLogger(cmd, cfg).Debug("orientation searched", "scenario", sc.Name,
				"angle", res.Angle, "metric", res.Metric, "candidates", len(res.Candidates))

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			printOrientation(cmd.OutOrStdout(), res)
			return nil
		},
	}

	cmd.Flags().Float64("increment", 0, "Angle step in degrees (default: scenario or 5)")
	cmd.Flags().String("metric", "", "Metric to maximize: area, length, or units (default: scenario or area)")

	return cmd
}
