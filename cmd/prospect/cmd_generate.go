package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"

	"github.com/prospectsim/prospect/internal/export"
	"github.com/prospectsim/prospect/internal/scenario"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <scenario.yaml>",
		Short: "Generate a scenario's features and coverage plan as GeoJSON",
		Long: `Build the region, feature layers and coverage plan of a scenario without
running the survey, and write them as one GeoJSON FeatureCollection.
Each entry carries an "element" property: region, unit, or feature.

Examples:
  prospect generate field.yaml --out field.geojson
  prospect generate field.yaml --seed 11 --out field-11.geojson`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			if err := resolveOutputs(cmd, &out); err != nil {
				return err
			}

			cfg := loadSettings(cmd)
			sc, err := scenario.LoadWithDefaults(args[0], scenario.DefaultsFromConfig(cfg.Simulation))
			if err != nil {
				return err
			}
			if err := sc.Apply(scenarioOverrides(cmd)); err != nil {
				return err
			}
			built, err := sc.Build(newLogger(cmd, cfg))
			if err != nil {
				return fmt.Errorf("building scenario: %w", err)
			}

			if err := writeGeoJSON(out, export.SurveyGeoJSON(built.Survey, nil)); err != nil {
				return err
			}

			result := map[string]any{
				"scenario": sc.Name,
				"path":     out,
				"features": built.Assemblage.Len(),
				"units":    built.Plan.Len(),
				"area":     built.Region.Area(),
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d features and %d units for %s\n",
				built.Assemblage.Len(), built.Plan.Len(), sc.Name)
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", gray(out))
			return nil
		},
	}

	cmd.Flags().String("out", "", "Path of the GeoJSON file to write")
	cmd.Flags().Uint64("seed", 0, "Root random seed (default: scenario seed)")

	return cmd
}

func writeGeoJSON(path string, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding geojson: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing geojson: %w", err)
	}
	return nil
}
