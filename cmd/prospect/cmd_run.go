package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/prospectsim/prospect/internal/config"
	"github.com/prospectsim/prospect/internal/export"
	"github.com/prospectsim/prospect/internal/logging"
	"github.com/prospectsim/prospect/internal/metrics"
	"github.com/prospectsim/prospect/internal/pathutil"
	"github.com/prospectsim/prospect/internal/sanitize"
	"github.com/prospectsim/prospect/internal/scenario"
	"github.com/prospectsim/prospect/internal/store"
	"github.com/prospectsim/prospect/internal/survey"
)

// runResult is the --json output of the run command.
type runResult struct {
	Survey    string                    `json:"survey"`
	BatchID   string                    `json:"batch_id"`
	Seed      uint64                    `json:"seed"`
	Summary   survey.Summary            `json:"summary"`
	Surveyors []survey.SurveyorTime     `json:"surveyors"`
	Features  []survey.FeatureFrequency `json:"features"`
	Outputs   map[string]string         `json:"outputs,omitempty"`
	ElapsedMs int64                     `json:"elapsed_ms"`
}

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a batch of survey simulations",
		Long: `Run a scenario for a batch of Monte-Carlo runs and report how often
each feature was discovered.

The batch is stored in the SQLite run store (~/.prospect/runs.db unless
--sqlite or the config says otherwise) and optionally in Postgres.
Exports are written only when their flag is given.

Examples:
  prospect run field.yaml                         # Runs from the scenario
  prospect run field.yaml --runs 500 --seed 9     # Override runs and seed
  prospect run field.yaml --start-run-id 500      # Continue a previous batch
  prospect run field.yaml --archive out/field.prospect --s3-bucket surveys
  prospect run field.yaml --arrow out/ --geojson out/field.geojson`,
		Args: cobra.ExactArgs(1),
		RunE: runSurvey,
	}

	cmd.Flags().Int("runs", 0, "Number of runs (default: scenario n_runs)")
	cmd.Flags().Int("start-run-id", 0, "First run ID of the batch")
	cmd.Flags().Uint64("seed", 0, "Root random seed (default: scenario seed)")
	cmd.Flags().Int("workers", 0, "Parallel runs (default: scenario or config)")
	cmd.Flags().Float64("threshold", 0, "Discovery threshold (0.0-1.0)")
	cmd.Flags().String("sqlite", "", "SQLite run store path (default: config or ~/.prospect/runs.db)")
	cmd.Flags().String("postgres", "", "Postgres DSN to also store the batch in")
	cmd.Flags().Bool("no-store", false, "Do not persist the batch")
	cmd.Flags().String("arrow", "", "Directory to write records.arrow and unit_times.arrow to")
	cmd.Flags().String("archive", "", "Path to write a compressed run archive")
	cmd.Flags().String("geojson", "", "Path to write region, units and features as GeoJSON")
	cmd.Flags().String("s3-bucket", "", "Upload the run archive to this bucket (default: config)")
	cmd.Flags().String("metrics-file", "", "Path to write Prometheus metrics in text format")
	cmd.Flags().String("decisions-dir", "", "Directory for decisions.jsonl (needs --log-level debug or trace)")
	cmd.Flags().Int("top", 10, "Number of least-found features to show")

	return cmd
}

// scenarioOverrides collects the run flags the user actually set.
func scenarioOverrides(cmd *cobra.Command) scenario.Overrides {
	var o scenario.Overrides
	flags := cmd.Flags()
	if flags.Changed("seed") {
		v, _ := flags.GetUint64("seed")
		o.Seed = &v
	}
	if flags.Changed("runs") {
		v, _ := flags.GetInt("runs")
		o.Runs = &v
	}
	if flags.Changed("start-run-id") {
		v, _ := flags.GetInt("start-run-id")
		o.StartRunID = &v
	}
	if flags.Changed("workers") {
		v, _ := flags.GetInt("workers")
		o.Workers = &v
	}
	if flags.Changed("threshold") {
		v, _ := flags.GetFloat64("threshold")
		o.DiscoveryThreshold = &v
	}
	return o
}

// resolveOutput resolves an output path against --root and checks that it
// lies under the root or ~/.prospect.
func resolveOutput(cmd *cobra.Command, path string) (string, error) {
	root, _ := cmd.Flags().GetString("root")
	allowed, err := pathutil.Default(root)
	if err != nil {
		return "", fmt.Errorf("failed to determine allowed output dirs: %w", err)
	}
	return allowed.Resolve(path)
}

// resolveOutputs resolves each non-empty path in place.
func resolveOutputs(cmd *cobra.Command, paths ...*string) error {
	for _, p := range paths {
		if *p == "" {
			continue
		}
		resolved, err := resolveOutput(cmd, *p)
		if err != nil {
			return err
		}
		*p = resolved
	}
	return nil
}

func runSurvey(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	arrowDir, _ := cmd.Flags().GetString("arrow")
	archivePath, _ := cmd.Flags().GetString("archive")
	geojsonPath, _ := cmd.Flags().GetString("geojson")
	metricsPath, _ := cmd.Flags().GetString("metrics-file")
	decisionsDir, _ := cmd.Flags().GetString("decisions-dir")
	top, _ := cmd.Flags().GetInt("top")

	if err := resolveOutputs(cmd, &arrowDir, &archivePath, &geojsonPath, &metricsPath, &decisionsDir); err != nil {
		return err
	}

	cfg := loadSettings(cmd)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if bucket, _ := cmd.Flags().GetString("s3-bucket"); bucket != "" {
		cfg.Export.S3.Bucket = bucket
	}
	logger := newLogger(cmd, cfg)

	sc, err := scenario.LoadWithDefaults(args[0], scenario.DefaultsFromConfig(cfg.Simulation))
	if err != nil {
		return err
	}
	if err := sc.Apply(scenarioOverrides(cmd)); err != nil {
		return err
	}

	var decisions *logging.DecisionLogger
	if decisionsDir != "" {
		decisions = logging.NewDecisionLogger(decisionsDir, cfg.Logging.Level)
		defer decisions.Close()
	}

	rec := metrics.NewRecorder()
	built, err := sc.Build(logger,
		survey.WithObserver(rec.Observer(sc.Name)),
		survey.WithDecisionLogger(decisions))
	if err != nil {
		return fmt.Errorf("building scenario: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	batch, err := built.Survey.Run(ctx, sc.Survey.NRuns, built.RunOptions()...)
	if err != nil {
		return fmt.Errorf("survey run failed: %w", err)
	}
	rec.BatchCompleted(batch)
	logger.Info("batch complete", "survey", batch.Survey, "batch", batch.ID,
		"runs", batch.Runs, "records", len(batch.Records), "elapsed", batch.Elapsed)

	if err := saveBatch(ctx, cmd, cfg, batch); err != nil {
		return err
	}

	outputs := map[string]string{}
	freqs := survey.Frequencies(batch.Records)

	if arrowDir != "" {
		if err := writeArrow(arrowDir, batch); err != nil {
			return err
		}
		outputs["arrow"] = arrowDir
	}
	if geojsonPath != "" {
		if err := writeGeoJSON(geojsonPath, export.SurveyGeoJSON(built.Survey, freqs)); err != nil {
			return err
		}
		outputs["geojson"] = geojsonPath
	}

	meta := map[string]string{"scenario": filepath.Base(args[0]), "version": version}
	if archivePath != "" {
		if _, err := export.WriteArchiveFile(archivePath, []survey.Batch{batch}, meta); err != nil {
			return fmt.Errorf("writing archive: %w", err)
		}
		outputs["archive"] = archivePath
	}
	if cfg.Export.S3.Enabled() {
		uri, err := uploadArchive(ctx, cfg.Export.S3, batch, meta)
		if err != nil {
			return err
		}
		outputs["s3"] = uri
	}

	if metricsPath != "" {
		if err := writeMetrics(metricsPath, rec); err != nil {
			return err
		}
		outputs["metrics"] = metricsPath
	}
	if decisions != nil {
		outputs["decisions"] = filepath.Join(decisionsDir, "decisions.jsonl")
	}

	result := runResult{
		Survey:    batch.Survey,
		BatchID:   batch.ID,
		Seed:      batch.Seed,
		Summary:   survey.Summarize(batch.Records, batch.UnitTimes),
		Surveyors: survey.TimePerSurveyor(batch.UnitTimes),
		Features:  leastFound(freqs, top),
		Outputs:   outputs,
		ElapsedMs: batch.Elapsed.Milliseconds(),
	}
	if jsonOut {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	printRunResult(cmd.OutOrStdout(), result)
	return nil
}

// saveBatch writes the batch to the SQLite store and, when configured, to Postgres.
func saveBatch(ctx context.Context, cmd *cobra.Command, cfg *config.ProspectConfig, batch survey.Batch) error {
	if noStore, _ := cmd.Flags().GetBool("no-store"); noStore {
		return nil
	}

	sqlitePath, _ := cmd.Flags().GetString("sqlite")
	if sqlitePath == "" {
		sqlitePath = cfg.Store.SQLitePath
	}
	if sqlitePath == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			return err
		}
		sqlitePath = p
	}

	stores := make([]store.RunStore, 0, 2)
	defer func() {
		for _, s := range stores {
			s.Close()
		}
	}()

	sqliteStore, err := store.NewSQLiteRunStore(sqlitePath)
	if err != nil {
		return fmt.Errorf("failed to open run store: %w", err)
	}
	stores = append(stores, sqliteStore)

	dsn, _ := cmd.Flags().GetString("postgres")
	if dsn == "" {
		dsn = cfg.Store.PostgresDSN
	}
	if dsn != "" {
		pg, err := store.NewPostgresRunStore(ctx, dsn)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		stores = append(stores, pg)
	}

	for _, s := range stores {
		if err := s.SaveBatch(ctx, batch); err != nil {
			return fmt.Errorf("saving batch: %w", err)
		}
	}
	return nil
}

func writeArrow(dir string, batch survey.Batch) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating arrow directory: %w", err)
	}
	files := []struct {
		name  string
		write func(f *os.File) error
	}{
		{"records.arrow", func(f *os.File) error { return export.WriteRecordsArrow(f, batch.Records) }},
		{"unit_times.arrow", func(f *os.File) error { return export.WriteUnitTimesArrow(f, batch.UnitTimes) }},
	}
	for _, file := range files {
		f, err := os.Create(filepath.Join(dir, file.name))
		if err != nil {
			return fmt.Errorf("creating %s: %w", file.name, err)
		}
		if err := file.write(f); err != nil {
			f.Close()
			return fmt.Errorf("writing %s: %w", file.name, err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("closing %s: %w", file.name, err)
		}
	}
	return nil
}

func writeMetrics(path string, rec *metrics.Recorder) error {
	var buf bytes.Buffer
	if err := rec.WriteText(&buf); err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("writing metrics: %w", err)
	}
	return nil
}

// uploadArchive writes the batch archive to memory and uploads it.
func uploadArchive(ctx context.Context, cfg config.S3Config, batch survey.Batch, meta map[string]string) (string, error) {
	uploader, err := export.NewS3Uploader(ctx, export.S3Config{
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		Prefix:    cfg.Prefix,
		PathStyle: cfg.PathStyle,
	})
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := export.WriteArchive(&buf, []survey.Batch{batch}, meta); err != nil {
		return "", fmt.Errorf("writing archive: %w", err)
	}
	name := fmt.Sprintf("%s-%s.prospect", sanitize.ObjectName(batch.Survey, "survey"), batch.ID)
	return uploader.Upload(ctx, name, "application/gzip", &buf)
}

// leastFound returns up to n features ordered by ascending frequency.
func leastFound(freqs []survey.FeatureFrequency, n int) []survey.FeatureFrequency {
	out := append([]survey.FeatureFrequency(nil), freqs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Frequency < out[j].Frequency })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
