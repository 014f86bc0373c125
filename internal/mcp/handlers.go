package mcp

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/prospectsim/prospect/internal/coverage"
	"github.com/prospectsim/prospect/internal/export"
	"github.com/prospectsim/prospect/internal/pathutil"
	"github.com/prospectsim/prospect/internal/ratelimit"
	"github.com/prospectsim/prospect/internal/sanitize"
	"github.com/prospectsim/prospect/internal/scenario"
	"github.com/prospectsim/prospect/internal/survey"
)

// defaultTop is the number of features survey_run reports when unset.
const defaultTop = 10

// registerTools registers all prospect MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolSurveyRun,
		Description: "Run a batch of Monte-Carlo survey runs for a scenario file and store the run log",
	}, s.handleSurveyRun)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolCoverageOrientation,
		Description: "Evaluate transect orientations for a scenario's region and report the best angle",
	}, s.handleCoverageOrientation)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        ratelimit.ToolSurveyHistory,
		Description: "List stored batches of a survey with per-feature discovery frequencies",
	}, s.handleSurveyHistory)
}

// resolvePath resolves path against the project root and checks that it
// lies under the root or ~/.prospect.
func (s *Server) resolvePath(path string) (string, error) {
	allowed, err := pathutil.Default(s.root)
	if err != nil {
		return "", fmt.Errorf("failed to determine allowed dirs: %w", err)
	}
	return allowed.Resolve(path)
}

// loadScenario validates the path and loads the scenario with configured defaults.
func (s *Server) loadScenario(path string) (*scenario.Scenario, error) {
	resolved, err := s.resolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("scenario path rejected: %w", err)
	}
	if err := pathutil.CheckExt(resolved, pathutil.ScenarioExts...); err != nil {
		return nil, fmt.Errorf("scenario path rejected: %w", err)
	}
	return scenario.LoadWithDefaults(resolved, scenario.DefaultsFromConfig(s.settings.Simulation))
}

// handleSurveyRun implements the survey_run tool.
func (s *Server) handleSurveyRun(ctx context.Context, req *sdk.CallToolRequest, args SurveyRunInput) (_ *sdk.CallToolResult, _ SurveyRunOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolSurveyRun, start, retErr, sanitizeToolParams(map[string]any{
			"scenario":     args.Scenario,
			"runs":         args.Runs,
			"seed":         args.Seed,
			"threshold":    args.Threshold,
			"archive_path": args.ArchivePath,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolSurveyRun); err != nil {
		return nil, SurveyRunOutput{}, err
	}

	sc, err := s.loadScenario(args.Scenario)
	if err != nil {
		return nil, SurveyRunOutput{}, err
	}
	if err := sc.Apply(scenario.Overrides{
		Seed:               args.Seed,
		Runs:               args.Runs,
		StartRunID:         args.StartRunID,
		DiscoveryThreshold: args.Threshold,
	}); err != nil {
		return nil, SurveyRunOutput{}, err
	}
	if maxRuns := s.settings.MCP.MaxRuns; sc.Survey.NRuns > maxRuns {
		return nil, SurveyRunOutput{}, fmt.Errorf("runs %d exceed the server limit of %d", sc.Survey.NRuns, maxRuns)
	}

	archivePath := ""
	if args.ArchivePath != "" {
		if archivePath, err = s.resolvePath(args.ArchivePath); err != nil {
			return nil, SurveyRunOutput{}, fmt.Errorf("archive path rejected: %w", err)
		}
	}

	built, err := sc.Build(s.logger, survey.WithObserver(s.metrics.Observer(sc.Name)))
	if err != nil {
		return nil, SurveyRunOutput{}, fmt.Errorf("building scenario: %w", err)
	}
	batch, err := built.Survey.Run(ctx, sc.Survey.NRuns, built.RunOptions()...)
	if err != nil {
		return nil, SurveyRunOutput{}, fmt.Errorf("survey run failed: %w", err)
	}
	s.metrics.BatchCompleted(batch)

	if err := s.store.SaveBatch(ctx, batch); err != nil {
		return nil, SurveyRunOutput{}, fmt.Errorf("saving batch: %w", err)
	}
	if archivePath != "" {
		meta := map[string]string{"scenario": filepath.Base(args.Scenario)}
		if _, err := export.WriteArchiveFile(archivePath, []survey.Batch{batch}, meta); err != nil {
			return nil, SurveyRunOutput{}, fmt.Errorf("writing archive: %w", err)
		}
	}

	top := args.Top
	if top <= 0 {
		top = defaultTop
	}
	summary := survey.Summarize(batch.Records, batch.UnitTimes)
	return nil, SurveyRunOutput{
		Survey:      sanitize.Text(batch.Survey),
		BatchID:     batch.ID,
		Seed:        sc.Seed,
		Summary:     summary,
		Units:       built.Plan.Len(),
		Features:    leastFound(survey.Frequencies(batch.Records), top),
		ArchivePath: archivePath,
		ElapsedMs:   batch.Elapsed.Milliseconds(),
		Message: fmt.Sprintf("%d runs over %d features: mean %.2f discovered (min %d, max %d)",
			batch.Runs, summary.Features, summary.MeanDiscovered, summary.MinDiscovered, summary.MaxDiscovered),
	}, nil
}

// leastFound returns up to n features ordered by ascending frequency.
func leastFound(freqs []survey.FeatureFrequency, n int) []survey.FeatureFrequency {
	sort.SliceStable(freqs, func(i, j int) bool { return freqs[i].Frequency < freqs[j].Frequency })
	if len(freqs) > n {
		freqs = freqs[:n]
	}
	return sanitizeFrequencies(freqs)
}

// sanitizeFrequencies cleans the scenario-supplied names in freqs in place.
func sanitizeFrequencies(freqs []survey.FeatureFrequency) []survey.FeatureFrequency {
	for i := range freqs {
		freqs[i].Feature = sanitize.Text(freqs[i].Feature)
		freqs[i].Layer = sanitize.Text(freqs[i].Layer)
	}
	return freqs
}

// handleCoverageOrientation implements the coverage_orientation tool.
func (s *Server) handleCoverageOrientation(ctx context.Context, req *sdk.CallToolRequest, args CoverageOrientationInput) (_ *sdk.CallToolResult, _ CoverageOrientationOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolCoverageOrientation, start, retErr, sanitizeToolParams(map[string]any{
			"scenario":  args.Scenario,
			"increment": args.Increment,
			"metric":    args.Metric,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolCoverageOrientation); err != nil {
		return nil, CoverageOrientationOutput{}, err
	}

	sc, err := s.loadScenario(args.Scenario)
	if err != nil {
		return nil, CoverageOrientationOutput{}, err
	}
	res, err := sc.SearchOrientation(args.Increment, coverage.Metric(args.Metric))
	if err != nil {
		return nil, CoverageOrientationOutput{}, err
	}

	return nil, CoverageOrientationOutput{
		Angle:      res.Angle,
		Score:      res.Score,
		Metric:     res.Metric,
		Candidates: res.Candidates,
		Message: fmt.Sprintf("Best orientation %.1f° (%s %.2f) over %d candidates",
			res.Angle, res.Metric, res.Score, len(res.Candidates)),
	}, nil
}

// handleSurveyHistory implements the survey_history tool.
func (s *Server) handleSurveyHistory(ctx context.Context, req *sdk.CallToolRequest, args SurveyHistoryInput) (_ *sdk.CallToolResult, _ SurveyHistoryOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool(ratelimit.ToolSurveyHistory, start, retErr, sanitizeToolParams(map[string]any{
			"survey": args.Survey,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, ratelimit.ToolSurveyHistory); err != nil {
		return nil, SurveyHistoryOutput{}, err
	}
	if args.Survey == "" {
		return nil, SurveyHistoryOutput{}, fmt.Errorf("survey name is required")
	}

	infos, err := s.store.Batches(ctx, args.Survey)
	if err != nil {
		return nil, SurveyHistoryOutput{}, fmt.Errorf("listing batches: %w", err)
	}
	freqs, err := s.store.Frequencies(ctx, args.Survey)
	if err != nil {
		return nil, SurveyHistoryOutput{}, fmt.Errorf("querying frequencies: %w", err)
	}
	if freqs == nil {
		freqs = []survey.FeatureFrequency{}
	}
	freqs = sanitizeFrequencies(freqs)

	out := SurveyHistoryOutput{
		Batches:     make([]BatchSummary, 0, len(infos)),
		Frequencies: freqs,
	}
	for _, b := range infos {
		out.Batches = append(out.Batches, batchSummary(b))
		out.Runs += b.Runs
	}
	out.Message = fmt.Sprintf("%d batches, %d runs stored for %s", len(out.Batches), out.Runs, sanitize.Text(args.Survey))
	return nil, out, nil
}
