package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/fatih/color"

	"github.com/prospectsim/prospect/internal/coverage"
)

var (
	cyan   = color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
)

// frequencyColor grades a discovery frequency: rarely found features stand out.
func frequencyColor(f float64) func(a ...any) string {
	switch {
	case f < 0.25:
		return red
	case f < 0.75:
		return yellow
	default:
		return green
	}
}

func printRunResult(w io.Writer, r runResult) {
	fmt.Fprintf(w, "\n%s\n\n", cyan(fmt.Sprintf("=== Survey %s ===", r.Survey)))
	fmt.Fprintf(w, "  Batch:      %s\n", r.BatchID)
	fmt.Fprintf(w, "  Seed:       %d\n", r.Seed)
	fmt.Fprintf(w, "  Runs:       %d (%dms)\n", r.Summary.Runs, r.ElapsedMs)
	fmt.Fprintf(w, "  Features:   %d\n", r.Summary.Features)
	if r.Summary.Features > 0 {
		rate := r.Summary.MeanDiscovered / float64(r.Summary.Features)
		fmt.Fprintf(w, "  Discovered: %s per run (min %d, max %d)\n",
			frequencyColor(rate)(fmt.Sprintf("%.2f", r.Summary.MeanDiscovered)),
			r.Summary.MinDiscovered, r.Summary.MaxDiscovered)
	}
	fmt.Fprintf(w, "  Mean time:  %.2f per run\n", r.Summary.MeanTotalTime)

	if len(r.Surveyors) > 0 {
		fmt.Fprintf(w, "\n%s\n", yellow("Surveyors:"))
		for _, s := range r.Surveyors {
			fmt.Fprintf(w, "  %-16s %4d units  %10.2f total  %8.2f per run\n", s.Surveyor, s.Units, s.Time, s.MeanPerRun)
		}
	}

	if len(r.Features) > 0 {
		fmt.Fprintf(w, "\n%s\n", yellow("Least found:"))
		for _, f := range r.Features {
			c := frequencyColor(f.Frequency)
			fmt.Fprintf(w, "  %s %-20s %s\n", c(fmt.Sprintf("%5.1f%%", 100*f.Frequency)), f.Feature, gray(f.Layer))
		}
	}

	if len(r.Outputs) > 0 {
		fmt.Fprintf(w, "\n%s\n", yellow("Outputs:"))
		kinds := make([]string, 0, len(r.Outputs))
		for k := range r.Outputs {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			fmt.Fprintf(w, "  %-10s %s\n", k+":", gray(r.Outputs[k]))
		}
	}
	fmt.Fprintln(w)
}

func printOrientation(w io.Writer, res coverage.OrientationResult) {
	fmt.Fprintf(w, "\n%s\n\n", cyan("=== Transect orientation ==="))
	fmt.Fprintf(w, "  %8s  %12s  %6s\n", "angle", string(res.Metric), "units")
	for _, c := range res.Candidates {
		line := fmt.Sprintf("  %8.1f  %12.2f  %6d", c.Angle, c.Score, c.Units)
		if c.Angle == res.Angle {
			fmt.Fprintf(w, "%s\n", green(line+"  *"))
			continue
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "\nBest orientation: %s (%s %.2f)\n\n", green(fmt.Sprintf("%.1f°", res.Angle)), res.Metric, res.Score)
}
