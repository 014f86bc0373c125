// Package simulation provides an experiment harness for validating the
// statistical properties of survey runs.
//
// The harness exercises the real generators, coverage layouts, survey engine
// and SQLite run store with no mocks. Scenarios are Go builders describing a
// region, feature layers, a coverage plan and a crew; the runner executes one
// or more batches and persists each one, capturing the run log for
// property-based assertions.
//
// Each test gets an isolated SQLite database via t.TempDir() and a sandboxed
// HOME to prevent touching user data.
//
// Usage:
//
//	func TestFullCoverage(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:      "full-coverage",
//	        Layers:    []simulation.LayerSpec{{Name: "sherds", Count: 50}},
//	        Coverage:  simulation.CoverageSpec{Spacing: 4},
//	        Surveyors: []team.Surveyor{simulation.Surveyor("ann", 1)},
//	        Batches:   []int{100},
//	    })
//	    simulation.AssertFrequencyAtLeast(t, result, 0.95)
//	}
package simulation
