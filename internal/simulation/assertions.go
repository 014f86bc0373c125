package simulation

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/paulmach/orb"

	"github.com/prospectsim/prospect/internal/coverage"
	"github.com/prospectsim/prospect/internal/survey"
)

// AssertAtMostOncePerRun asserts that every feature has exactly one record
// per run and that discovered records name the discovering unit.
func AssertAtMostOncePerRun(t *testing.T, result SimulationResult) {
	t.Helper()
	type key struct{ run, feature int }
	seen := make(map[key]int)
	for _, r := range result.Log() {
		seen[key{r.RunID, r.FeatureID}]++
		if r.Discovered && r.UnitID < 0 {
			t.Errorf("AssertAtMostOncePerRun: run %d: feature %s discovered without a unit", r.RunID, r.Feature)
		}
	}
	for k, n := range seen {
		if n != 1 {
			t.Errorf("AssertAtMostOncePerRun: run %d: feature %d has %d records", k.run, k.feature, n)
		}
	}
}

// AssertFrequencyAtLeast asserts that every feature within reach of some
// unit is discovered in at least min of the runs.
func AssertFrequencyAtLeast(t *testing.T, result SimulationResult, min float64) {
	t.Helper()
	available := availableFeatures(result.Log())
	if len(available) == 0 {
		t.Fatal("AssertFrequencyAtLeast: no feature was ever within reach")
	}
	for _, ff := range survey.Frequencies(result.Log()) {
		if !available[ff.FeatureID] {
			continue
		}
		if ff.Frequency < min {
			t.Errorf("AssertFrequencyAtLeast: %s frequency %.4f < %.4f", ff.Feature, ff.Frequency, min)
		}
	}
}

// AssertNoDiscoveries asserts that no record in the log is a discovery.
func AssertNoDiscoveries(t *testing.T, result SimulationResult) {
	t.Helper()
	for _, r := range result.Log() {
		if r.Discovered {
			t.Errorf("AssertNoDiscoveries: run %d: feature %s discovered (p=%.4f)", r.RunID, r.Feature, r.Probability)
		}
	}
}

// AssertDeterministic asserts that two results hold identical run logs.
func AssertDeterministic(t *testing.T, a, b SimulationResult) {
	t.Helper()
	la, lb := a.Log(), b.Log()
	if len(la) != len(lb) {
		t.Fatalf("AssertDeterministic: log lengths differ: %d vs %d", len(la), len(lb))
	}
	for i := range la {
		if !reflect.DeepEqual(la[i], lb[i]) {
			t.Fatalf("AssertDeterministic: record %d differs:\n  %+v\n  %+v", i, la[i], lb[i])
		}
	}
}

// AssertFrequencyMonotone asserts that no feature is discovered less often
// in high than in low. Both results must share a feature layout.
func AssertFrequencyMonotone(t *testing.T, low, high SimulationResult) {
	t.Helper()
	fl, fh := survey.Frequencies(low.Log()), survey.Frequencies(high.Log())
	if len(fl) != len(fh) {
		t.Fatalf("AssertFrequencyMonotone: feature counts differ: %d vs %d", len(fl), len(fh))
	}
	for i := range fl {
		if fh[i].Frequency < fl[i].Frequency {
			t.Errorf("AssertFrequencyMonotone: %s frequency fell from %.4f to %.4f", fl[i].Feature, fl[i].Frequency, fh[i].Frequency)
		}
	}
}

// AssertWithinRegion asserts that every feature location and every unit's
// geometry lies inside the region.
func AssertWithinRegion(t *testing.T, result SimulationResult) {
	t.Helper()
	region := result.Region
	for _, f := range result.Assemblage.Features() {
		if !region.Contains(f.Location()) {
			t.Errorf("AssertWithinRegion: feature %s at %v lies outside the region", f.Name, f.Location())
		}
	}
	for _, u := range result.Plan.Units() {
		var pts []orb.Point
		switch u.Kind {
		case coverage.KindTransect:
			pts = append(pts, u.Line...)
			if len(u.Line) == 2 {
				pts = append(pts, orb.Point{(u.Line[0][0] + u.Line[1][0]) / 2, (u.Line[0][1] + u.Line[1][1]) / 2})
			}
		case coverage.KindRadial:
			pts = append(pts, u.Center)
		}
		for _, p := range pts {
			if !region.Contains(p) {
				t.Errorf("AssertWithinRegion: unit %s point %v lies outside the region", u.Name, p)
			}
		}
		if u.Area <= 0 || u.Area > region.Area()+1e-6 {
			t.Errorf("AssertWithinRegion: unit %s has in-region area %.4f", u.Name, u.Area)
		}
	}
}

// AssertStoreMatchesLog asserts that the persisted frequencies equal those
// computed from the in-memory log.
func AssertStoreMatchesLog(t *testing.T, result SimulationResult) {
	t.Helper()
	stored, err := result.Store.Frequencies(context.Background(), result.Survey.Name())
	if err != nil {
		t.Fatalf("AssertStoreMatchesLog: Frequencies: %v", err)
	}
	want := survey.Frequencies(result.Log())
	if len(stored) != len(want) {
		t.Fatalf("AssertStoreMatchesLog: %d stored features, want %d", len(stored), len(want))
	}
	for i := range want {
		if stored[i].Runs != want[i].Runs || stored[i].Discoveries != want[i].Discoveries {
			t.Errorf("AssertStoreMatchesLog: %s stored %d/%d, want %d/%d", want[i].Feature,
				stored[i].Discoveries, stored[i].Runs, want[i].Discoveries, want[i].Runs)
		}
		if math.Abs(stored[i].MeanProbability-want[i].MeanProbability) > 1e-9 {
			t.Errorf("AssertStoreMatchesLog: %s mean probability %.6f, want %.6f", want[i].Feature,
				stored[i].MeanProbability, want[i].MeanProbability)
		}
	}
}

// availableFeatures returns the IDs of features some unit could reach.
func availableFeatures(log []survey.Record) map[int]bool {
	out := make(map[int]bool)
	for _, r := range log {
		if r.Available {
			out[r.FeatureID] = true
		}
	}
	return out
}

// DiscoveryCounts returns the number of discoveries in each run, by run ID.
func DiscoveryCounts(result SimulationResult) map[int]int {
	out := make(map[int]int)
	for _, rc := range survey.DiscoveredPerRun(result.Log()) {
		out[rc.RunID] = rc.Discovered
	}
	return out
}
