package survey

import (
	"math"
	"sort"
)

// FeatureFrequency is a feature's discovery rate across runs.
type FeatureFrequency struct {
	FeatureID   int     `json:"feature_id"`
	Feature     string  `json:"feature"`
	Layer       string  `json:"layer"`
	Runs        int     `json:"runs"`
	Discoveries int     `json:"discoveries"`
	Frequency   float64 `json:"frequency"`
	// MeanProbability averages the recorded probability over runs.
	MeanProbability float64 `json:"mean_probability"`
}

// Frequencies returns per-feature discovery frequencies ordered by feature ID.
func Frequencies(records []Record) []FeatureFrequency {
	byID := make(map[int]*FeatureFrequency)
	for _, r := range records {
		ff, ok := byID[r.FeatureID]
		if !ok {
			ff = &FeatureFrequency{FeatureID: r.FeatureID, Feature: r.Feature, Layer: r.Layer}
			byID[r.FeatureID] = ff
		}
		ff.Runs++
		ff.MeanProbability += r.Probability
		if r.Discovered {
			ff.Discoveries++
		}
	}
	out := make([]FeatureFrequency, 0, len(byID))
	for _, ff := range byID {
		ff.Frequency = float64(ff.Discoveries) / float64(ff.Runs)
		ff.MeanProbability /= float64(ff.Runs)
		out = append(out, *ff)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FeatureID < out[j].FeatureID })
	return out
}

// RunCount is the number of features discovered in one run.
type RunCount struct {
	RunID      int `json:"run_id"`
	Features   int `json:"features"`
	Discovered int `json:"discovered"`
}

// DiscoveredPerRun counts discoveries per run, ordered by run ID.
func DiscoveredPerRun(records []Record) []RunCount {
	byRun := make(map[int]*RunCount)
	for _, r := range records {
		rc, ok := byRun[r.RunID]
		if !ok {
			rc = &RunCount{RunID: r.RunID}
			byRun[r.RunID] = rc
		}
		rc.Features++
		if r.Discovered {
			rc.Discovered++
		}
	}
	out := make([]RunCount, 0, len(byRun))
	for _, rc := range byRun {
		out = append(out, *rc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out
}

// SurveyorTime totals the search time a surveyor spent.
type SurveyorTime struct {
	Surveyor string  `json:"surveyor"`
	Units    int     `json:"units"`
	Time     float64 `json:"time"`
	// MeanPerRun averages Time over the runs in which the surveyor worked.
	MeanPerRun float64 `json:"mean_per_run"`
}

// TimePerSurveyor totals unit time by surveyor, ordered by name.
func TimePerSurveyor(times []UnitTime) []SurveyorTime {
	type acc struct {
		SurveyorTime
		runs map[int]bool
	}
	by := make(map[string]*acc)
	for _, t := range times {
		a, ok := by[t.Surveyor]
		if !ok {
			a = &acc{SurveyorTime: SurveyorTime{Surveyor: t.Surveyor}, runs: map[int]bool{}}
			by[t.Surveyor] = a
		}
		a.Units++
		a.Time += t.TotalTime
		a.runs[t.RunID] = true
	}
	out := make([]SurveyorTime, 0, len(by))
	for _, a := range by {
		a.MeanPerRun = a.Time / float64(len(a.runs))
		out = append(out, a.SurveyorTime)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Surveyor < out[j].Surveyor })
	return out
}

// RunTime is the total search time of one run.
type RunTime struct {
	RunID int     `json:"run_id"`
	Time  float64 `json:"time"`
}

// TotalTime sums unit time per run, ordered by run ID.
func TotalTime(times []UnitTime) []RunTime {
	by := make(map[int]float64)
	for _, t := range times {
		by[t.RunID] += t.TotalTime
	}
	out := make([]RunTime, 0, len(by))
	for id, v := range by {
		out = append(out, RunTime{RunID: id, Time: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out
}

// Summary condenses a run log.
type Summary struct {
	Runs           int     `json:"runs"`
	Features       int     `json:"features"`
	MeanDiscovered float64 `json:"mean_discovered"`
	MinDiscovered  int     `json:"min_discovered"`
	MaxDiscovered  int     `json:"max_discovered"`
	MeanTotalTime  float64 `json:"mean_total_time"`
}

// Summarize condenses records and unit times. An empty log yields a zero Summary.
func Summarize(records []Record, times []UnitTime) Summary {
	per := DiscoveredPerRun(records)
	if len(per) == 0 {
		return Summary{}
	}
	sum := Summary{Runs: len(per), Features: per[0].Features, MinDiscovered: math.MaxInt}
	total := 0
	for _, rc := range per {
		total += rc.Discovered
		sum.MinDiscovered = min(sum.MinDiscovered, rc.Discovered)
		sum.MaxDiscovered = max(sum.MaxDiscovered, rc.Discovered)
	}
	sum.MeanDiscovered = float64(total) / float64(len(per))
	if rt := TotalTime(times); len(rt) > 0 {
		t := 0.0
		for _, r := range rt {
			t += r.Time
		}
		sum.MeanTotalTime = t / float64(len(rt))
	}
	return sum
}
