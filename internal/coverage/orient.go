package coverage

import (
	"math"

	"github.com/prospectsim/prospect/internal/constants"
	"github.com/prospectsim/prospect/internal/simerr"
)

// OrientMode selects how a plan's orientation is chosen.
type OrientMode string

const (
	// OrientFixed uses the configured angle.
	OrientFixed OrientMode = "fixed"
	// OrientSearch brute-forces angles in [0, 180) and keeps the best metric.
	OrientSearch OrientMode = "search"
	// OrientLong runs units parallel to the long axis of the region's
	// minimum rotated rectangle.
	OrientLong OrientMode = "long"
	// OrientShort runs units parallel to the short axis.
	OrientShort OrientMode = "short"
)

// Metric scores a candidate orientation.
type Metric string

const (
	MetricArea   Metric = "area"
	MetricLength Metric = "length"
	MetricUnits  Metric = "units"
)

// Candidate is one evaluated orientation.
type Candidate struct {
	Angle float64 `json:"angle"`
	Score float64 `json:"score"`
	Units int     `json:"units"`
}

// OrientationResult is the outcome of an orientation search.
type OrientationResult struct {
	Angle      float64     `json:"angle"`
	Score      float64     `json:"score"`
	Metric     Metric      `json:"metric"`
	Candidates []Candidate `json:"candidates"`
}

// layoutFunc lays out units at an angle and reports their coverage stats.
type layoutFunc func(angle float64) (units int, length, area float64)

func validateMetric(m Metric) (Metric, error) {
	switch m {
	case "":
		return MetricArea, nil
	case MetricArea, MetricLength, MetricUnits:
		return m, nil
	default:
		return "", simerr.Invalid("unknown orientation metric %q", m)
	}
}

// search evaluates every angle k*increment in [0, 180). Ties resolve to
// the smallest angle; a degenerate layout scores 0 everywhere and yields 0.
func search(increment float64, metric Metric, layout layoutFunc) (OrientationResult, error) {
	if increment < constants.MinOrientationIncrement || math.IsNaN(increment) || math.IsInf(increment, 0) {
		return OrientationResult{}, simerr.Invalid("orientation increment must be at least %g degrees, got %g",
			constants.MinOrientationIncrement, increment)
	}
	metric, err := validateMetric(metric)
	if err != nil {
		return OrientationResult{}, err
	}

	res := OrientationResult{Metric: metric}
	for k := 0; ; k++ {
		angle := float64(k) * increment
		if angle >= 180 {
			break
		}
		n, length, area := layout(angle)
		var score float64
		switch metric {
		case MetricArea:
			score = area
		case MetricLength:
			score = length
		case MetricUnits:
			score = float64(n)
		}
		res.Candidates = append(res.Candidates, Candidate{Angle: angle, Score: score, Units: n})
		if k == 0 || score > res.Score+constants.GeometryEpsilon*math.Max(1, math.Abs(res.Score)) {
			res.Angle, res.Score = angle, score
		}
	}
	return res, nil
}
