// Package feature models the targets of a survey: individual features,
// layers of features produced by one generating process, and the assemblage
// that collects layers over a region.
package feature

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/prospectsim/prospect/internal/dist"
	"github.com/prospectsim/prospect/internal/simerr"
)

// Feature is a single discoverable target. Its parameters are drawn once,
// when its layer is generated, and never change afterwards.
type Feature struct {
	// ID is assemblage-wide; within a bare Layer it is the layer-local index.
	ID    int
	Name  string
	Layer string
	// Shape is an orb.Point or orb.Polygon lying within the region.
	Shape orb.Geometry
	// IdealObsRate is the detection probability under perfect conditions.
	IdealObsRate float64
	// TimePenalty is the extra search time the feature demands.
	TimePenalty float64
}

// Valid reports whether the feature has a usable shape and in-range parameters.
func (f Feature) Valid() bool {
	if f.IdealObsRate < 0 || f.IdealObsRate > 1 || f.TimePenalty < 0 {
		return false
	}
	switch s := f.Shape.(type) {
	case orb.Point:
		return true
	case orb.Polygon:
		return len(s) > 0 && len(s[0]) >= 4 && planar.Area(s) != 0
	default:
		return false
	}
}

// Location returns the feature's representative point.
func (f Feature) Location() orb.Point {
	switch s := f.Shape.(type) {
	case orb.Point:
		return s
	case nil:
		return orb.Point{}
	default:
		c, _ := planar.CentroidArea(s)
		return c
	}
}

// Record returns a flat key/value view for tabular export.
func (f Feature) Record() map[string]any {
	loc := f.Location()
	shape := "none"
	if f.Shape != nil {
		shape = f.Shape.GeoJSONType()
	}
	return map[string]any{
		"feature_id":     f.ID,
		"feature":        f.Name,
		"layer":          f.Layer,
		"shape":          shape,
		"x":              loc[0],
		"y":              loc[1],
		"ideal_obs_rate": f.IdealObsRate,
		"time_penalty":   f.TimePenalty,
	}
}

// LayerParams are the per-layer inputs shared by every generator.
type LayerParams struct {
	Name string
	// IdealObsRate defaults to a constant 1 and must lie within [0, 1].
	IdealObsRate dist.Distribution
	// TimePenalty defaults to a constant 0 and must be non-negative.
	TimePenalty dist.Distribution
	// MaxAttempts overrides the clip-and-retry ceiling when positive.
	MaxAttempts int
}

func (p *LayerParams) normalize() error {
	if p.Name == "" {
		return simerr.Invalid("layer name is required")
	}
	if p.IdealObsRate == nil {
		p.IdealObsRate = dist.Constant(1)
	}
	if p.TimePenalty == nil {
		p.TimePenalty = dist.Constant(0)
	}
	if err := dist.WithinUnit("ideal_obs_rate", p.IdealObsRate); err != nil {
		return err
	}
	return dist.NonNegative("time_penalty", p.TimePenalty)
}
