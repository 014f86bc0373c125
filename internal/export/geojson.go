package export

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/prospectsim/prospect/internal/coverage"
	"github.com/prospectsim/prospect/internal/feature"
	"github.com/prospectsim/prospect/internal/geom"
	"github.com/prospectsim/prospect/internal/survey"
)

// RegionGeoJSON returns the region as a one-feature collection.
func RegionGeoJSON(r *geom.Region) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.Append(r.GeoJSON())
	return fc
}

// FeaturesGeoJSON returns every feature of the assemblage. When frequencies
// are given, each feature carries its discovery frequency.
func FeaturesGeoJSON(a *feature.Assemblage, freqs []survey.FeatureFrequency) *geojson.FeatureCollection {
	byID := make(map[int]survey.FeatureFrequency, len(freqs))
	for _, ff := range freqs {
		byID[ff.FeatureID] = ff
	}

	fc := geojson.NewFeatureCollection()
	for _, f := range a.Features() {
		if f.Shape == nil {
			continue
		}
		gf := geojson.NewFeature(f.Shape)
		copyProps(gf, f.Record(), "x", "y", "shape")
		if ff, ok := byID[f.ID]; ok {
			gf.Properties["frequency"] = ff.Frequency
			gf.Properties["discoveries"] = ff.Discoveries
			gf.Properties["runs"] = ff.Runs
		}
		fc.Append(gf)
	}
	return fc
}

// PlanGeoJSON returns each unit's search footprint as a polygon. Units
// without a footprint fall back to their spine or station.
func PlanGeoJSON(p *coverage.Plan) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, u := range p.Units() {
		var g orb.Geometry = u.Geometry()
		if fp := u.Footprint(); fp != nil {
			if pts := fp.Polygon(); len(pts) >= 3 {
				g = orb.Polygon{append(orb.Ring(pts), pts[0])}
			}
		}
		gf := geojson.NewFeature(g)
		copyProps(gf, u.Record(), "x", "y")
		fc.Append(gf)
	}
	return fc
}

// SurveyGeoJSON collects region, plan and features into one collection,
// tagging each entry with its "element".
func SurveyGeoJSON(s *survey.Survey, freqs []survey.FeatureFrequency) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	add := func(element string, fc *geojson.FeatureCollection) {
		for _, f := range fc.Features {
			f.Properties["element"] = element
			out.Append(f)
		}
	}
	add("region", RegionGeoJSON(s.Plan().Region()))
	add("unit", PlanGeoJSON(s.Plan()))
	add("feature", FeaturesGeoJSON(s.Assemblage(), freqs))
	return out
}

func copyProps(f *geojson.Feature, rec map[string]any, skip ...string) {
	for k, v := range rec {
		f.Properties[k] = v
	}
	for _, k := range skip {
		delete(f.Properties, k)
	}
}
