// Package coverage partitions a region into survey units: clipped transect
// lines, radial sectors, or imported fixed units. It also chooses transect
// orientation by brute-force search or by the region's principal axes.
package coverage

import (
	"github.com/paulmach/orb"

	"github.com/prospectsim/prospect/internal/geom"
)

// Kind is the geometry family of a unit.
type Kind string

const (
	KindTransect Kind = "transect"
	KindRadial   Kind = "radial"
)

// Unit is one atomic piece of coverage searched by exactly one surveyor per
// run. Units are immutable once their plan is built.
type Unit struct {
	ID   int
	Name string
	Plan string
	Kind Kind
	// Line is the clipped spine of a transect.
	Line orb.LineString
	// Center is the station of a radial unit, or the midpoint of a transect.
	Center orb.Point
	// Length is the spine length of a transect.
	Length float64
	// SweepWidth is the half-width searched either side of a transect.
	SweepWidth float64
	// Radius, StartAngle and SweepAngle describe a radial sector, in degrees.
	Radius     float64
	StartAngle float64
	SweepAngle float64
	// Area is the footprint area lying within the region.
	Area float64
	// MinTime is the search time budget allotted to the unit. Zero or less
	// means unconstrained.
	MinTime float64
}

// Footprint returns the unit's search footprint, or nil for a degenerate unit.
func (u Unit) Footprint() geom.Footprint {
	switch u.Kind {
	case KindTransect:
		if len(u.Line) < 2 || u.SweepWidth <= 0 {
			return nil
		}
		return geom.Capsule{A: u.Line[0], B: u.Line[len(u.Line)-1], HalfWidth: u.SweepWidth}
	case KindRadial:
		if u.Radius <= 0 || u.SweepAngle <= 0 {
			return nil
		}
		return geom.Sector{Center: u.Center, Radius: u.Radius, Start: u.StartAngle, Sweep: u.SweepAngle}
	default:
		return nil
	}
}

// Valid reports whether the unit has a usable footprint.
func (u Unit) Valid() bool { return u.Footprint() != nil && u.Area > 0 }

// Geometry returns the unit's spine or station for export.
func (u Unit) Geometry() orb.Geometry {
	if u.Kind == KindTransect {
		return u.Line
	}
	return u.Center
}

// Record returns a flat key/value view for tabular export.
func (u Unit) Record() map[string]any {
	return map[string]any{
		"unit_id":     u.ID,
		"unit":        u.Name,
		"plan":        u.Plan,
		"kind":        string(u.Kind),
		"x":           u.Center[0],
		"y":           u.Center[1],
		"length":      u.Length,
		"sweep_width": u.SweepWidth,
		"radius":      u.Radius,
		"start_angle": u.StartAngle,
		"sweep_angle": u.SweepAngle,
		"area":        u.Area,
		"min_time":    u.MinTime,
	}
}
