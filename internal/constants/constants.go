// Package constants provides named defaults used throughout the prospect codebase.
// This centralizes magic numbers for survey geometry, generation, and runs.
package constants

// Coverage geometry defaults
const (
	// DefaultTransectSpacing is the distance between adjacent transect lines.
	DefaultTransectSpacing = 10.0

	// DefaultSweepWidth is the half-width of a transect's search footprint.
	DefaultSweepWidth = 2.0

	// DefaultRadialRadius is the radius of a radial search unit.
	// Chosen so a full disk covers roughly 10 square units.
	DefaultRadialRadius = 1.78

	// DefaultSweepAngle is the angular width of a radial unit, in degrees.
	// 360 yields one full disk per station.
	DefaultSweepAngle = 360.0

	// DefaultOrientationIncrement is the step, in degrees, of the brute-force
	// orientation search over [0, 180).
	DefaultOrientationIncrement = 5.0

	// MinOrientationIncrement is the smallest accepted search step, in degrees.
	MinOrientationIncrement = 0.01

	// MinTransectLines is the line count used when the region's diagonal is
	// shorter than two spacings.
	MinTransectLines = 3

	// CirclePolygonSegments is the vertex count used when approximating
	// disks and arcs as polygons.
	CirclePolygonSegments = 64
)

// Generation defaults
const (
	// DefaultMaxAttempts is the minimum attempt ceiling for clip-and-retry placement.
	DefaultMaxAttempts = 1000

	// AttemptsPerShape scales the attempt ceiling with the requested count.
	AttemptsPerShape = 100

	// MaxLayerFeatures caps the requested or expected feature count of one layer.
	MaxLayerFeatures = 1_000_000

	// MaxPlanUnits caps the number of candidate lines or sectors a coverage plan lays out.
	MaxPlanUnits = 1_000_000
)

// Run defaults
const (
	// DefaultRuns is the number of Monte-Carlo runs when none is configured.
	DefaultRuns = 100

	// DefaultWorkers is the bounded parallelism for a run batch.
	DefaultWorkers = 4

	// DefaultSeed seeds the root random source when none is configured.
	DefaultSeed = 42

	// GeometryEpsilon is the tolerance used by planar predicates.
	GeometryEpsilon = 1e-9
)
