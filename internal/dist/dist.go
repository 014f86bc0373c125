// Package dist adapts probability distributions for parameter draws: surveyor
// skill, feature obs rate, time penalties, visibility and unit time budgets.
// Every distribution draws from an explicit randx.Source and never returns a
// value outside its declared bounds.
package dist

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/prospectsim/prospect/internal/randx"
	"github.com/prospectsim/prospect/internal/simerr"
)

// Distribution draws scalar parameter values.
type Distribution interface {
	// Draw returns one value within Bounds.
	Draw(r *randx.Source) float64
	// Bounds returns the closed support [lo, hi] of the distribution.
	Bounds() (lo, hi float64)
	String() string
}

// DrawN draws n values from d.
func DrawN(d Distribution, r *randx.Source, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = d.Draw(r)
	}
	return out
}

// IsConstant reports whether d always returns the same value. Constant
// distributions consume no randomness.
func IsConstant(d Distribution) bool {
	_, ok := d.(constant)
	return ok
}

type constant struct{ v float64 }

// Constant returns a degenerate distribution at v.
func Constant(v float64) Distribution { return constant{v: v} }

func (c constant) Draw(*randx.Source) float64 { return c.v }
func (c constant) Bounds() (float64, float64) { return c.v, c.v }
func (c constant) String() string             { return fmt.Sprintf("constant(%g)", c.v) }

type uniform struct{ lo, hi float64 }

// Uniform returns a uniform distribution over [lo, hi).
func Uniform(lo, hi float64) (Distribution, error) {
	if !finite(lo, hi) || lo >= hi {
		return nil, simerr.Invalid("uniform requires finite lower < upper, got [%g, %g]", lo, hi)
	}
	return uniform{lo: lo, hi: hi}, nil
}

func (u uniform) Draw(r *randx.Source) float64 { return r.Uniform(u.lo, u.hi) }
func (u uniform) Bounds() (float64, float64)   { return u.lo, u.hi }
func (u uniform) String() string               { return fmt.Sprintf("uniform(%g, %g)", u.lo, u.hi) }

type beta struct{ a, b, lo, hi float64 }

// Beta returns a Beta(a, b) distribution on [0, 1].
func Beta(a, b float64) (Distribution, error) {
	return ScaledBeta(a, b, 0, 1)
}

// ScaledBeta returns a Beta(a, b) distribution rescaled onto [lo, hi].
func ScaledBeta(a, b, lo, hi float64) (Distribution, error) {
	if !finite(a, b) || a <= 0 || b <= 0 {
		return nil, simerr.Invalid("beta shape parameters must be positive, got a=%g b=%g", a, b)
	}
	if !finite(lo, hi) || lo >= hi {
		return nil, simerr.Invalid("beta requires finite lower < upper, got [%g, %g]", lo, hi)
	}
	return beta{a: a, b: b, lo: lo, hi: hi}, nil
}

func (d beta) Draw(r *randx.Source) float64 {
	v := distuv.Beta{Alpha: d.a, Beta: d.b, Src: r.Src()}.Rand()
	if math.IsNaN(v) {
		// Both gamma draws underflowed to zero.
		v = d.a / (d.a + d.b)
	}
	return clamp(d.lo+(d.hi-d.lo)*v, d.lo, d.hi)
}

func (d beta) Bounds() (float64, float64) { return d.lo, d.hi }

func (d beta) String() string {
	if d.lo == 0 && d.hi == 1 {
		return fmt.Sprintf("beta(%g, %g)", d.a, d.b)
	}
	return fmt.Sprintf("beta(%g, %g, [%g, %g])", d.a, d.b, d.lo, d.hi)
}

// maxRejections bounds rejection sampling before switching to inverse-CDF.
const maxRejections = 64

type truncNormal struct{ mean, sd, lo, hi float64 }

// TruncNormal returns a normal distribution truncated to [lo, hi].
func TruncNormal(mean, sd, lo, hi float64) (Distribution, error) {
	if !finite(mean, sd, lo, hi) || sd <= 0 {
		return nil, simerr.Invalid("truncated normal requires finite mean and sd > 0, got mean=%g sd=%g", mean, sd)
	}
	if lo >= hi {
		return nil, simerr.Invalid("truncated normal requires lower < upper, got [%g, %g]", lo, hi)
	}
	return truncNormal{mean: mean, sd: sd, lo: lo, hi: hi}, nil
}

func (d truncNormal) Draw(r *randx.Source) float64 {
	for i := 0; i < maxRejections; i++ {
		v := r.Normal(d.mean, d.sd)
		if v >= d.lo && v <= d.hi {
			return v
		}
	}
	// Bounds deep in a tail: sample the truncated CDF directly.
	n := distuv.Normal{Mu: d.mean, Sigma: d.sd}
	pa, pb := n.CDF(d.lo), n.CDF(d.hi)
	if pb-pa <= 0 {
		return clamp(d.mean, d.lo, d.hi)
	}
	return clamp(n.Quantile(pa+(pb-pa)*r.Float64()), d.lo, d.hi)
}

func (d truncNormal) Bounds() (float64, float64) { return d.lo, d.hi }

func (d truncNormal) String() string {
	return fmt.Sprintf("truncnorm(%g, %g, [%g, %g])", d.mean, d.sd, d.lo, d.hi)
}

// WithinUnit returns an error unless d's support lies within [0, 1].
func WithinUnit(name string, d Distribution) error {
	if d == nil {
		return simerr.Invalid("%s distribution is required", name)
	}
	lo, hi := d.Bounds()
	if lo < 0 || hi > 1 || !finite(lo, hi) {
		return simerr.Invalid("%s must lie in [0, 1], got %s", name, d)
	}
	return nil
}

// NonNegative returns an error unless d's support lies within [0, +inf).
func NonNegative(name string, d Distribution) error {
	if d == nil {
		return simerr.Invalid("%s distribution is required", name)
	}
	lo, hi := d.Bounds()
	if lo < 0 || !finite(lo, hi) {
		return simerr.Invalid("%s must be non-negative, got %s", name, d)
	}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
