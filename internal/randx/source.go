// Package randx provides the explicit, seedable random source used by every
// stochastic step of a simulation. Sources are not safe for concurrent use;
// concurrent runs each derive their own stream.
package randx

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// Source is a deterministic pseudo-random stream.
type Source struct {
	seed uint64
	pcg  *rand.PCG
	rng  *rand.Rand
}

// New creates a source seeded with seed.
func New(seed uint64) *Source {
	pcg := rand.NewPCG(seed, mix(seed^0x9e3779b97f4a7c15))
	return &Source{seed: seed, pcg: pcg, rng: rand.New(pcg)}
}

// Src returns the underlying generator for distuv distributions. Values
// drawn through it advance this stream.
func (s *Source) Src() rand.Source { return s.pcg }

// Seed returns the seed the source was created with.
func (s *Source) Seed() uint64 { return s.seed }

// Derive returns an independent stream identified by labels. The result
// depends only on the root seed and the labels, never on how many values
// have already been drawn from s.
func (s *Source) Derive(labels ...uint64) *Source {
	h := mix(s.seed)
	for _, l := range labels {
		h = mix(h ^ mix(l+0x632be59bd9b4e019))
	}
	return New(h)
}

// mix is the splitmix64 finalizer.
func mix(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Float64 returns a uniform value in [0, 1).
func (s *Source) Float64() float64 { return s.rng.Float64() }

// Uniform returns a uniform value in [lo, hi).
func (s *Source) Uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.rng.Float64()
}

// IntN returns a uniform integer in [0, n). It panics if n <= 0.
func (s *Source) IntN(n int) int { return s.rng.IntN(n) }

// NormFloat64 returns a standard normal value.
func (s *Source) NormFloat64() float64 { return s.rng.NormFloat64() }

// Normal returns a normal value with the given mean and standard deviation.
func (s *Source) Normal(mean, sd float64) float64 {
	return mean + sd*s.rng.NormFloat64()
}

// Bernoulli reports whether a trial with success probability p succeeds.
func (s *Source) Bernoulli(p float64) bool {
	return s.rng.Float64() < p
}

// Shuffle permutes n elements using swap.
func (s *Source) Shuffle(n int, swap func(i, j int)) { s.rng.Shuffle(n, swap) }

// Perm returns a random permutation of [0, n).
func (s *Source) Perm(n int) []int { return s.rng.Perm(n) }

// Poisson returns a Poisson-distributed count with mean lambda.
// Non-positive lambda yields 0. Callers bound lambda; counts beyond
// math.MaxInt saturate.
func (s *Source) Poisson(lambda float64) int {
	if lambda <= 0 || math.IsNaN(lambda) {
		return 0
	}
	if math.IsInf(lambda, 1) {
		return math.MaxInt
	}
	k := distuv.Poisson{Lambda: lambda, Src: s.pcg}.Rand()
	if k >= math.MaxInt {
		return math.MaxInt
	}
	return int(k)
}

// Gamma returns a Gamma(shape, 1) value. Shape must be positive.
func (s *Source) Gamma(shape float64) float64 {
	return distuv.Gamma{Alpha: shape, Beta: 1, Src: s.pcg}.Rand()
}
