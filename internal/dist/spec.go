package dist

import (
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/prospectsim/prospect/internal/simerr"
)

// Kind names a distribution family in scenario files.
type Kind string

const (
	KindConstant   Kind = "constant"
	KindUniform    Kind = "uniform"
	KindBeta       Kind = "beta"
	KindTruncNorm  Kind = "truncnorm"
	kindTruncAlias Kind = "truncated_normal"
)

// Spec is the serializable description of a distribution. A bare number in
// YAML decodes as a constant.
type Spec struct {
	Kind  Kind     `yaml:"kind" json:"kind"`
	Value float64  `yaml:"value,omitempty" json:"value,omitempty"`
	Alpha float64  `yaml:"alpha,omitempty" json:"alpha,omitempty"`
	Beta  float64  `yaml:"beta,omitempty" json:"beta,omitempty"`
	Mean  float64  `yaml:"mean,omitempty" json:"mean,omitempty"`
	SD    float64  `yaml:"sd,omitempty" json:"sd,omitempty"`
	Lower *float64 `yaml:"lower,omitempty" json:"lower,omitempty"`
	Upper *float64 `yaml:"upper,omitempty" json:"upper,omitempty"`
}

// ConstantSpec returns a Spec for a constant value.
func ConstantSpec(v float64) *Spec {
	return &Spec{Kind: KindConstant, Value: v}
}

// UnmarshalYAML accepts either a scalar or a mapping.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var v float64
		if err := node.Decode(&v); err != nil {
			return simerr.Invalid("distribution scalar %q is not a number", node.Value)
		}
		*s = Spec{Kind: KindConstant, Value: v}
		return nil
	}
	type plain Spec
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = Spec(p)
	return nil
}

// Build constructs the distribution described by s. A nil Spec builds
// Constant(fallback).
func (s *Spec) Build(fallback float64) (Distribution, error) {
	if s == nil {
		return Constant(fallback), nil
	}
	switch Kind(strings.ToLower(string(s.Kind))) {
	case KindConstant, "":
		if !finite(s.Value) {
			return nil, simerr.Invalid("constant value must be finite")
		}
		return Constant(s.Value), nil
	case KindUniform:
		return Uniform(s.lower(0), s.upper(1))
	case KindBeta:
		return ScaledBeta(s.Alpha, s.Beta, s.lower(0), s.upper(1))
	case KindTruncNorm, kindTruncAlias:
		return TruncNormal(s.Mean, s.SD, s.lower(0), s.upper(1))
	default:
		return nil, simerr.Invalid("unknown distribution kind %q", s.Kind)
	}
}

func (s *Spec) lower(def float64) float64 {
	if s.Lower == nil {
		return def
	}
	return *s.Lower
}

func (s *Spec) upper(def float64) float64 {
	if s.Upper == nil {
		return def
	}
	return *s.Upper
}
