package feature

import (
	"github.com/prospectsim/prospect/internal/simerr"
)

// Assemblage is the collection of layers a survey searches for. Its flat
// feature view is fixed at construction, so runs can share it freely.
type Assemblage struct {
	name     string
	layers   []*Layer
	features []Feature
}

// NewAssemblage collects layers under a name. Layer names must be unique.
// Features are renumbered with assemblage-wide IDs in layer order.
func NewAssemblage(name string, layers ...*Layer) (*Assemblage, error) {
	seen := make(map[string]bool, len(layers))
	a := &Assemblage{name: name}
	for _, l := range layers {
		if l == nil {
			return nil, simerr.Invalid("assemblage %q: nil layer", name)
		}
		if seen[l.name] {
			return nil, simerr.Invalid("assemblage %q: duplicate layer name %q", name, l.name)
		}
		seen[l.name] = true
		a.layers = append(a.layers, l)
		for _, f := range l.features {
			f.ID = len(a.features)
			a.features = append(a.features, f)
		}
	}
	return a, nil
}

// Name returns the assemblage's name.
func (a *Assemblage) Name() string { return a.name }

// Layers returns the assemblage's layers in order.
func (a *Assemblage) Layers() []*Layer {
	return append([]*Layer(nil), a.layers...)
}

// Features returns a snapshot of every feature, indexed by ID.
func (a *Assemblage) Features() []Feature {
	return append([]Feature(nil), a.features...)
}

// Len returns the total number of features.
func (a *Assemblage) Len() int { return len(a.features) }

// Feature returns the feature with the given ID.
func (a *Assemblage) Feature(id int) (Feature, bool) {
	if id < 0 || id >= len(a.features) {
		return Feature{}, false
	}
	return a.features[id], true
}
