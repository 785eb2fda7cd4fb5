// Package fault maps vibration spectral peaks onto named mechanical fault
// classes.
package fault

import (
	"errors"
	"fmt"
	"slices"
)

// Signature is one fault class and its characteristic frequencies in Hz.
type Signature struct {
	Class       string    `yaml:"class"`
	Frequencies []float64 `yaml:"frequencies"`
}

// Catalog is an ordered, read-only set of signatures. Order decides ties
// in the scorer.
type Catalog struct {
	signatures []Signature
}

func NewCatalog(signatures []Signature) (Catalog, error) {
	if len(signatures) == 0 {
		return Catalog{}, errors.New("fault catalog is empty")
	}

	seen := make(map[string]struct{}, len(signatures))
	out := make([]Signature, 0, len(signatures))
	for _, s := range signatures {
		if s.Class == "" {
			return Catalog{}, errors.New("fault signature without class")
		}
		if _, dup := seen[s.Class]; dup {
			return Catalog{}, fmt.Errorf("duplicate fault class %q", s.Class)
		}
		if len(s.Frequencies) == 0 {
			return Catalog{}, fmt.Errorf("fault class %q has no frequencies", s.Class)
		}
		for _, f := range s.Frequencies {
			if f <= 0 {
				return Catalog{}, fmt.Errorf("fault class %q: frequency must be > 0, got %v", s.Class, f)
			}
		}
		seen[s.Class] = struct{}{}
		out = append(out, Signature{Class: s.Class, Frequencies: slices.Clone(s.Frequencies)})
	}

	return Catalog{signatures: out}, nil
}

// DefaultCatalog returns the idler bearing signatures.
func DefaultCatalog() Catalog {
	c, err := NewCatalog([]Signature{
		{Class: "bearing_outer", Frequencies: []float64{85.4, 103.6, 128.9}},
		{Class: "bearing_inner", Frequencies: []float64{142.8, 165.2, 189.7}},
		{Class: "roller_defect", Frequencies: []float64{46.3, 68.7, 93.5}},
		{Class: "cage_defect", Frequencies: []float64{11.2, 17.5, 24.8}},
		{Class: "unbalance", Frequencies: []float64{23.3, 35.7, 47.1}},
		{Class: "misalignment", Frequencies: []float64{117.6, 134.2, 151.8}},
	})
	if err != nil {
		panic(err)
	}
	return c
}

func (c Catalog) Len() int {
	return len(c.signatures)
}

// Signatures returns a copy of the catalog entries in order.
func (c Catalog) Signatures() []Signature {
	out := make([]Signature, len(c.signatures))
	for i, s := range c.signatures {
		out[i] = Signature{Class: s.Class, Frequencies: slices.Clone(s.Frequencies)}
	}
	return out
}

func (c Catalog) Classes() []string {
	out := make([]string, len(c.signatures))
	for i, s := range c.signatures {
		out[i] = s.Class
	}
	return out
}

func (c Catalog) Frequencies(class string) ([]float64, bool) {
	for _, s := range c.signatures {
		if s.Class == class {
			return slices.Clone(s.Frequencies), true
		}
	}
	return nil, false
}
