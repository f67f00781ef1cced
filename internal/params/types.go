package params

import (
	"fmt"
	"math"
	"sort"
)

// #region group
// Group names one of the two independent parameter vectors.
type Group string

const (
	GroupShape Group = "shape"
	GroupLimb  Group = "limb"
)

// Groups lists the vector groups in processing order.
var Groups = []Group{GroupShape, GroupLimb}

// #endregion group

// #region vector
// Vector maps a parameter name to its value.
type Vector map[string]float64

// Clone returns an independent copy. A nil vector clones to an empty one.
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	for k, x := range v {
		out[k] = x
	}
	return out
}

// SortedKeys returns the vector keys in ascending order.
func (v Vector) SortedKeys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// #endregion vector

// #region range
// Range is an inclusive [Min, Max] bound.
type Range struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Valid reports whether both ends are finite and Min <= Max.
func (r Range) Valid() bool {
	return IsFinite(r.Min) && IsFinite(r.Max) && r.Min <= r.Max
}

// Contains reports whether v lies inside the range.
func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// Clamp pins v into the range.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}

// Width returns Max - Min.
func (r Range) Width() float64 {
	return r.Max - r.Min
}

// Midpoint returns the centre of the range.
func (r Range) Midpoint() float64 {
	return r.Min + (r.Max-r.Min)/2
}

// Fixed reports whether the range admits a single value.
func (r Range) Fixed() bool {
	return r.Min == r.Max
}

// #endregion range

// #region envelope
// Envelope maps a parameter name to its allowed range.
type Envelope map[string]Range

// SortedKeys returns the envelope keys in ascending order.
func (e Envelope) SortedKeys() []string {
	keys := make([]string, 0, len(e))
	for k := range e {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks that the envelope defines at least one key and that every range is well formed.
func (e Envelope) Validate() error {
	if len(e) == 0 {
		return ErrEmptyUniverse
	}
	for _, k := range e.SortedKeys() {
		if r := e[k]; !r.Valid() {
			return fmt.Errorf("%w: %s [%v, %v]", ErrInvalidRange, k, r.Min, r.Max)
		}
	}
	return nil
}

// #endregion envelope

// #region bound-set
// BoundSet holds the shape and limb envelopes of one bound source.
type BoundSet struct {
	Shape Envelope `json:"shape" yaml:"shape"`
	Limb  Envelope `json:"limb" yaml:"limb"`
}

// For returns the envelope of the given group.
func (b BoundSet) For(g Group) Envelope {
	if g == GroupLimb {
		return b.Limb
	}
	return b.Shape
}

// Empty reports whether neither group defines a key.
func (b BoundSet) Empty() bool {
	return len(b.Shape) == 0 && len(b.Limb) == 0
}

// Validate checks both groups. Used on the authoritative DB set.
func (b BoundSet) Validate() error {
	if err := b.Shape.Validate(); err != nil {
		return fmt.Errorf("shape: %w", err)
	}
	if err := b.Limb.Validate(); err != nil {
		return fmt.Errorf("limb: %w", err)
	}
	return nil
}

// #endregion bound-set

// #region bounds
// Bounds bundles the local (K5) and global (DB) bound sets served for one gender.
type Bounds struct {
	Version    string   `json:"version" yaml:"version"`
	Gender     Gender   `json:"gender" yaml:"gender"`
	K5         BoundSet `json:"k5" yaml:"k5"`
	DB         BoundSet `json:"db" yaml:"db"`
	Archetypes []string `json:"archetypes,omitempty" yaml:"archetypes,omitempty"`
}

// #endregion bounds

// #region helpers
// IsFinite reports whether f is neither NaN nor infinite.
func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// #endregion helpers
