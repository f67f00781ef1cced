package params

import (
	"fmt"
	"sort"
)

// #region keyed
// Keyed is a vector bound to a fixed key universe. Reads and writes of keys outside
// the universe fail instead of silently widening the vector.
type Keyed struct {
	universe Envelope
	values   Vector
}

// NewKeyed creates an empty vector over the keys of universe.
func NewKeyed(universe Envelope) *Keyed {
	return &Keyed{universe: universe, values: make(Vector, len(universe))}
}

// Set writes a finite value for a key of the universe.
func (k *Keyed) Set(key string, v float64) error {
	if _, ok := k.universe[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if !IsFinite(v) {
		return fmt.Errorf("%w: %s", ErrNonFinite, key)
	}
	k.values[key] = v
	return nil
}

// Get reads a key. Unknown keys and keys not yet written are errors.
func (k *Keyed) Get(key string) (float64, error) {
	if _, ok := k.universe[key]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	v, ok := k.values[key]
	if !ok {
		return 0, fmt.Errorf("params: %s not set", key)
	}
	return v, nil
}

// Missing lists universe keys that have not been written, sorted.
func (k *Keyed) Missing() []string {
	var out []string
	for key := range k.universe {
		if _, ok := k.values[key]; !ok {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

// Vector returns a copy of the written values.
func (k *Keyed) Vector() Vector {
	return k.values.Clone()
}

// #endregion keyed
