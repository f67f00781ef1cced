package params

import (
	"fmt"
	"sort"
	"strings"
)

// #region gender
// Gender selects which bound sets and explicit rules apply.
type Gender string

const (
	GenderMale   Gender = "male"
	GenderFemale Gender = "female"
)

var genderAliases = map[string]Gender{
	"male":      GenderMale,
	"m":         GenderMale,
	"man":       GenderMale,
	"masculine": GenderMale,
	"female":    GenderFemale,
	"f":         GenderFemale,
	"woman":     GenderFemale,
	"feminine":  GenderFemale,
}

// ParseGender resolves a free-form gender label.
func ParseGender(s string) (Gender, error) {
	g, ok := genderAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownGender, s)
	}
	return g, nil
}

// #endregion gender

// #region gender-rule
// GenderRule holds the explicit per-gender rules that sit on top of the bound tables.
// Banned maps a key to the value it is forced to; Ceilings maps a key to its maximum.
type GenderRule struct {
	Banned   map[string]float64 `json:"banned" yaml:"banned"`
	Ceilings map[string]float64 `json:"ceilings" yaml:"ceilings"`
}

// GenderRules maps each gender to its explicit rule.
type GenderRules map[Gender]GenderRule

// DefaultGenderRules returns the built-in rules. Only the masculine set carries
// anatomically exclusive keys.
func DefaultGenderRules() GenderRules {
	return GenderRules{
		GenderMale: {
			Banned:   map[string]float64{"pregnant": 0},
			Ceilings: map[string]float64{"breastSize": 0.2, "hipWidth": 0.4},
		},
		GenderFemale: {},
	}
}

// #endregion gender-rule

// #region constraints
// GenderConstraints is the resolved constraint set for one request.
// Banned and Ceilings only contain keys present in the DB shape universe;
// Fixed contains every DB key whose range collapses to a single value.
type GenderConstraints struct {
	Gender   Gender
	Banned   map[string]float64
	Ceilings map[string]float64
	Fixed    map[string]float64
}

// DeriveConstraints resolves the constraints for gender from the DB bound set and explicit rules.
func DeriveConstraints(gender Gender, db BoundSet, rules GenderRules) GenderConstraints {
	c := GenderConstraints{
		Gender:   gender,
		Banned:   map[string]float64{},
		Ceilings: map[string]float64{},
		Fixed:    map[string]float64{},
	}
	for _, g := range Groups {
		env := db.For(g)
		for k, r := range env {
			if r.Fixed() {
				c.Fixed[k] = r.Min
			}
		}
	}
	rule := rules[gender]
	for k, v := range rule.Banned {
		if _, ok := db.Shape[k]; ok {
			c.Banned[k] = v
		}
	}
	for k, v := range rule.Ceilings {
		if _, ok := db.Shape[k]; ok {
			c.Ceilings[k] = v
		}
	}
	return c
}

// BannedKeys returns the banned keys sorted.
func (c GenderConstraints) BannedKeys() []string {
	return sortedMapKeys(c.Banned)
}

// CeilingKeys returns the ceiling keys sorted.
func (c GenderConstraints) CeilingKeys() []string {
	return sortedMapKeys(c.Ceilings)
}

// FixedKeys returns the fixed keys sorted.
func (c GenderConstraints) FixedKeys() []string {
	return sortedMapKeys(c.Fixed)
}

func sortedMapKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// #endregion constraints
