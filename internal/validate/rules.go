package validate

import (
	"fmt"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
)

// #region rule-types
// Predicate decides whether a rule fires for the current classification and vector.
type Predicate func(c params.Classification, v params.Vector) bool

// Mode selects how a rule moves its keys.
type Mode int

const (
	ModeCap Mode = iota // lower the value to the target when above it
	ModePin             // force the value to the target exactly
)

// TargetSource selects which bound a rule target is computed from.
type TargetSource int

const (
	TargetEnvelope TargetSource = iota // K5 range, falling back to DB when K5 lacks the key
	TargetDB
	TargetAbsolute
)

// Target locates the value a rule moves a key toward. For envelope and DB sources
// the target is Min + Fraction*(Max-Min); for absolute it is Value.
type Target struct {
	Source   TargetSource
	Fraction float64
	Value    float64
}

// Rule is one declarative coherence rule.
type Rule struct {
	Name   string
	Group  params.Group
	When   Predicate
	Keys   []string
	Target Target
	Mode   Mode
	Reason string
}

// #endregion rule-types

// #region resolve
// resolve computes the target for key. ok is false when no bound defines the key.
func (t Target) resolve(key string, k5, db params.Envelope) (float64, bool) {
	switch t.Source {
	case TargetAbsolute:
		return t.Value, true
	case TargetEnvelope:
		if r, ok := k5[key]; ok && r.Valid() {
			return r.Min + t.Fraction*r.Width(), true
		}
	}
	r, ok := db[key]
	if !ok {
		return 0, false
	}
	return r.Min + t.Fraction*r.Width(), true
}

// #endregion resolve

// #region apply
// Apply evaluates the rule against v, mutating v in place, and returns the corrections made.
func (r Rule) Apply(c params.Classification, v params.Vector, k5, db params.Envelope) []params.Violation {
	if r.When != nil && !r.When(c, v) {
		return nil
	}
	var records []params.Violation
	for _, k := range r.Keys {
		orig, ok := v[k]
		if !ok {
			continue
		}
		target, ok := r.Target.resolve(k, k5, db)
		if !ok {
			continue
		}
		switch r.Mode {
		case ModeCap:
			if orig <= target {
				continue
			}
		case ModePin:
			if orig == target {
				continue
			}
		}
		v[k] = target
		records = append(records, params.Violation{
			Key:       k,
			Group:     r.Group,
			Original:  orig,
			Corrected: target,
			Source:    params.SourceCoherence,
			Reason:    fmt.Sprintf("%s: %s", r.Name, r.Reason),
			Priority:  PriorityCoherence,
		})
	}
	return records
}

// #endregion apply

// #region rule-config
// RuleConfig names the semantic keys and thresholds the default rule table uses.
type RuleConfig struct {
	AdiposityKey    string   `yaml:"adiposity_key" validate:"required"`
	MuscularityKeys []string `yaml:"muscularity_keys" validate:"required,min=1"`
	NarrowWaistKeys []string `yaml:"narrow_waist_keys"`
	EmaciationKey   string   `yaml:"emaciation_key"`
	GateKey         string   `yaml:"gate_key" validate:"required"`

	AdiposityThreshold   float64 `yaml:"adiposity_threshold"`   // adiposity value that caps muscularity
	MuscularityThreshold float64 `yaml:"muscularity_threshold"` // muscularity value that caps adiposity
	EmaciationThreshold  float64 `yaml:"emaciation_threshold"`

	ObesityMuscleFraction    float64 `yaml:"obesity_muscle_fraction" validate:"min=0,max=1"`
	MuscleCeilingFraction    float64 `yaml:"muscle_ceiling_fraction" validate:"min=0,max=1"`
	AdiposityCeilingFraction float64 `yaml:"adiposity_ceiling_fraction" validate:"min=0,max=1"`
	NarrowWaistCeiling       float64 `yaml:"narrow_waist_ceiling" validate:"max=0"`
}

// DefaultRuleConfig returns the standard key names and thresholds.
func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		AdiposityKey:             "bodyFat",
		MuscularityKeys:          []string{"muscleDefinition", "muscleSize"},
		NarrowWaistKeys:          []string{"waistNarrow"},
		EmaciationKey:            "skinny",
		GateKey:                  "gate",
		AdiposityThreshold:       0.5,
		MuscularityThreshold:     0.6,
		EmaciationThreshold:      0.5,
		ObesityMuscleFraction:    0.1,
		MuscleCeilingFraction:    0.3,
		AdiposityCeilingFraction: 0.3,
		NarrowWaistCeiling:       -0.1,
	}
}

// #endregion rule-config

// #region default-rules
// DefaultRules builds the coherence rule table. Order matters: later rules see the
// corrections of earlier ones.
func DefaultRules(cfg RuleConfig) []Rule {
	above := func(key string, threshold float64) Predicate {
		return func(_ params.Classification, v params.Vector) bool {
			x, ok := v[key]
			return ok && x > threshold
		}
	}
	anyAbove := func(keys []string, threshold float64) Predicate {
		return func(_ params.Classification, v params.Vector) bool {
			for _, k := range keys {
				if x, ok := v[k]; ok && x > threshold {
					return true
				}
			}
			return false
		}
	}
	notHighAdiposity := func(p Predicate) Predicate {
		return func(c params.Classification, v params.Vector) bool {
			return !c.HighAdiposity() && p(c, v)
		}
	}

	rules := []Rule{
		{
			Name:   "obesity_override",
			Group:  params.GroupShape,
			When:   func(c params.Classification, _ params.Vector) bool { return c.HighAdiposity() },
			Keys:   cfg.MuscularityKeys,
			Target: Target{Source: TargetEnvelope, Fraction: cfg.ObesityMuscleFraction},
			Mode:   ModeCap,
			Reason: "obesity classification overrides muscularity; adiposity stays high",
		},
		{
			Name:   "adiposity_caps_muscle",
			Group:  params.GroupShape,
			When:   notHighAdiposity(above(cfg.AdiposityKey, cfg.AdiposityThreshold)),
			Keys:   cfg.MuscularityKeys,
			Target: Target{Source: TargetEnvelope, Fraction: cfg.MuscleCeilingFraction},
			Mode:   ModeCap,
			Reason: fmt.Sprintf("%s above %.2f limits muscularity", cfg.AdiposityKey, cfg.AdiposityThreshold),
		},
		{
			Name:   "muscle_caps_adiposity",
			Group:  params.GroupShape,
			When:   notHighAdiposity(anyAbove(cfg.MuscularityKeys, cfg.MuscularityThreshold)),
			Keys:   []string{cfg.AdiposityKey},
			Target: Target{Source: TargetEnvelope, Fraction: cfg.AdiposityCeilingFraction},
			Mode:   ModeCap,
			Reason: fmt.Sprintf("muscularity above %.2f limits adiposity", cfg.MuscularityThreshold),
		},
	}

	if len(cfg.NarrowWaistKeys) > 0 {
		rules = append(rules, Rule{
			Name:  "no_narrow_waist",
			Group: params.GroupShape,
			When: func(c params.Classification, _ params.Vector) bool {
				return c.HighAdiposity() || c.Overweight()
			},
			Keys:   cfg.NarrowWaistKeys,
			Target: Target{Source: TargetAbsolute, Value: cfg.NarrowWaistCeiling},
			Mode:   ModeCap,
			Reason: "adiposity and a narrowed waist are mutually exclusive",
		})
	}

	if cfg.EmaciationKey != "" {
		keys := append([]string{cfg.AdiposityKey}, cfg.MuscularityKeys...)
		rules = append(rules, Rule{
			Name:   "emaciation_caps",
			Group:  params.GroupShape,
			When:   above(cfg.EmaciationKey, cfg.EmaciationThreshold),
			Keys:   keys,
			Target: Target{Source: TargetEnvelope, Fraction: 0},
			Mode:   ModeCap,
			Reason: fmt.Sprintf("%s above %.2f excludes adiposity and muscularity", cfg.EmaciationKey, cfg.EmaciationThreshold),
		})
	}

	rules = append(rules, Rule{
		Name:   "gate_pin",
		Group:  params.GroupLimb,
		Keys:   []string{cfg.GateKey},
		Target: Target{Source: TargetAbsolute, Value: limbBaseline},
		Mode:   ModePin,
		Reason: "gate limb mass is fixed at 1.0",
	})

	return rules
}

// #endregion default-rules
