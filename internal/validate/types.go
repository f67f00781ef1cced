package validate

import "github.com/danielpatrickdp/body-refine/go-controller/internal/params"

// #region config
// Config holds the validator's tolerances and coherence rule table.
type Config struct {
	EnvelopeEpsilon float64 // envelope clamps smaller than this are applied but not recorded
	Rules           []Rule
}

// DefaultConfig returns the standard epsilon and rule table.
func DefaultConfig() Config {
	return Config{
		EnvelopeEpsilon: 0.001,
		Rules:           DefaultRules(DefaultRuleConfig()),
	}
}

// #endregion config

// #region input
// Input is everything one validation needs. Candidate vectors come from the gateway;
// K5 may omit keys that DB defines.
type Input struct {
	Shape          params.Vector
	Limb           params.Vector
	K5             params.BoundSet
	DB             params.BoundSet
	Constraints    params.GenderConstraints
	Classification params.Classification
}

func (in Input) candidate(g params.Group) params.Vector {
	if g == params.GroupLimb {
		return in.Limb
	}
	return in.Shape
}

// #endregion input

// #region result
// Result is the corrected output of one validation.
type Result struct {
	Shape params.Vector
	Limb  params.Vector
	Audit params.AuditTrail
}

// For returns the final vector of a group.
func (r Result) For(g params.Group) params.Vector {
	if g == params.GroupLimb {
		return r.Limb
	}
	return r.Shape
}

// #endregion result

// #region stage
// groupState is the read-only context a stage sees while processing one group.
type groupState struct {
	group   params.Group
	k5      params.Envelope
	db      params.Envelope
	input   *Input
	epsilon float64
	rules   []Rule
}

// stageResult is what one stage hands to the next.
type stageResult struct {
	vector  params.Vector
	records []params.Violation
	added   []string
	removed []string
}

// Stage is one named step of the pipeline. Priority is the value recorded on the
// corrections it produces; bookkeeping stages use 0.
type Stage struct {
	Name     string
	Priority int
	run      func(st *groupState, v params.Vector) stageResult
}

// #endregion stage
