package validate

import (
	"fmt"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
)

// Validator reconciles candidate vectors against the bound sets. It holds no mutable
// state and is safe for concurrent use.
type Validator struct {
	cfg    Config
	stages []Stage
}

// New creates a Validator. A zero epsilon falls back to the default.
func New(cfg Config) *Validator {
	if cfg.EnvelopeEpsilon <= 0 {
		cfg.EnvelopeEpsilon = DefaultConfig().EnvelopeEpsilon
	}
	return &Validator{cfg: cfg, stages: Pipeline()}
}

// Stages returns the names of the pipeline stages in application order.
func (v *Validator) Stages() []string {
	names := make([]string, len(v.stages))
	for i, s := range v.stages {
		names[i] = s.Name
	}
	return names
}

// #region validate
// Validate runs the full pipeline over both groups, shape first. It only fails when
// the DB bound set is structurally invalid; out-of-range input is corrected, never rejected.
func (v *Validator) Validate(in Input) (Result, error) {
	if err := in.DB.Validate(); err != nil {
		return Result{}, fmt.Errorf("validate: db bounds: %w", err)
	}

	var res Result
	for _, g := range params.Groups {
		st := &groupState{
			group:   g,
			k5:      in.K5.For(g),
			db:      in.DB.For(g),
			input:   &in,
			epsilon: v.cfg.EnvelopeEpsilon,
			rules:   v.cfg.Rules,
		}
		out, trail := v.runGroup(st, in.candidate(g))
		trail.EnvelopeExceptions = envelopeExceptions(st, out, trail.Records)
		res.Audit.Merge(trail)
		if g == params.GroupLimb {
			res.Limb = out
		} else {
			res.Shape = out
		}
	}
	return res, nil
}

func (v *Validator) runGroup(st *groupState, candidate params.Vector) (params.Vector, params.AuditTrail) {
	var trail params.AuditTrail
	vec := candidate.Clone()
	for _, stage := range v.stages {
		r := stage.run(st, vec)
		vec = r.vector
		trail.Append(r.records...)
		trail.MissingKeysAdded = append(trail.MissingKeysAdded, r.added...)
		trail.ExtraKeysRemoved = append(trail.ExtraKeysRemoved, r.removed...)
	}
	return vec, trail
}

// #endregion validate

// #region envelope-exceptions
// envelopeExceptions lists K5 keys whose final value lies outside K5, attributing each
// to the last correction that moved it.
func envelopeExceptions(st *groupState, final params.Vector, records []params.Violation) []params.Violation {
	var out []params.Violation
	for _, k := range st.k5.SortedKeys() {
		r := st.k5[k]
		x, ok := final[k]
		if !ok || !r.Valid() || r.Contains(x) {
			continue
		}
		last, found := lastRecord(records, k)
		exc := params.Violation{
			Key:       k,
			Group:     st.group,
			Original:  r.Clamp(x),
			Corrected: x,
			Source:    params.SourceDB,
			Reason:    fmt.Sprintf("outside k5 envelope [%.4f, %.4f]", r.Min, r.Max),
		}
		if reason, conflict := st.genderConflict(k, r); conflict && !found {
			exc.Source = params.SourceGender
			exc.Priority = PriorityGender
			exc.Reason = fmt.Sprintf("k5 [%.4f, %.4f] conflicts with %s", r.Min, r.Max, reason)
		}
		if found {
			exc.Source = last.Source
			exc.Priority = last.Priority
			exc.Reason = fmt.Sprintf("%s; left k5 [%.4f, %.4f]", last.Reason, r.Min, r.Max)
		}
		out = append(out, exc)
	}
	return out
}

func lastRecord(records []params.Violation, key string) (params.Violation, bool) {
	for i := len(records) - 1; i >= 0; i-- {
		if records[i].Key == key {
			return records[i], true
		}
	}
	return params.Violation{}, false
}

// #endregion envelope-exceptions
