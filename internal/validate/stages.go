package validate

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
)

// Correction priorities, lowest applied first.
const (
	PriorityEnvelope  = 1
	PriorityDB        = 2
	PriorityGender    = 3
	PriorityCoherence = 4
	PriorityReclamp   = 5
)

// limbBaseline is the "no change" limb mass multiplier.
const limbBaseline = 1.0

// #region pipeline
// Pipeline returns the ordered stages applied to every group.
func Pipeline() []Stage {
	return []Stage{
		allowlistStage(),
		completionStage(),
		envelopeStage(),
		dbStage("db_clamp", PriorityDB, "outside db bounds"),
		genderStage(),
		coherenceStage(),
		dbStage("db_reclamp", PriorityReclamp, "correction left db bounds"),
	}
}

// #endregion pipeline

// #region allowlist
// allowlistStage drops every key the DB universe does not define.
func allowlistStage() Stage {
	return Stage{
		Name: "allowlist",
		run: func(st *groupState, v params.Vector) stageResult {
			out := make(params.Vector, len(st.db))
			var removed []string
			for _, k := range v.SortedKeys() {
				if _, ok := st.db[k]; !ok {
					removed = append(removed, k)
					continue
				}
				out[k] = v[k]
			}
			return stageResult{vector: out, removed: removed}
		},
	}
}

// #endregion allowlist

// #region completion
// completionStage fills missing or non-finite values with the group default.
func completionStage() Stage {
	return Stage{
		Name: "complete",
		run: func(st *groupState, v params.Vector) stageResult {
			out := params.NewKeyed(st.db)
			var added []string
			for _, k := range st.db.SortedKeys() {
				x, ok := v[k]
				if !ok || !params.IsFinite(x) {
					x = DefaultValue(st.group, st.db[k])
					added = append(added, k)
				}
				// Keys come from the DB universe and x is finite, so Set cannot fail.
				_ = out.Set(k, x)
			}
			return stageResult{vector: out.Vector(), added: added}
		},
	}
}

// DefaultValue is the value substituted for a missing key: shape keys take 0 and
// limb keys take 1.0 when the range admits it, otherwise the range midpoint.
func DefaultValue(g params.Group, r params.Range) float64 {
	preferred := 0.0
	if g == params.GroupLimb {
		preferred = limbBaseline
	}
	if r.Contains(preferred) {
		return preferred
	}
	return r.Midpoint()
}

// #endregion completion

// #region envelope
// envelopeStage clamps keys into their K5 range. Moves at or below epsilon are applied silently.
// Keys whose K5 range cannot hold their gender target are left to the gender stage.
func envelopeStage() Stage {
	return Stage{
		Name:     "envelope_clamp",
		Priority: PriorityEnvelope,
		run: func(st *groupState, v params.Vector) stageResult {
			out := v.Clone()
			var records []params.Violation
			for _, k := range v.SortedKeys() {
				r, ok := st.k5[k]
				if !ok || !r.Valid() {
					continue
				}
				if _, conflict := st.genderConflict(k, r); conflict {
					continue
				}
				orig := v[k]
				clamped := r.Clamp(orig)
				out[k] = clamped
				if math.Abs(clamped-orig) > st.epsilon {
					records = append(records, params.Violation{
						Key:       k,
						Group:     st.group,
						Original:  orig,
						Corrected: clamped,
						Source:    params.SourceEnvelope,
						Reason:    fmt.Sprintf("outside k5 envelope [%.4f, %.4f]", r.Min, r.Max),
						Priority:  PriorityEnvelope,
					})
				}
			}
			return stageResult{vector: out, records: records}
		},
	}
}

// #endregion envelope

// #region db
// dbStage clamps every key into its DB range and records any change.
func dbStage(name string, priority int, reason string) Stage {
	return Stage{
		Name:     name,
		Priority: priority,
		run: func(st *groupState, v params.Vector) stageResult {
			out := v.Clone()
			var records []params.Violation
			for _, k := range v.SortedKeys() {
				r := st.db[k]
				orig := v[k]
				clamped := r.Clamp(orig)
				if clamped == orig {
					continue
				}
				out[k] = clamped
				records = append(records, params.Violation{
					Key:       k,
					Group:     st.group,
					Original:  orig,
					Corrected: clamped,
					Source:    params.SourceDB,
					Reason:    fmt.Sprintf("%s [%.4f, %.4f]", reason, r.Min, r.Max),
					Priority:  priority,
				})
			}
			return stageResult{vector: out, records: records}
		},
	}
}

// #endregion db

// #region gender
// genderStage applies the explicit per-gender bans and ceilings. Targets are kept
// inside DB so the range invariant still holds.
func genderStage() Stage {
	return Stage{
		Name:     "gender",
		Priority: PriorityGender,
		run: func(st *groupState, v params.Vector) stageResult {
			out := v.Clone()
			if st.group != params.GroupShape {
				return stageResult{vector: out}
			}
			c := st.input.Constraints
			var records []params.Violation
			record := func(k string, orig, corrected float64, reason string) {
				out[k] = corrected
				records = append(records, params.Violation{
					Key:       k,
					Group:     st.group,
					Original:  orig,
					Corrected: corrected,
					Source:    params.SourceGender,
					Reason:    reason,
					Priority:  PriorityGender,
				})
			}

			for _, k := range c.BannedKeys() {
				orig, ok := out[k]
				if !ok {
					continue
				}
				target := st.db[k].Clamp(c.Banned[k])
				if orig != target {
					record(k, orig, target, fmt.Sprintf("banned for %s", c.Gender))
				}
			}
			for _, k := range c.CeilingKeys() {
				orig, ok := out[k]
				if !ok {
					continue
				}
				ceiling := st.db[k].Clamp(c.Ceilings[k])
				if orig > ceiling {
					record(k, orig, ceiling, fmt.Sprintf("exceeds %s ceiling %.4f", c.Gender, ceiling))
				}
			}
			return stageResult{vector: out, records: records}
		},
	}
}

// genderConflict reports whether k's K5 range r excludes the value the gender stage
// forces: a banned target outside r or a ceiling below r.Min.
func (st *groupState) genderConflict(k string, r params.Range) (string, bool) {
	if st.group != params.GroupShape {
		return "", false
	}
	c := st.input.Constraints
	if t, ok := c.Banned[k]; ok {
		target := st.db[k].Clamp(t)
		if !r.Contains(target) {
			return fmt.Sprintf("banned for %s at %.4f", c.Gender, target), true
		}
		return "", false
	}
	if t, ok := c.Ceilings[k]; ok {
		ceiling := st.db[k].Clamp(t)
		if ceiling < r.Min {
			return fmt.Sprintf("%s ceiling %.4f", c.Gender, ceiling), true
		}
	}
	return "", false
}

// #endregion gender

// #region coherence
// coherenceStage evaluates the rule table in order; each rule sees the output of the previous one.
func coherenceStage() Stage {
	return Stage{
		Name:     "coherence",
		Priority: PriorityCoherence,
		run: func(st *groupState, v params.Vector) stageResult {
			out := v.Clone()
			var records []params.Violation
			for _, rule := range st.rules {
				if rule.Group != st.group {
					continue
				}
				records = append(records, rule.Apply(st.input.Classification, out, st.k5, st.db)...)
			}
			return stageResult{vector: out, records: records}
		},
	}
}

// #endregion coherence
