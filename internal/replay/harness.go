package replay

import (
	"context"
	"fmt"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/validate"
)

// valueTolerance is the largest accepted difference between an expected and a final value.
const valueTolerance = 1e-9

// #region types

// CaseResult captures the outcome of replaying one case through the validator.
type CaseResult struct {
	Name     string
	Passed   bool
	Failures []string
	Err      error // set when the case could not be run at all
	Result   validate.Result
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	Total  int
	Passed int
	Failed int
	Errors int
}

// Harness replays cases against a validator. Concurrency below 1 runs cases one at a time.
type Harness struct {
	Validator   *validate.Validator
	GenderRules params.GenderRules
	Concurrency int
}

// #endregion types

// #region replay

// Replay runs cases with the default gender rules.
func Replay(ctx context.Context, cases []Case, v *validate.Validator, concurrency int) ([]CaseResult, error) {
	h := Harness{Validator: v, GenderRules: params.DefaultGenderRules(), Concurrency: concurrency}
	return h.Run(ctx, cases)
}

// Run replays every case and returns results in input order. A failing case never
// aborts the batch; only cancellation of ctx does.
func (h Harness) Run(ctx context.Context, cases []Case) ([]CaseResult, error) {
	v := h.Validator
	if v == nil {
		v = validate.New(validate.DefaultConfig())
	}
	rules := h.GenderRules
	if rules == nil {
		rules = params.DefaultGenderRules()
	}
	limit := h.Concurrency
	if limit < 1 {
		limit = 1
	}

	results := make([]CaseResult, len(cases))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range cases {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = runCase(v, rules, cases[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return results, nil
}

func runCase(v *validate.Validator, rules params.GenderRules, c Case) CaseResult {
	out := CaseResult{Name: c.Name}
	gender, err := params.ParseGender(c.Gender)
	if err != nil {
		out.Err = err
		return out
	}
	res, err := v.Validate(validate.Input{
		Shape:          c.Candidate.Shape,
		Limb:           c.Candidate.Limb,
		K5:             c.K5,
		DB:             c.DB,
		Constraints:    params.DeriveConstraints(gender, c.DB, rules),
		Classification: c.Classification,
	})
	if err != nil {
		out.Err = err
		return out
	}
	out.Result = res
	out.Failures = compare(c.Expect, res)
	out.Passed = len(out.Failures) == 0
	return out
}

// compare lists every mismatch between exp and res.
func compare(exp Expectation, res validate.Result) []string {
	var failures []string
	a := res.Audit
	lists := []struct {
		name string
		want []string
		got  []string
	}{
		{"clamped_keys", exp.ClampedKeys, a.ClampedKeys()},
		{"envelope_violations", exp.EnvelopeViolations, a.KeysBySource(params.SourceEnvelope)},
		{"db_violations", exp.DBViolations, a.KeysBySource(params.SourceDB)},
		{"gender_violations", exp.GenderViolations, a.KeysBySource(params.SourceGender)},
		{"missing_keys_added", exp.MissingKeysAdded, a.MissingKeysAdded},
		{"extra_keys_removed", exp.ExtraKeysRemoved, a.ExtraKeysRemoved},
	}
	for _, l := range lists {
		if l.want == nil {
			continue
		}
		if !sameSet(l.want, l.got) {
			failures = append(failures, fmt.Sprintf("%s: want %v, got %v", l.name, sorted(l.want), sorted(l.got)))
		}
	}

	for _, g := range params.Groups {
		want := exp.Values.Shape
		if g == params.GroupLimb {
			want = exp.Values.Limb
		}
		got := res.For(g)
		for _, k := range want.SortedKeys() {
			x, ok := got[k]
			if !ok {
				failures = append(failures, fmt.Sprintf("%s.%s: missing from output", g, k))
				continue
			}
			if math.Abs(x-want[k]) > valueTolerance {
				failures = append(failures, fmt.Sprintf("%s.%s: want %.6f, got %.6f", g, k, want[k], x))
			}
		}
	}
	return failures
}

func sameSet(a, b []string) bool {
	return slices.Equal(sorted(a), sorted(b))
}

func sorted(s []string) []string {
	out := slices.Clone(s)
	slices.Sort(out)
	return slices.Compact(out)
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []CaseResult) Summary {
	s := Summary{Total: len(results)}
	for _, r := range results {
		switch {
		case r.Err != nil:
			s.Errors++
		case r.Passed:
			s.Passed++
		default:
			s.Failed++
		}
	}
	return s
}

// #endregion replay
