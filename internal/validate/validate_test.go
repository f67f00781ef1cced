package validate

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"testing"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// #region helpers
func baseDB() params.BoundSet {
	return params.BoundSet{
		Shape: params.Envelope{
			"w":          {Min: -1, Max: 1},
			"bodyFat":    {Min: -1, Max: 1},
			"muscleSize": {Min: -1, Max: 1},
			"pregnant":   {Min: 0, Max: 1},
			"breastSize": {Min: -1, Max: 1},
			"height":     {Min: 0.2, Max: 0.8},
		},
		Limb: params.Envelope{
			"gate":     {Min: 1, Max: 1},
			"leftArm":  {Min: 0.5, Max: 1.5},
			"rightArm": {Min: 1.2, Max: 1.6},
		},
	}
}

func input(shape, limb params.Vector, k5, db params.BoundSet, gender params.Gender, c params.Classification) Input {
	return Input{
		Shape:          shape,
		Limb:           limb,
		K5:             k5,
		DB:             db,
		Constraints:    params.DeriveConstraints(gender, db, params.DefaultGenderRules()),
		Classification: c,
	}
}

func keysOf(e params.Envelope) []string { return e.SortedKeys() }

// #endregion helpers

// #region scenarios
func TestEnvelopeClampScenario(t *testing.T) {
	db := params.BoundSet{
		Shape: params.Envelope{"w": {Min: -1, Max: 1}},
		Limb:  params.Envelope{"gate": {Min: 1, Max: 1}},
	}
	k5 := params.BoundSet{Shape: params.Envelope{"w": {Min: -0.5, Max: 0.3}}}

	res, err := New(DefaultConfig()).Validate(input(
		params.Vector{"w": 0.9}, params.Vector{"gate": 1.0}, k5, db, params.GenderFemale, params.Classification{}))
	require.NoError(t, err)

	assert.Equal(t, 0.3, res.Shape["w"])
	assert.Equal(t, []string{"w"}, res.Audit.KeysBySource(params.SourceEnvelope))
	assert.Empty(t, res.Audit.KeysBySource(params.SourceDB))
	assert.Empty(t, res.Audit.EnvelopeExceptions)
}

func TestFixedGateScenario(t *testing.T) {
	db := params.BoundSet{
		Shape: params.Envelope{"w": {Min: -1, Max: 1}},
		Limb:  params.Envelope{"gate": {Min: 1, Max: 1}},
	}

	res, err := New(DefaultConfig()).Validate(input(
		params.Vector{"w": 0}, params.Vector{"gate": 0.7}, params.BoundSet{}, db, params.GenderFemale, params.Classification{}))
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.Limb["gate"])
	assert.Contains(t, res.Audit.ClampedKeys(), "gate")
	assert.Equal(t, 1, res.Audit.OutOfRangeCount())
}

func TestGatePinnedEvenWhenDBAllowsRange(t *testing.T) {
	db := params.BoundSet{
		Shape: params.Envelope{"w": {Min: -1, Max: 1}},
		Limb:  params.Envelope{"gate": {Min: 0.5, Max: 1.5}},
	}

	res, err := New(DefaultConfig()).Validate(input(
		params.Vector{"w": 0}, params.Vector{"gate": 0.7}, params.BoundSet{}, db, params.GenderFemale, params.Classification{}))
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.Limb["gate"])
	assert.Equal(t, []string{"gate"}, res.Audit.KeysBySource(params.SourceCoherence))
}

func TestMasculinePregnantScenario(t *testing.T) {
	res, err := New(DefaultConfig()).Validate(input(
		params.Vector{"pregnant": 0.4, "breastSize": 0.9}, params.Vector{}, params.BoundSet{}, baseDB(),
		params.GenderMale, params.Classification{}))
	require.NoError(t, err)

	assert.Equal(t, 0.0, res.Shape["pregnant"])
	assert.Equal(t, 0.2, res.Shape["breastSize"])
	assert.Equal(t, []string{"breastSize", "pregnant"}, res.Audit.KeysBySource(params.SourceGender))
}

func TestFeminineKeepsPregnant(t *testing.T) {
	res, err := New(DefaultConfig()).Validate(input(
		params.Vector{"pregnant": 0.4}, params.Vector{}, params.BoundSet{}, baseDB(),
		params.GenderFemale, params.Classification{}))
	require.NoError(t, err)

	assert.Equal(t, 0.4, res.Shape["pregnant"])
	assert.Empty(t, res.Audit.KeysBySource(params.SourceGender))
}

func TestSevereObesityOverridesMuscle(t *testing.T) {
	k5 := params.BoundSet{Shape: params.Envelope{"muscleSize": {Min: 0, Max: 0.4}}}

	res, err := New(DefaultConfig()).Validate(input(
		params.Vector{"muscleSize": 0.9, "bodyFat": 0.9}, params.Vector{}, k5, baseDB(),
		params.GenderFemale, params.Classification{Obesity: "severe"}))
	require.NoError(t, err)

	assert.InDelta(t, 0.04, res.Shape["muscleSize"], 1e-12)
	assert.Equal(t, 0.9, res.Shape["bodyFat"], "adiposity stays high")

	var reasons []string
	for _, r := range res.Audit.Records {
		if r.Key == "muscleSize" && r.Source == params.SourceCoherence {
			reasons = append(reasons, r.Reason)
		}
	}
	require.Len(t, reasons, 1)
	assert.Contains(t, reasons[0], "obesity")
}

// #endregion scenarios

// #region coherence
func TestAdiposityCapsMuscleWithoutClassification(t *testing.T) {
	k5 := params.BoundSet{Shape: params.Envelope{"muscleSize": {Min: 0, Max: 1}}}

	res, err := New(DefaultConfig()).Validate(input(
		params.Vector{"muscleSize": 0.9, "bodyFat": 0.7}, params.Vector{}, k5, baseDB(),
		params.GenderFemale, params.Classification{}))
	require.NoError(t, err)

	assert.InDelta(t, 0.3, res.Shape["muscleSize"], 1e-12)
	// muscle is no longer above 0.6 when the adiposity rule runs, so bodyFat is left alone.
	assert.Equal(t, 0.7, res.Shape["bodyFat"])
}

func TestMuscleCapsAdiposity(t *testing.T) {
	res, err := New(DefaultConfig()).Validate(input(
		params.Vector{"muscleSize": 0.9, "bodyFat": 0.4}, params.Vector{}, params.BoundSet{}, baseDB(),
		params.GenderFemale, params.Classification{}))
	require.NoError(t, err)

	// No K5 for bodyFat, so the target falls back to DB: -1 + 0.3*2.
	assert.InDelta(t, -0.4, res.Shape["bodyFat"], 1e-12)
	assert.Equal(t, 0.9, res.Shape["muscleSize"])
}

func TestNarrowWaistCappedWhenOverweight(t *testing.T) {
	db := baseDB()
	db.Shape["waistNarrow"] = params.Range{Min: -1, Max: 1}
	k5 := params.BoundSet{Shape: params.Envelope{"waistNarrow": {Min: 0, Max: 0.5}}}

	res, err := New(DefaultConfig()).Validate(input(
		params.Vector{"waistNarrow": 0.4}, params.Vector{}, k5, db,
		params.GenderFemale, params.Classification{Obesity: "overweight"}))
	require.NoError(t, err)

	assert.Equal(t, -0.1, res.Shape["waistNarrow"])
	require.Len(t, res.Audit.EnvelopeExceptions, 1)
	exc := res.Audit.EnvelopeExceptions[0]
	assert.Equal(t, "waistNarrow", exc.Key)
	assert.Equal(t, params.SourceCoherence, exc.Source)
	assert.Contains(t, exc.Reason, "no_narrow_waist")
}

func TestEmaciationCaps(t *testing.T) {
	db := baseDB()
	db.Shape["skinny"] = params.Range{Min: 0, Max: 1}
	k5 := params.BoundSet{Shape: params.Envelope{"bodyFat": {Min: -0.2, Max: 0.5}}}

	res, err := New(DefaultConfig()).Validate(input(
		params.Vector{"skinny": 0.8, "bodyFat": 0.3, "muscleSize": 0.2}, params.Vector{}, k5, db,
		params.GenderFemale, params.Classification{}))
	require.NoError(t, err)

	assert.Equal(t, -0.2, res.Shape["bodyFat"])
	assert.Equal(t, -1.0, res.Shape["muscleSize"])
}

func TestRuleApplyIsIndependent(t *testing.T) {
	rule := Rule{
		Name:   "cap",
		Group:  params.GroupShape,
		Keys:   []string{"a", "absent"},
		Target: Target{Source: TargetEnvelope, Fraction: 0.5},
		Mode:   ModeCap,
		Reason: "test",
	}
	v := params.Vector{"a": 0.9}
	records := rule.Apply(params.Classification{}, v, params.Envelope{"a": {Min: 0, Max: 0.4}}, params.Envelope{})

	require.Len(t, records, 1)
	assert.Equal(t, 0.2, v["a"])
	assert.Equal(t, "cap: test", records[0].Reason)
	assert.Equal(t, PriorityCoherence, records[0].Priority)

	// Already below the cap.
	assert.Empty(t, rule.Apply(params.Classification{}, v, params.Envelope{"a": {Min: 0, Max: 0.4}}, params.Envelope{}))
}

func TestRuleSkippedWhenPredicateFalse(t *testing.T) {
	rule := Rule{
		Keys:   []string{"a"},
		When:   func(params.Classification, params.Vector) bool { return false },
		Target: Target{Source: TargetAbsolute, Value: 0},
	}
	v := params.Vector{"a": 1}
	assert.Nil(t, rule.Apply(params.Classification{}, v, nil, nil))
	assert.Equal(t, 1.0, v["a"])
}

// #endregion coherence

// #region universe
func TestMissingAndExtraKeys(t *testing.T) {
	res, err := New(DefaultConfig()).Validate(input(
		params.Vector{"w": 0.1, "tail": 0.5}, params.Vector{"leftArm": math.NaN(), "wing": 2}, params.BoundSet{}, baseDB(),
		params.GenderFemale, params.Classification{}))
	require.NoError(t, err)

	assert.Equal(t, keysOf(baseDB().Shape), res.Shape.SortedKeys())
	assert.Equal(t, keysOf(baseDB().Limb), res.Limb.SortedKeys())
	assert.ElementsMatch(t, []string{"tail", "wing"}, res.Audit.ExtraKeysRemoved)
	assert.Contains(t, res.Audit.MissingKeysAdded, "leftArm")
	assert.Contains(t, res.Audit.MissingKeysAdded, "height")

	assert.Equal(t, 0.0, res.Shape["bodyFat"])
	assert.Equal(t, 0.5, res.Shape["height"], "0 outside range, midpoint used")
	assert.Equal(t, 1.0, res.Limb["leftArm"], "limb baseline")
	assert.InDelta(t, 1.4, res.Limb["rightArm"], 1e-12, "1.0 outside range, midpoint used")
}

func TestDefaultValue(t *testing.T) {
	assert.Equal(t, 0.0, DefaultValue(params.GroupShape, params.Range{Min: -1, Max: 1}))
	assert.Equal(t, 0.5, DefaultValue(params.GroupShape, params.Range{Min: 0.2, Max: 0.8}))
	assert.Equal(t, 1.0, DefaultValue(params.GroupLimb, params.Range{Min: 0.5, Max: 1.5}))
	assert.Equal(t, -0.25, DefaultValue(params.GroupLimb, params.Range{Min: -1, Max: 0.5}))
}

func TestInvalidDBIsFatal(t *testing.T) {
	v := New(DefaultConfig())

	_, err := v.Validate(Input{DB: params.BoundSet{Limb: params.Envelope{"gate": {Min: 1, Max: 1}}}})
	require.ErrorIs(t, err, params.ErrEmptyUniverse)

	_, err = v.Validate(Input{DB: params.BoundSet{
		Shape: params.Envelope{"w": {Min: 1, Max: -1}},
		Limb:  params.Envelope{"gate": {Min: 1, Max: 1}},
	}})
	require.ErrorIs(t, err, params.ErrInvalidRange)
}

func TestInvertedK5RangeIgnored(t *testing.T) {
	k5 := params.BoundSet{Shape: params.Envelope{"w": {Min: 0.5, Max: -0.5}}}

	res, err := New(DefaultConfig()).Validate(input(
		params.Vector{"w": 0.9}, params.Vector{}, k5, baseDB(), params.GenderFemale, params.Classification{}))
	require.NoError(t, err)
	assert.Equal(t, 0.9, res.Shape["w"])
	assert.Empty(t, res.Audit.EnvelopeExceptions)
}

func TestK5OutsideDBRecordsException(t *testing.T) {
	k5 := params.BoundSet{Shape: params.Envelope{"height": {Min: 0.9, Max: 1.2}}}

	res, err := New(DefaultConfig()).Validate(input(
		params.Vector{"height": 0.5}, params.Vector{}, k5, baseDB(), params.GenderFemale, params.Classification{}))
	require.NoError(t, err)

	assert.Equal(t, 0.8, res.Shape["height"])
	assert.Equal(t, []string{"height"}, res.Audit.KeysBySource(params.SourceDB))
	require.Len(t, res.Audit.EnvelopeExceptions, 1)
	assert.Equal(t, params.SourceDB, res.Audit.EnvelopeExceptions[0].Source)
}

func TestSmallEnvelopeMoveNotRecorded(t *testing.T) {
	k5 := params.BoundSet{Shape: params.Envelope{"w": {Min: -0.5, Max: 0.3}}}

	res, err := New(DefaultConfig()).Validate(input(
		params.Vector{"w": 0.3005}, params.Vector{}, k5, baseDB(), params.GenderFemale, params.Classification{}))
	require.NoError(t, err)
	assert.Equal(t, 0.3, res.Shape["w"])
	assert.Empty(t, res.Audit.KeysBySource(params.SourceEnvelope))
}

func TestStagesOrder(t *testing.T) {
	assert.Equal(t,
		[]string{"allowlist", "complete", "envelope_clamp", "db_clamp", "gender", "coherence", "db_reclamp"},
		New(Config{}).Stages())
}

// #endregion universe

// #region properties
// randomCase builds a DB/K5 pair whose coherence and gender targets all lie inside K5,
// which is the condition under which a second pass is a fixed point.
func randomCase(rng *rand.Rand) Input {
	db := params.BoundSet{Shape: params.Envelope{}, Limb: params.Envelope{"gate": {Min: 1, Max: 1}}}
	k5 := params.BoundSet{Shape: params.Envelope{}, Limb: params.Envelope{}}
	shape := params.Vector{}
	limb := params.Vector{}

	for i := 0; i < 12; i++ {
		k := fmt.Sprintf("s%02d", i)
		lo := -rng.Float64()
		hi := rng.Float64()
		db.Shape[k] = params.Range{Min: lo, Max: hi}
		if rng.Intn(2) == 0 {
			a := lo + rng.Float64()*(hi-lo)
			b := lo + rng.Float64()*(hi-lo)
			k5.Shape[k] = params.Range{Min: math.Min(a, b), Max: math.Max(a, b)}
		}
		switch rng.Intn(4) {
		case 0: // missing
		case 1:
			shape[k] = math.NaN()
		default:
			shape[k] = (rng.Float64() - 0.5) * 4
		}
	}
	for _, k := range []string{"bodyFat", "muscleSize", "muscleDefinition"} {
		db.Shape[k] = params.Range{Min: -1, Max: 1}
		shape[k] = (rng.Float64() - 0.5) * 4
	}
	for i := 0; i < 6; i++ {
		k := fmt.Sprintf("l%02d", i)
		db.Limb[k] = params.Range{Min: 0.5 + rng.Float64()*0.4, Max: 1.1 + rng.Float64()*0.5}
		if rng.Intn(3) > 0 {
			limb[k] = rng.Float64() * 3
		}
	}
	limb["gate"] = rng.Float64() * 2
	shape["extra"] = 1
	limb["extraLimb"] = 1

	gender := params.GenderFemale
	if rng.Intn(2) == 0 {
		gender = params.GenderMale
	}
	obesity := []string{"", "normal", "obese", "severe"}[rng.Intn(4)]
	return input(shape, limb, k5, db, gender, params.Classification{Obesity: obesity})
}

func TestInvariantsHoldForRandomInputs(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	v := New(DefaultConfig())

	for i := 0; i < 200; i++ {
		in := randomCase(rng)
		res, err := v.Validate(in)
		require.NoError(t, err)

		for _, g := range params.Groups {
			db := in.DB.For(g)
			out := res.For(g)
			require.Equal(t, keysOf(db), out.SortedKeys(), "case %d %s keys", i, g)
			for k, x := range out {
				require.True(t, params.IsFinite(x), "case %d %s not finite", i, k)
				require.True(t, db[k].Contains(x), "case %d %s=%v outside db %v", i, k, x, db[k])
			}
			exceptions := map[string]bool{}
			for _, e := range res.Audit.EnvelopeExceptions {
				exceptions[e.Key] = true
				assert.NotEmpty(t, e.Reason)
			}
			for k, r := range in.K5.For(g) {
				if !r.Contains(out[k]) {
					require.True(t, exceptions[k], "case %d %s outside k5 without exception", i, k)
				}
			}
		}
		for k, fixed := range in.Constraints.Fixed {
			got, ok := res.Shape[k]
			if !ok {
				got = res.Limb[k]
			}
			require.Equal(t, fixed, got, "case %d fixed %s", i, k)
		}
		assert.Equal(t, 1.0, res.Limb["gate"])
	}
}

func TestSecondPassIsFixedPoint(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	v := New(DefaultConfig())

	for i := 0; i < 200; i++ {
		in := randomCase(rng)
		first, err := v.Validate(in)
		require.NoError(t, err)

		in.Shape, in.Limb = first.Shape, first.Limb
		second, err := v.Validate(in)
		require.NoError(t, err)

		assert.Empty(t, second.Audit.ClampedKeys(), "case %d", i)
		assert.Empty(t, second.Audit.MissingKeysAdded, "case %d", i)
		assert.Empty(t, second.Audit.ExtraKeysRemoved, "case %d", i)
		assert.Equal(t, first.Shape, second.Shape)
		assert.Equal(t, first.Limb, second.Limb)
	}
}

func TestGenderTargetOutsideK5IsFixedPoint(t *testing.T) {
	db := baseDB()
	db.Shape["hipWidth"] = params.Range{Min: -1, Max: 1}
	k5 := params.BoundSet{Shape: params.Envelope{
		"hipWidth": {Min: 0.5, Max: 0.8},
		"pregnant": {Min: 0.3, Max: 0.6},
	}}
	v := New(DefaultConfig())

	in := input(params.Vector{"hipWidth": 0.9, "pregnant": 0.5}, params.Vector{}, k5, db,
		params.GenderMale, params.Classification{})
	first, err := v.Validate(in)
	require.NoError(t, err)
	assert.Equal(t, 0.4, first.Shape["hipWidth"])
	assert.Equal(t, 0.0, first.Shape["pregnant"])
	assert.Equal(t, []string{"hipWidth", "pregnant"}, first.Audit.KeysBySource(params.SourceGender))
	assert.Empty(t, first.Audit.KeysBySource(params.SourceEnvelope))

	in.Shape, in.Limb = first.Shape, first.Limb
	second, err := v.Validate(in)
	require.NoError(t, err)
	assert.Empty(t, second.Audit.ClampedKeys())
	assert.Equal(t, first.Shape, second.Shape)

	require.Len(t, second.Audit.EnvelopeExceptions, 2)
	for _, exc := range second.Audit.EnvelopeExceptions {
		assert.Equal(t, params.SourceGender, exc.Source, exc.Key)
		assert.Contains(t, exc.Reason, "conflicts with", exc.Key)
	}
}

func TestMasculineConstraintsHoldForLargeInputs(t *testing.T) {
	v := New(DefaultConfig())
	for _, x := range []float64{-50, 0.5, 1, 50, math.Inf(1)} {
		res, err := v.Validate(input(
			params.Vector{"pregnant": x, "breastSize": x}, params.Vector{}, params.BoundSet{}, baseDB(),
			params.GenderMale, params.Classification{}))
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.Shape["pregnant"])
		assert.LessOrEqual(t, res.Shape["breastSize"], 0.2)
	}
}

func TestCoherenceReasonsNameRule(t *testing.T) {
	for _, r := range DefaultRules(DefaultRuleConfig()) {
		assert.NotEmpty(t, r.Reason, r.Name)
		assert.False(t, strings.Contains(r.Name, " "), r.Name)
	}
}

// #endregion properties
