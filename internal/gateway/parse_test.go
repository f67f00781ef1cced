package gateway

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validBody = `{"final_shape_params": {"w": 0.25, "bodyFat": -0.1}, "final_limb_masses": {"gate": 1.0, "leftArm": 1.05}, "confidence": 0.9, "reasoning": ["ok"]}`

func requireKind(t *testing.T, err error, want ParseErrorKind) *GatewayError {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrGateway), "not a gateway error: %v", err)
	var ge *GatewayError
	require.ErrorAs(t, err, &ge)
	require.Equal(t, want, ge.Kind, err.Error())
	return ge
}

// #region success
func TestParseValid(t *testing.T) {
	c, err := Parse(Completion{Text: validBody, FinishReason: "STOP"})
	require.NoError(t, err)

	assert.Equal(t, 0.25, c.Shape["w"])
	assert.Equal(t, 1.05, c.Limb["leftArm"])
	assert.Equal(t, 0.9, c.Confidence)
	assert.Equal(t, []string{"ok"}, c.Reasoning)
	assert.Equal(t, []string{}, c.Warnings)
	assert.Equal(t, []string{}, c.Adjustments)
}

func TestParseStripsFencesAndProse(t *testing.T) {
	for name, text := range map[string]string{
		"json fence":    "```json\n" + validBody + "\n```",
		"bare fence":    "```\n" + validBody + "\n```",
		"unclosed":      "```json\n" + validBody,
		"inline fence":  "```json " + validBody + "```",
		"inline bare":   "```" + validBody + "```",
		"tag then wrap": "```json {\"final_shape_params\": {\"w\": 0.25},\n\"final_limb_masses\": {\"gate\": 1}}\n```",
		"prose around":  "Here is the refined vector:\n" + validBody + "\nLet me know if you need more.",
	} {
		t.Run(name, func(t *testing.T) {
			c, err := Parse(Completion{Text: text})
			require.NoError(t, err)
			assert.Equal(t, 0.25, c.Shape["w"])
		})
	}
}

func TestParseConfidenceDefaults(t *testing.T) {
	cases := map[string]float64{
		`"confidence": 1.7`:    1,
		`"confidence": -3`:     0,
		`"confidence": "high"`: DefaultConfidence,
		`"confidence": null`:   DefaultConfidence,
		`"other": 1`:           DefaultConfidence,
		`"confidence": 0.35`:   0.35,
	}
	for frag, want := range cases {
		text := `{"final_shape_params": {"w": 0}, "final_limb_masses": {"gate": 1}, ` + frag + `}`
		c, err := Parse(Completion{Text: text})
		require.NoError(t, err, frag)
		assert.Equal(t, want, c.Confidence, frag)
	}
}

func TestParseDiagnosticsNeverFatal(t *testing.T) {
	text := `{"final_shape_params": {"w": 0}, "final_limb_masses": {"gate": 1},
		"reasoning": "not a list", "warnings": [1, "keep", null, {"a": 1}], "adjustments": null}`
	c, err := Parse(Completion{Text: text})
	require.NoError(t, err)

	assert.Equal(t, []string{}, c.Reasoning)
	assert.Equal(t, []string{"keep"}, c.Warnings)
	assert.Equal(t, []string{}, c.Adjustments)
}

// #endregion success

// #region failures
func TestParseCapacityExhausted(t *testing.T) {
	_, err := Parse(Completion{Text: "  ", FinishReason: "MAX_TOKENS", Truncated: true, ThoughtTokens: 8192})
	requireKind(t, err, KindCapacityExhausted)
}

func TestParseEmptyWithoutTruncation(t *testing.T) {
	_, err := Parse(Completion{FinishReason: "STOP"})
	requireKind(t, err, KindEmptyResponse)
}

func TestParseFenceWithoutContent(t *testing.T) {
	for _, text := range []string{"```json\n```", "```json```", "```\nno object here\n```"} {
		_, err := Parse(Completion{Text: text})
		requireKind(t, err, KindMarkdownStripFailure)
	}
}

func TestParseSyntaxErrors(t *testing.T) {
	for _, text := range []string{
		"I cannot help with that.",
		`{"final_shape_params": {"w": 0.1,}`,
		`} backwards {`,
	} {
		_, err := Parse(Completion{Text: text})
		requireKind(t, err, KindSyntaxError)
	}
}

func TestParseMissingField(t *testing.T) {
	ge := requireKind(t, mustFail(`{"final_shape_params": {"w": 0}}`), KindMissingField)
	assert.Equal(t, "final_limb_masses", ge.Field)

	ge = requireKind(t, mustFail(`{"final_shape_params": null, "final_limb_masses": {"gate": 1}}`), KindMissingField)
	assert.Equal(t, "final_shape_params", ge.Field)

	requireKind(t, mustFail(`{"final_shape_params": [1, 2], "final_limb_masses": {"gate": 1}}`), KindMissingField)
}

func TestParseEmptyObject(t *testing.T) {
	ge := requireKind(t, mustFail(`{"final_shape_params": {}, "final_limb_masses": {"gate": 1}}`), KindEmptyObject)
	assert.Equal(t, "final_shape_params", ge.Field)
}

func TestParseNonFinite(t *testing.T) {
	for _, v := range []string{`NaN`, `-Infinity`, `"0.5"`, `null`, `1e999`, `true`} {
		text := `{"final_shape_params": {"w": 0, "z": ` + v + `}, "final_limb_masses": {"gate": 1}}`
		ge := requireKind(t, mustFail(text), KindNonFiniteValue)
		assert.Equal(t, "final_shape_params.z", ge.Field, v)
	}
}

func TestParseNonFiniteInsideStringsKept(t *testing.T) {
	text := `{"final_shape_params": {"w": 0}, "final_limb_masses": {"gate": 1},
		"reasoning": ["ratio: NaN, Infinity", "escaped \" [NaN"], "warnings": ["-Infinity"]}`
	c, err := Parse(Completion{Text: text})
	require.NoError(t, err)
	assert.Equal(t, []string{"ratio: NaN, Infinity", `escaped " [NaN`}, c.Reasoning)
	assert.Equal(t, []string{"-Infinity"}, c.Warnings)
}

func mustFail(text string) error {
	_, err := Parse(Completion{Text: text})
	return err
}

// #endregion failures

func TestKindOf(t *testing.T) {
	kind, ok := KindOf(&GatewayError{Kind: KindSyntaxError})
	assert.True(t, ok)
	assert.Equal(t, KindSyntaxError, kind)

	_, ok = KindOf(errors.New("other"))
	assert.False(t, ok)
}
