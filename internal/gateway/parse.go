package gateway

import (
	"bytes"
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
)

const (
	fieldShape = "final_shape_params"
	fieldLimb  = "final_limb_masses"

	// DefaultConfidence is reported when the model omits a usable confidence.
	DefaultConfidence = 0.8
)

var diagnosticFields = []string{"reasoning", "warnings", "adjustments"}

// Bare NaN/Infinity tokens are invalid JSON. Rewriting them to null lets the
// value check report the offending key instead of a generic syntax error.
var nonFiniteToken = regexp.MustCompile(`([:\[,]\s*)[-+]?(NaN|Infinity)\b`)

// #region parse
// Parse turns a completion into a typed candidate. It never panics; every failure is a *GatewayError.
func Parse(c Completion) (Candidate, error) {
	text := strings.TrimSpace(c.Text)
	if text == "" {
		if c.Truncated {
			return Candidate{}, newError(KindCapacityExhausted, "",
				"finish reason %s with no content (thought tokens %d)", c.FinishReason, c.ThoughtTokens)
		}
		return Candidate{}, newError(KindEmptyResponse, "", "finish reason %q", c.FinishReason)
	}

	body, ok := stripCodeFences(text)
	if !ok {
		return Candidate{}, newError(KindMarkdownStripFailure, "", "code fence has no content")
	}

	obj, err := outermostObject(body)
	if err != nil {
		return Candidate{}, err
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(obj, &top); err != nil {
		return Candidate{}, newError(KindSyntaxError, "", "%v", err)
	}

	shape, err := parseVector(top, fieldShape)
	if err != nil {
		return Candidate{}, err
	}
	limb, err := parseVector(top, fieldLimb)
	if err != nil {
		return Candidate{}, err
	}

	cand := Candidate{
		Shape:      shape,
		Limb:       limb,
		Confidence: parseConfidence(top["confidence"]),
	}
	arrays := make(map[string][]string, len(diagnosticFields))
	for _, f := range diagnosticFields {
		arrays[f] = parseStrings(top[f])
	}
	cand.Reasoning = arrays["reasoning"]
	cand.Warnings = arrays["warnings"]
	cand.Adjustments = arrays["adjustments"]
	return cand, nil
}

// #endregion parse

// #region fences
// stripCodeFences removes a surrounding ``` fence and its optional language tag, which
// may share a line with the content. ok is false when no object remains inside the fence.
func stripCodeFences(s string) (string, bool) {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed, true
	}
	rest := strings.TrimLeftFunc(trimmed[3:], func(r rune) bool {
		return r != '{' && !unicode.IsSpace(r)
	})
	if end := strings.LastIndex(rest, "```"); end != -1 {
		rest = rest[:end]
	}
	rest = strings.TrimSpace(rest)
	return rest, strings.Contains(rest, "{")
}

// outermostObject slices from the first '{' to the last '}', dropping surrounding prose.
func outermostObject(s string) ([]byte, error) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end < start {
		return nil, newError(KindSyntaxError, "", "no json object in response")
	}
	return nullNonFinite([]byte(s[start : end+1])), nil
}

// nullNonFinite rewrites bare NaN/Infinity tokens to null. String literals are copied untouched.
func nullNonFinite(b []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(b))
	start := 0
	inString, escaped := false, false
	for i, ch := range b {
		switch {
		case inString && escaped:
			escaped = false
		case inString && ch == '\\':
			escaped = true
		case inString && ch == '"':
			inString = false
			out.Write(b[start : i+1])
			start = i + 1
		case !inString && ch == '"':
			out.Write(nonFiniteToken.ReplaceAll(b[start:i], []byte("${1}null")))
			start = i
			inString = true
		}
	}
	if inString {
		out.Write(b[start:])
	} else {
		out.Write(nonFiniteToken.ReplaceAll(b[start:], []byte("${1}null")))
	}
	return out.Bytes()
}

// #endregion fences

// #region fields
func parseVector(top map[string]json.RawMessage, field string) (params.Vector, error) {
	raw, ok := top[field]
	if !ok || isNull(raw) {
		return nil, newError(KindMissingField, field, "")
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, newError(KindMissingField, field, "not an object: %v", err)
	}
	if len(m) == 0 {
		return nil, newError(KindEmptyObject, field, "")
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(params.Vector, len(m))
	for _, k := range keys {
		x, ok := finiteNumber(m[k])
		if !ok {
			return nil, newError(KindNonFiniteValue, field+"."+k, "value %s", strings.TrimSpace(string(m[k])))
		}
		out[k] = x
	}
	return out, nil
}

// finiteNumber accepts only JSON numbers that fit a finite float64.
func finiteNumber(raw json.RawMessage) (float64, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	n, ok := v.(json.Number)
	if !ok {
		return 0, false
	}
	f, err := n.Float64()
	if err != nil || !params.IsFinite(f) {
		return 0, false
	}
	return f, true
}

func parseConfidence(raw json.RawMessage) float64 {
	if raw == nil {
		return DefaultConfidence
	}
	c, ok := finiteNumber(raw)
	if !ok {
		return DefaultConfidence
	}
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

// parseStrings reads a diagnostic array. Anything malformed yields an empty list.
func parseStrings(raw json.RawMessage) []string {
	out := []string{}
	var items []json.RawMessage
	if raw == nil || json.Unmarshal(raw, &items) != nil {
		return out
	}
	for _, it := range items {
		var s string
		if !isNull(it) && json.Unmarshal(it, &s) == nil {
			out = append(out, s)
		}
	}
	return out
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

// #endregion fields
