package prompt

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
)

// #region types

// Input is everything the payload summarizes. Ratios are photo-derived proportions
// (hip_shoulder, waist_hip, ...); Measurements are optional user-supplied values.
type Input struct {
	BlendShape     params.Vector
	BlendLimb      params.Vector
	K5             params.BoundSet
	DB             params.BoundSet
	Constraints    params.GenderConstraints
	Classification params.Classification
	Ratios         map[string]float64
	Measurements   map[string]float64
}

// #endregion types

// #region narrow

const (
	narrowAbsolute = 0.1  // effective width below this is flagged
	narrowRelative = 0.15 // or below this fraction of the DB width
)

// effectiveRange is the K5 range when present and valid, otherwise DB.
func effectiveRange(key string, k5, db params.Envelope) params.Range {
	if r, ok := k5[key]; ok && r.Valid() {
		return r
	}
	return db[key]
}

// Narrow reports whether the usable range of key is unusually tight.
func Narrow(key string, k5, db params.Envelope) bool {
	r := effectiveRange(key, k5, db)
	if r.Width() < narrowAbsolute {
		return true
	}
	dbw := db[key].Width()
	return dbw > 0 && r.Width() < narrowRelative*dbw
}

// #endregion narrow

// #region build

// SystemInstruction is sent alongside every payload as the model's standing instruction.
const SystemInstruction = "You refine parametric body-shape estimates from photo analysis. " +
	"You answer with a single JSON object matching the requested schema. No prose, no markdown."

// Build renders the instruction payload. It is a pure function: keys are sorted and
// numbers use fixed precision, so identical inputs give byte-identical output.
func Build(in Input) string {
	var b strings.Builder

	b.WriteString("[TASK]\n")
	b.WriteString("Refine the blended body-shape estimate below. Return adjusted values for every listed key.\n")
	b.WriteString("Stay inside k5 ranges where possible and never leave db ranges.\n\n")

	writeClassification(&b, in.Classification)
	writeNumbers(&b, "[PHOTO RATIOS]", in.Ratios)
	writeNumbers(&b, "[USER MEASUREMENTS]", in.Measurements)
	writeConstraints(&b, in.Constraints)

	b.WriteString("[SHAPE PARAMETERS]\n")
	writeTable(&b, in.BlendShape, in.K5.Shape, in.DB.Shape, 0)
	b.WriteString("\n[LIMB MASSES]\n")
	writeTable(&b, in.BlendLimb, in.K5.Limb, in.DB.Limb, 1)

	if hs := Heuristics(in.Classification, in.Ratios); len(hs) > 0 {
		b.WriteString("\n[HEURISTICS]\n")
		for _, h := range hs {
			b.WriteString("- " + h + "\n")
		}
	}

	b.WriteString("\n[OUTPUT]\n")
	b.WriteString("Respond with one JSON object and nothing else:\n")
	b.WriteString(`{"final_shape_params": {"<key>": <number>}, "final_limb_masses": {"<key>": <number>}, `)
	b.WriteString(`"confidence": <0..1>, "reasoning": [<string>], "warnings": [<string>], "adjustments": [<string>]}`)
	b.WriteString("\n")
	return b.String()
}

func writeClassification(b *strings.Builder, c params.Classification) {
	b.WriteString("[CLASSIFICATION]\n")
	fmt.Fprintf(b, "obesity: %s (%s)\n", orUnknown(c.Obesity), c.AdiposityLevel())
	fmt.Fprintf(b, "muscularity: %s\n", orUnknown(c.Muscularity))
	fmt.Fprintf(b, "morphotype: %s\n", orUnknown(c.Morphotype))
	fmt.Fprintf(b, "overall: %s\n\n", orUnknown(c.Overall))
}

func writeNumbers(b *strings.Builder, header string, m map[string]float64) {
	if len(m) == 0 {
		return
	}
	b.WriteString(header + "\n")
	for _, k := range sortedKeys(m) {
		fmt.Fprintf(b, "%s: %s\n", k, num(m[k]))
	}
	b.WriteString("\n")
}

func writeConstraints(b *strings.Builder, c params.GenderConstraints) {
	fmt.Fprintf(b, "[CONSTRAINTS] gender=%s\n", orUnknown(string(c.Gender)))
	for _, k := range c.BannedKeys() {
		fmt.Fprintf(b, "banned %s = %s\n", k, num(c.Banned[k]))
	}
	for _, k := range c.CeilingKeys() {
		fmt.Fprintf(b, "ceiling %s <= %s\n", k, num(c.Ceilings[k]))
	}
	for _, k := range c.FixedKeys() {
		fmt.Fprintf(b, "fixed %s = %s\n", k, num(c.Fixed[k]))
	}
	b.WriteString("\n")
}

// writeTable emits one line per DB key: key: blend=... k5=[...] db=[...] [NARROW].
// Keys missing from the blend show the group baseline.
func writeTable(b *strings.Builder, blend params.Vector, k5, db params.Envelope, baseline float64) {
	for _, k := range db.SortedKeys() {
		x, ok := blend[k]
		if !ok || !params.IsFinite(x) {
			x = baseline
		}
		fmt.Fprintf(b, "%s: blend=%s", k, num(x))
		if r, ok := k5[k]; ok && r.Valid() {
			fmt.Fprintf(b, " k5=[%s,%s]", num(r.Min), num(r.Max))
		}
		r := db[k]
		fmt.Fprintf(b, " db=[%s,%s]", num(r.Min), num(r.Max))
		if Narrow(k, k5, db) {
			b.WriteString(" NARROW")
		}
		b.WriteString("\n")
	}
}

// #endregion build

// #region helpers

func num(f float64) string {
	if f == 0 || math.Abs(f) < 0.0005 {
		return "0.000"
	}
	return fmt.Sprintf("%.3f", f)
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// #endregion helpers
