package delta

import (
	"math"
	"sort"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
)

const limbBaseline = 1.0

// #region analyzer
// Analyzer computes before/after diagnostics. It is pure and never fails; nil
// vectors are treated as empty.
type Analyzer struct {
	config Config
}

// NewAnalyzer creates an analyzer. Non-positive TopN falls back to the default.
func NewAnalyzer(config Config) *Analyzer {
	if config.TopN <= 0 {
		config.TopN = DefaultConfig().TopN
	}
	return &Analyzer{config: config}
}

// #endregion analyzer

// #region analyze
// Analyze compares the blend with the final vectors over the final key set.
// Blend keys that are missing read as the group baseline (shape 0, limb 1.0).
func (a *Analyzer) Analyze(blend, final Pair) Report {
	shape, shapeTotal := a.group(blend.Shape, final.Shape, 0, "")
	limb, limbTotal := a.group(blend.Limb, final.Limb, limbBaseline, a.config.GateKey)
	return Report{
		Shape:             shape,
		Limb:              limb,
		TotalShapeChanged: shapeTotal,
		TotalLimbChanged:  limbTotal,
	}
}

func (a *Analyzer) group(before, after params.Vector, baseline float64, skip string) ([]Delta, int) {
	deltas := []Delta{}
	for _, k := range after.SortedKeys() {
		if k == skip && skip != "" {
			continue
		}
		b, ok := before[k]
		if !ok || !params.IsFinite(b) {
			b = baseline
		}
		x := after[k]
		change := math.Abs(x - b)
		if !(change > a.config.MinDelta) {
			continue
		}
		deltas = append(deltas, Delta{Key: k, Before: b, After: x, Change: change})
	}
	total := len(deltas)

	sort.SliceStable(deltas, func(i, j int) bool {
		if deltas[i].Change != deltas[j].Change {
			return deltas[i].Change > deltas[j].Change
		}
		return deltas[i].Key < deltas[j].Key
	})
	if len(deltas) > a.config.TopN {
		deltas = deltas[:a.config.TopN]
	}
	return deltas, total
}

// #endregion analyze

// #region active-keys
// ActiveKeys counts shape keys with |v| above the threshold plus limb keys (gate excluded)
// more than the threshold away from 1.0.
func (a *Analyzer) ActiveKeys(shape, limb params.Vector) int {
	n := 0
	for _, v := range shape {
		if math.Abs(v) > a.config.ActiveThreshold {
			n++
		}
	}
	for k, v := range limb {
		if k == a.config.GateKey {
			continue
		}
		if math.Abs(v-limbBaseline) > a.config.ActiveThreshold {
			n++
		}
	}
	return n
}

// #endregion active-keys
