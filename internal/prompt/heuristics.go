package prompt

import (
	"fmt"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
)

// Ratio keys read from the photo ratios.
const (
	RatioHipShoulder = "hip_shoulder"
	RatioWaistHip    = "waist_hip"
)

// Heuristics returns the classification and ratio driven hints, in a fixed order.
func Heuristics(c params.Classification, ratios map[string]float64) []string {
	var out []string

	if hs, ok := ratios[RatioHipShoulder]; ok && params.IsFinite(hs) {
		switch {
		case hs >= 1.05:
			out = append(out, fmt.Sprintf("hip/shoulder ratio %s is high: favor hip-width keys within their envelope", num(hs)))
		case hs <= 0.90:
			out = append(out, fmt.Sprintf("hip/shoulder ratio %s is low: favor shoulder-width keys within their envelope", num(hs)))
		}
	}
	if wh, ok := ratios[RatioWaistHip]; ok && params.IsFinite(wh) && wh >= 0.9 {
		out = append(out, fmt.Sprintf("waist/hip ratio %s: favor waist and belly keys; do not narrow the waist", num(wh)))
	}

	switch {
	case c.HighAdiposity():
		out = append(out, "obesity classified: keep adiposity high and muscularity near the low end of k5")
	case c.HighMuscularity():
		out = append(out, "muscular build classified: keep adiposity keys low")
	}
	if c.HighAdiposity() || c.Overweight() {
		out = append(out, "excess adiposity excludes a narrowed waist: keep narrow-waist keys at or below -0.1")
	}
	return out
}
