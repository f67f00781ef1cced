package delta

import "github.com/danielpatrickdp/body-refine/go-controller/internal/params"

// #region config
// Config holds the reporting thresholds.
type Config struct {
	MinDelta        float64 `yaml:"min_delta" validate:"min=0"`        // deltas at or below this are not reported
	TopN            int     `yaml:"top_n" validate:"min=1"`            // deltas kept per group
	ActiveThreshold float64 `yaml:"active_threshold" validate:"min=0"` // distance from baseline that makes a key active
	GateKey         string  `yaml:"gate_key"`                          // limb key excluded from deltas and active counts
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		MinDelta:        0.01,
		TopN:            10,
		ActiveThreshold: 0.05,
		GateKey:         "gate",
	}
}

// #endregion config

// #region pair
// Pair is one shape vector and one limb vector.
type Pair struct {
	Shape params.Vector
	Limb  params.Vector
}

// #endregion pair

// #region report
// Delta is one changed key.
type Delta struct {
	Key    string  `json:"key"`
	Before float64 `json:"before"`
	After  float64 `json:"after"`
	Change float64 `json:"delta"`
}

// Report is the refinement delta summary.
type Report struct {
	Shape             []Delta `json:"shape"`
	Limb              []Delta `json:"limb"`
	TotalShapeChanged int     `json:"total_shape_changed"`
	TotalLimbChanged  int     `json:"total_limb_changed"`
}

// #endregion report
