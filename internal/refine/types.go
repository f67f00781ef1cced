package refine

import (
	"github.com/danielpatrickdp/body-refine/go-controller/internal/delta"
	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
)

// #region request

// K5Overlay is a request-supplied local envelope. Its ranges replace the provider's
// K5 ranges key by key.
type K5Overlay struct {
	Shape      params.Envelope `json:"shape"`
	Limb       params.Envelope `json:"limb"`
	Archetypes []string        `json:"archetypes"`
}

// Request is one refinement call.
type Request struct {
	ScanID         string                 `json:"scan_id" validate:"required"`
	UserID         string                 `json:"user_id" validate:"required"`
	Gender         string                 `json:"gender" validate:"required"`
	PhotoRefs      []string               `json:"photo_refs"`
	BlendShape     params.Vector          `json:"blend_shape" validate:"required,min=1"`
	BlendLimb      params.Vector          `json:"blend_limb" validate:"required,min=1"`
	BoundsVersion  string                 `json:"bounds_version"`
	K5             *K5Overlay             `json:"k5"`
	Classification *params.Classification `json:"classification" validate:"required"`
	Measurements   map[string]float64     `json:"measurements"`
	PhotoRatios    map[string]float64     `json:"photo_ratios"`
}

// #endregion request

// #region response

// Response is the assembled refinement result. On fallback the blend is returned
// unmodified with AIRefine false and FallbackReason set.
type Response struct {
	RefinementID         string                         `json:"refinement_id,omitempty"`
	FinalShape           params.Vector                  `json:"final_shape_params"`
	FinalLimb            params.Vector                  `json:"final_limb_masses"`
	AIRefine             bool                           `json:"ai_refine"`
	FallbackReason       string                         `json:"fallback_reason,omitempty"`
	ClampedKeys          []string                       `json:"clamped_keys"`
	EnvelopeViolations   []string                       `json:"envelope_violations"`
	DBViolations         []string                       `json:"db_violations"`
	GenderViolations     []string                       `json:"gender_violations"`
	CoherenceCorrections []string                       `json:"coherence_corrections"`
	MissingKeysAdded     []string                       `json:"missing_keys_added"`
	ExtraKeysRemoved     []string                       `json:"extra_keys_removed"`
	OutOfRangeCount      int                            `json:"out_of_range_count"`
	EnvelopeExceptions   []params.Violation             `json:"envelope_exceptions"`
	RefinementDeltas     delta.Report                   `json:"refinement_deltas"`
	ClampingMetadata     map[string][]params.Violation  `json:"clamping_metadata"`
	AIConfidence         float64                        `json:"ai_confidence"`
	AIReasoning          []string                       `json:"ai_reasoning"`
	AIWarnings           []string                       `json:"ai_warnings"`
	AIAdjustments        []string                       `json:"ai_adjustments"`
	ActiveKeys           int                            `json:"active_keys"`
	BoundsVersion        string                         `json:"bounds_version"`
	ProcessingTimeMS     int64                          `json:"processing_time_ms"`
}

// #endregion response
