package gateway

import (
	"context"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
)

// #region completion
// Completion is one resolved model response. Truncated is set when the provider
// stopped because the output budget ran out.
type Completion struct {
	Text          string
	FinishReason  string
	Truncated     bool
	ThoughtTokens int
}

// #endregion completion

// #region model
// Model is the external refinement model.
type Model interface {
	Generate(ctx context.Context, prompt string) (Completion, error)
	Name() string
}

// #endregion model

// #region candidate
// Candidate is a structurally valid refinement proposal. Values are finite but
// otherwise unchecked; range correction belongs to the validator.
type Candidate struct {
	Shape       params.Vector `json:"final_shape_params"`
	Limb        params.Vector `json:"final_limb_masses"`
	Confidence  float64       `json:"confidence"`
	Reasoning   []string      `json:"reasoning"`
	Warnings    []string      `json:"warnings"`
	Adjustments []string      `json:"adjustments"`
}

// #endregion candidate
