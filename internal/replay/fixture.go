package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description string `json:"description"`
	Cases       []Case `json:"cases"`
}

// Case is one recorded validator input with its expected outcome.
type Case struct {
	Name           string                `json:"name"`
	Gender         string                `json:"gender"`
	Classification params.Classification `json:"classification"`
	K5             params.BoundSet       `json:"k5"`
	DB             params.BoundSet       `json:"db"`
	Candidate      CaseCandidate         `json:"candidate"`
	Expect         Expectation           `json:"expect"`
}

// CaseCandidate is the model output being replayed.
type CaseCandidate struct {
	Shape params.Vector `json:"shape"`
	Limb  params.Vector `json:"limb"`
}

// Expectation lists what the validator must produce. A nil list is not checked;
// an empty list must match an empty result. Lists compare as sets.
type Expectation struct {
	ClampedKeys        []string       `json:"clamped_keys,omitempty"`
	EnvelopeViolations []string       `json:"envelope_violations,omitempty"`
	DBViolations       []string       `json:"db_violations,omitempty"`
	GenderViolations   []string       `json:"gender_violations,omitempty"`
	MissingKeysAdded   []string       `json:"missing_keys_added,omitempty"`
	ExtraKeysRemoved   []string       `json:"extra_keys_removed,omitempty"`
	Values             ExpectedValues `json:"values"`
}

// ExpectedValues pins final values per group.
type ExpectedValues struct {
	Shape params.Vector `json:"shape,omitempty"`
	Limb  params.Vector `json:"limb,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// #endregion fixture-loader
