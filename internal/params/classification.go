package params

import "strings"

// #region classification
// Classification carries the categorical labels produced by the vision stage.
// It is trusted input: labels are normalized, never rejected.
type Classification struct {
	Obesity     string `json:"obesity_level" yaml:"obesity_level"`
	Muscularity string `json:"muscularity_level" yaml:"muscularity_level"`
	Morphotype  string `json:"morphotype" yaml:"morphotype"`
	Overall     string `json:"overall_level" yaml:"overall_level"`
}

// #endregion classification

// #region adiposity
// Adiposity is the normalized obesity level.
type Adiposity int

const (
	AdiposityNone Adiposity = iota
	AdiposityOverweight
	AdiposityObese
	AdipositySevere
)

func (a Adiposity) String() string {
	switch a {
	case AdiposityOverweight:
		return "overweight"
	case AdiposityObese:
		return "obese"
	case AdipositySevere:
		return "severe"
	}
	return "none"
}

// Checked in order: the first list with a matching keyword wins.
var noneKeywords = []string{"not_", "not ", "non_", "normal", "none", "lean", "slim"}

var severeKeywords = []string{"severe", "morbid", "extreme", "class 3", "class_3", "class iii"}

var obeseKeywords = []string{"obese", "obesity", "class 1", "class 2", "class_1", "class_2"}

var overweightKeywords = []string{"overweight", "over weight", "heavy", "plump"}

// AdiposityLevel normalizes the obesity label into a level.
func (c Classification) AdiposityLevel() Adiposity {
	label := normalizeLabel(c.Obesity)
	if label == "" {
		return AdiposityNone
	}
	switch {
	case containsAny(label, noneKeywords):
		return AdiposityNone
	case containsAny(label, severeKeywords):
		return AdipositySevere
	case containsAny(label, obeseKeywords):
		return AdiposityObese
	case containsAny(label, overweightKeywords):
		return AdiposityOverweight
	}
	return AdiposityNone
}

// HighAdiposity reports obese or severely obese classification.
func (c Classification) HighAdiposity() bool {
	return c.AdiposityLevel() >= AdiposityObese
}

// Overweight reports an overweight classification.
func (c Classification) Overweight() bool {
	return c.AdiposityLevel() == AdiposityOverweight
}

// #endregion adiposity

// #region muscularity
var highMuscleKeywords = []string{"high", "very", "athletic", "muscular", "bodybuilder", "strong"}

var lowMuscleKeywords = []string{"low", "none", "weak", "slight"}

// HighMuscularity reports a muscular classification.
func (c Classification) HighMuscularity() bool {
	label := normalizeLabel(c.Muscularity)
	if label == "" || containsAny(label, lowMuscleKeywords) {
		return false
	}
	return containsAny(label, highMuscleKeywords)
}

// #endregion muscularity

// #region helpers
func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, "-", "_")
}

func containsAny(s string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(s, kw) {
			return true
		}
	}
	return false
}

// #endregion helpers
