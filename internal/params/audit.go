package params

import (
	"fmt"
	"sort"
)

// #region source
// Source names the bound source that produced a correction.
type Source string

const (
	SourceEnvelope  Source = "envelope"
	SourceDB        Source = "db"
	SourceGender    Source = "gender"
	SourceCoherence Source = "coherence"
)

// #endregion source

// #region violation
// Violation records one correction applied to a candidate value.
type Violation struct {
	Key       string  `json:"key"`
	Group     Group   `json:"group"`
	Original  float64 `json:"original_value"`
	Corrected float64 `json:"corrected_value"`
	Source    Source  `json:"source"`
	Reason    string  `json:"reason"`
	Priority  int     `json:"priority"`
}

// #endregion violation

// #region audit-trail
// AuditTrail is the ordered record of every transformation applied by the validator.
// Records holds value corrections in application order; key list fields hold the
// allowlist/completion bookkeeping. EnvelopeExceptions lists K5 keys left outside
// their envelope together with the reason they were allowed to leave it.
type AuditTrail struct {
	Records            []Violation `json:"records"`
	MissingKeysAdded   []string    `json:"missing_keys_added"`
	ExtraKeysRemoved   []string    `json:"extra_keys_removed"`
	EnvelopeExceptions []Violation `json:"envelope_exceptions"`
}

// Append adds records to the trail.
func (a *AuditTrail) Append(records ...Violation) {
	a.Records = append(a.Records, records...)
}

// Merge appends another trail's entries after this one's.
func (a *AuditTrail) Merge(other AuditTrail) {
	a.Records = append(a.Records, other.Records...)
	a.MissingKeysAdded = append(a.MissingKeysAdded, other.MissingKeysAdded...)
	a.ExtraKeysRemoved = append(a.ExtraKeysRemoved, other.ExtraKeysRemoved...)
	a.EnvelopeExceptions = append(a.EnvelopeExceptions, other.EnvelopeExceptions...)
}

// ClampedKeys returns the sorted union of corrected keys across all priorities.
func (a AuditTrail) ClampedKeys() []string {
	return uniqueSorted(a.Records, func(Violation) bool { return true })
}

// KeysBySource returns the sorted keys corrected by src.
func (a AuditTrail) KeysBySource(src Source) []string {
	return uniqueSorted(a.Records, func(v Violation) bool { return v.Source == src })
}

// OutOfRangeCount is the total number of corrections.
func (a AuditTrail) OutOfRangeCount() int {
	return len(a.Records)
}

// ByPriority regroups the records by priority for audit display.
// Map keys have the form "p<priority>_<source>".
func (a AuditTrail) ByPriority() map[string][]Violation {
	out := map[string][]Violation{}
	for _, v := range a.Records {
		k := fmt.Sprintf("p%d_%s", v.Priority, v.Source)
		out[k] = append(out[k], v)
	}
	return out
}

// Clean reports whether no key was corrected, added or removed.
func (a AuditTrail) Clean() bool {
	return len(a.Records) == 0 && len(a.MissingKeysAdded) == 0 && len(a.ExtraKeysRemoved) == 0
}

func uniqueSorted(records []Violation, keep func(Violation) bool) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, v := range records {
		if !keep(v) || seen[v.Key] {
			continue
		}
		seen[v.Key] = true
		out = append(out, v.Key)
	}
	sort.Strings(out)
	return out
}

// #endregion audit-trail
