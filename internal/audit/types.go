package audit

import (
	"encoding/json"
	"time"
)

// #region entry
// Entry is one row of refinement_log. AuditJSON and DeltasJSON hold the serialized
// audit trail and delta report exactly as returned to the caller.
type Entry struct {
	ID               string          `json:"id"`
	ScanID           string          `json:"scan_id"`
	UserID           string          `json:"user_id"`
	Gender           string          `json:"gender"`
	BoundsVersion    string          `json:"bounds_version"`
	Model            string          `json:"model,omitempty"`
	AIRefine         bool            `json:"ai_refine"`
	FallbackReason   string          `json:"fallback_reason,omitempty"`
	Confidence       float64         `json:"confidence"`
	OutOfRangeCount  int             `json:"out_of_range_count"`
	AuditJSON        json.RawMessage `json:"audit"`
	DeltasJSON       json.RawMessage `json:"deltas"`
	ProcessingMillis int64           `json:"processing_time_ms"`
	CreatedAt        time.Time       `json:"created_at"`
}

// #endregion entry
