package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound indicates an unknown refinement id.
var ErrNotFound = errors.New("audit: refinement not found")

const schema = `
CREATE TABLE IF NOT EXISTS refinement_log (
	id                 TEXT PRIMARY KEY,
	scan_id            TEXT NOT NULL,
	user_id            TEXT NOT NULL,
	gender             TEXT NOT NULL,
	bounds_version     TEXT,
	model              TEXT,
	ai_refine          INTEGER NOT NULL,
	fallback_reason    TEXT,
	confidence         REAL NOT NULL,
	out_of_range_count INTEGER NOT NULL,
	audit_json         TEXT,
	deltas_json        TEXT,
	processing_ms      INTEGER NOT NULL,
	created_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_refinement_log_scan ON refinement_log(scan_id);
`

// #region log
// Log persists refinements to the refinement_log table.
type Log struct {
	db *sql.DB
}

// NewLog creates the refinement_log table if needed.
func NewLog(db *sql.DB) (*Log, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create refinement_log: %w", err)
	}
	return &Log{db: db}, nil
}

// #endregion log

// #region record
// Record writes entry and returns its id. A missing id or timestamp is filled in.
func (l *Log) Record(ctx context.Context, entry Entry) (string, error) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO refinement_log (id, scan_id, user_id, gender, bounds_version, model, ai_refine,
			fallback_reason, confidence, out_of_range_count, audit_json, deltas_json, processing_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID,
		entry.ScanID,
		entry.UserID,
		entry.Gender,
		nullIfEmpty(entry.BoundsVersion),
		nullIfEmpty(entry.Model),
		entry.AIRefine,
		nullIfEmpty(entry.FallbackReason),
		entry.Confidence,
		entry.OutOfRangeCount,
		nullIfEmpty(string(entry.AuditJSON)),
		nullIfEmpty(string(entry.DeltasJSON)),
		entry.ProcessingMillis,
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("record refinement: %w", err)
	}
	return entry.ID, nil
}

// #endregion record

// #region read
const selectColumns = `SELECT id, scan_id, user_id, gender, bounds_version, model, ai_refine, fallback_reason,
	confidence, out_of_range_count, audit_json, deltas_json, processing_ms, created_at FROM refinement_log`

// Get reads one refinement.
func (l *Log) Get(ctx context.Context, id string) (Entry, error) {
	e, err := scanEntry(l.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Entry{}, fmt.Errorf("get refinement %s: %w", id, err)
	}
	return e, nil
}

// List returns the most recent refinements, newest first.
func (l *Log) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx, selectColumns+` ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list refinements: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refinement: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var version, model, reason, auditJSON, deltasJSON sql.NullString
	var created string
	err := s.Scan(&e.ID, &e.ScanID, &e.UserID, &e.Gender, &version, &model, &e.AIRefine, &reason,
		&e.Confidence, &e.OutOfRangeCount, &auditJSON, &deltasJSON, &e.ProcessingMillis, &created)
	if err != nil {
		return Entry{}, err
	}
	e.BoundsVersion = version.String
	e.Model = model.String
	e.FallbackReason = reason.String
	if auditJSON.Valid {
		e.AuditJSON = []byte(auditJSON.String)
	}
	if deltasJSON.Valid {
		e.DeltasJSON = []byte(deltasJSON.String)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return e, nil
}

// #endregion read

// #region helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
