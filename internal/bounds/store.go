package bounds

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS bound_versions (
	version_id      TEXT PRIMARY KEY,
	gender          TEXT NOT NULL,
	label           TEXT,
	archetypes_json TEXT,
	created_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS bound_ranges (
	version_id  TEXT NOT NULL,
	kind        TEXT NOT NULL CHECK (kind IN ('k5', 'db')),
	grp         TEXT NOT NULL CHECK (grp IN ('shape', 'limb')),
	key         TEXT NOT NULL,
	min         REAL NOT NULL,
	max         REAL NOT NULL,
	PRIMARY KEY (version_id, kind, grp, key),
	FOREIGN KEY (version_id) REFERENCES bound_versions(version_id)
);

CREATE TABLE IF NOT EXISTS active_bounds (
	gender      TEXT PRIMARY KEY,
	version_id  TEXT NOT NULL,
	FOREIGN KEY (version_id) REFERENCES bound_versions(version_id)
);
`

const (
	kindK5 = "k5"
	kindDB = "db"
)

// #endregion schema

// #region store-struct
// Version describes one imported bound set.
type Version struct {
	VersionID  string
	Gender     params.Gender
	Label      string
	Archetypes []string
	CreatedAt  time.Time
	Active     bool
}

// Store keeps versioned bound sets in SQLite and implements Provider.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB so the audit log can share the file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion constructor

// #region import
// Import stores b as a new version for gender and returns its id. The DB set is
// validated first; an invalid K5 range is stored as-is and ignored at validation time.
// The new version is not active until Activate is called.
func (s *Store) Import(ctx context.Context, gender params.Gender, label string, b params.Bounds) (string, error) {
	if err := b.DB.Validate(); err != nil {
		return "", fmt.Errorf("import db bounds: %w", err)
	}
	archJSON, err := json.Marshal(b.Archetypes)
	if err != nil {
		return "", fmt.Errorf("marshal archetypes: %w", err)
	}

	id := uuid.New().String()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO bound_versions (version_id, gender, label, archetypes_json, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, string(gender), label, string(archJSON), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("insert version: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO bound_ranges (version_id, kind, grp, key, min, max) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("prepare ranges: %w", err)
	}
	defer stmt.Close()

	for _, set := range []struct {
		kind string
		bs   params.BoundSet
	}{{kindDB, b.DB}, {kindK5, b.K5}} {
		for _, g := range params.Groups {
			env := set.bs.For(g)
			for _, k := range env.SortedKeys() {
				r := env[k]
				if _, err := stmt.ExecContext(ctx, id, set.kind, string(g), k, r.Min, r.Max); err != nil {
					return "", fmt.Errorf("insert range %s/%s/%s: %w", set.kind, g, k, err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

// #endregion import

// #region activate
// Activate makes versionID the active set for its gender.
func (s *Store) Activate(ctx context.Context, versionID string) error {
	var gender string
	err := s.db.QueryRowContext(ctx,
		`SELECT gender FROM bound_versions WHERE version_id = ?`, versionID,
	).Scan(&gender)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrVersionNotFound, versionID)
	}
	if err != nil {
		return fmt.Errorf("check version: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO active_bounds (gender, version_id) VALUES (?, ?)
		 ON CONFLICT(gender) DO UPDATE SET version_id = excluded.version_id`,
		gender, versionID,
	)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return nil
}

// #endregion activate

// #region bounds
// Bounds loads a version (the active one when version is empty). Every failure is a
// *BoundsUnavailableError.
func (s *Store) Bounds(ctx context.Context, gender params.Gender, version string) (params.Bounds, error) {
	unavailable := func(err error) error {
		return &BoundsUnavailableError{Gender: gender, Version: version, Err: err}
	}

	id := version
	if id == "" {
		err := s.db.QueryRowContext(ctx,
			`SELECT version_id FROM active_bounds WHERE gender = ?`, string(gender),
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return params.Bounds{}, unavailable(fmt.Errorf("no active version"))
		}
		if err != nil {
			return params.Bounds{}, unavailable(fmt.Errorf("get active: %w", err))
		}
	}

	v, err := s.version(ctx, id)
	if err != nil {
		return params.Bounds{}, unavailable(err)
	}
	if v.Gender != gender {
		return params.Bounds{}, unavailable(fmt.Errorf("version %s belongs to %s", id, v.Gender))
	}

	b := params.Bounds{
		Version:    id,
		Gender:     gender,
		Archetypes: v.Archetypes,
		K5:         params.BoundSet{Shape: params.Envelope{}, Limb: params.Envelope{}},
		DB:         params.BoundSet{Shape: params.Envelope{}, Limb: params.Envelope{}},
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, grp, key, min, max FROM bound_ranges WHERE version_id = ?`, id)
	if err != nil {
		return params.Bounds{}, unavailable(fmt.Errorf("query ranges: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var kind, grp, key string
		var r params.Range
		if err := rows.Scan(&kind, &grp, &key, &r.Min, &r.Max); err != nil {
			return params.Bounds{}, unavailable(fmt.Errorf("scan range: %w", err))
		}
		set := &b.DB
		if kind == kindK5 {
			set = &b.K5
		}
		set.For(params.Group(grp))[key] = r
	}
	if err := rows.Err(); err != nil {
		return params.Bounds{}, unavailable(fmt.Errorf("iterate ranges: %w", err))
	}

	if err := checkDB(b, gender, version); err != nil {
		return params.Bounds{}, err
	}
	return b, nil
}

// #endregion bounds

// #region versions
func (s *Store) version(ctx context.Context, id string) (Version, error) {
	var v Version
	var gender, created string
	var label, archJSON sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT v.version_id, v.gender, v.label, v.archetypes_json, v.created_at,
		        EXISTS(SELECT 1 FROM active_bounds a WHERE a.version_id = v.version_id)
		 FROM bound_versions v WHERE v.version_id = ?`, id,
	).Scan(&v.VersionID, &gender, &label, &archJSON, &created, &v.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return Version{}, fmt.Errorf("%w: %s", ErrVersionNotFound, id)
	}
	if err != nil {
		return Version{}, fmt.Errorf("get version %s: %w", id, err)
	}
	v.Gender = params.Gender(gender)
	v.Label = label.String
	if archJSON.Valid && archJSON.String != "" {
		if err := json.Unmarshal([]byte(archJSON.String), &v.Archetypes); err != nil {
			return Version{}, fmt.Errorf("unmarshal archetypes: %w", err)
		}
	}
	v.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	return v, nil
}

// ListVersions returns the most recent versions for gender, newest first.
func (s *Store) ListVersions(ctx context.Context, gender params.Gender, limit int) ([]Version, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT version_id FROM bound_versions WHERE gender = ?
		 ORDER BY rowid DESC LIMIT ?`, string(gender), limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan version: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}

	out := make([]Version, 0, len(ids))
	for _, id := range ids {
		v, err := s.version(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// #endregion versions
