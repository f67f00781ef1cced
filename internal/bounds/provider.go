package bounds

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/body-refine/go-controller/internal/params"
)

// #region errors
// ErrBoundsUnavailable matches every *BoundsUnavailableError via errors.Is.
var ErrBoundsUnavailable = errors.New("bounds: unavailable")

// ErrVersionNotFound indicates an unknown bound version id.
var ErrVersionNotFound = errors.New("bounds: version not found")

// BoundsUnavailableError reports that no usable DB bound set exists for a request.
// It is fatal for the request: without DB there is no key universe.
type BoundsUnavailableError struct {
	Gender  params.Gender
	Version string
	Err     error
}

func (e *BoundsUnavailableError) Error() string {
	v := e.Version
	if v == "" {
		v = "active"
	}
	return fmt.Sprintf("bounds unavailable for %s (version %s): %v", e.Gender, v, e.Err)
}

func (e *BoundsUnavailableError) Unwrap() error { return e.Err }

func (e *BoundsUnavailableError) Is(target error) bool { return target == ErrBoundsUnavailable }

// #endregion errors

// #region provider
// Provider supplies the K5 and DB bound sets for a gender. An empty version selects
// the gender's active set. DB is authoritative; K5 may be a subset or empty.
type Provider interface {
	Bounds(ctx context.Context, gender params.Gender, version string) (params.Bounds, error)
}

// checkDB wraps a structurally invalid DB set as unavailable.
func checkDB(b params.Bounds, gender params.Gender, version string) error {
	if err := b.DB.Validate(); err != nil {
		return &BoundsUnavailableError{Gender: gender, Version: version, Err: err}
	}
	return nil
}

// #endregion provider

// #region static
// Static serves fixed bounds from memory. Useful for tests and single-file deployments.
type Static struct {
	byGender map[params.Gender]params.Bounds
}

// NewStatic creates a provider over the given bounds.
func NewStatic(byGender map[params.Gender]params.Bounds) *Static {
	return &Static{byGender: byGender}
}

// Bounds returns the stored set. A non-empty version must match the stored one.
func (s *Static) Bounds(_ context.Context, gender params.Gender, version string) (params.Bounds, error) {
	b, ok := s.byGender[gender]
	if !ok {
		return params.Bounds{}, &BoundsUnavailableError{Gender: gender, Version: version, Err: ErrVersionNotFound}
	}
	if version != "" && b.Version != "" && version != b.Version {
		return params.Bounds{}, &BoundsUnavailableError{Gender: gender, Version: version, Err: ErrVersionNotFound}
	}
	if err := checkDB(b, gender, version); err != nil {
		return params.Bounds{}, err
	}
	b.Gender = gender
	return b, nil
}

// #endregion static
