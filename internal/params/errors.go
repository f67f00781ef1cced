package params

import "errors"

var (
	// ErrEmptyUniverse indicates a bound set that defines no keys.
	ErrEmptyUniverse = errors.New("params: bound set defines no keys")
	// ErrInvalidRange indicates a range with min > max or a non-finite end.
	ErrInvalidRange = errors.New("params: invalid range")
	// ErrUnknownKey indicates access to a key outside the vector's key universe.
	ErrUnknownKey = errors.New("params: key outside universe")
	// ErrNonFinite indicates a NaN or infinite parameter value.
	ErrNonFinite = errors.New("params: non-finite value")
	// ErrUnknownGender indicates a gender label that cannot be resolved.
	ErrUnknownGender = errors.New("params: unknown gender")
)
