package refine

import (
	"errors"
	"fmt"
)

// ErrRequestShape matches every *RequestShapeError via errors.Is.
var ErrRequestShape = errors.New("refine: malformed request")

// RequestShapeError reports malformed or incomplete input. It is surfaced to the
// caller and never retried.
type RequestShapeError struct {
	Field  string
	Reason string
}

func (e *RequestShapeError) Error() string {
	return fmt.Sprintf("invalid request: %s: %s", e.Field, e.Reason)
}

func (e *RequestShapeError) Is(target error) bool { return target == ErrRequestShape }
