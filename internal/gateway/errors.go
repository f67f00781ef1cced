package gateway

import (
	"errors"
	"fmt"
)

// #region kinds
// ParseErrorKind classifies why a model response could not become a candidate.
type ParseErrorKind string

const (
	KindCapacityExhausted    ParseErrorKind = "capacity_exhausted"
	KindEmptyResponse        ParseErrorKind = "empty_response"
	KindMarkdownStripFailure ParseErrorKind = "markdown_strip_failure"
	KindSyntaxError          ParseErrorKind = "syntax_error"
	KindMissingField         ParseErrorKind = "missing_field"
	KindEmptyObject          ParseErrorKind = "empty_object"
	KindNonFiniteValue       ParseErrorKind = "non_finite_value"
	KindTransport            ParseErrorKind = "transport"
)

// #endregion kinds

// ErrGateway matches every *GatewayError via errors.Is.
var ErrGateway = errors.New("gateway: refinement failed")

// #region gateway-error
// GatewayError is a typed, always recoverable refinement failure.
type GatewayError struct {
	Kind  ParseErrorKind
	Field string
	Err   error
}

func (e *GatewayError) Error() string {
	msg := "gateway: " + string(e.Kind)
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrGateway) true for any gateway error.
func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

func newError(kind ParseErrorKind, field string, format string, args ...any) *GatewayError {
	var err error
	if format != "" {
		err = fmt.Errorf(format, args...)
	}
	return &GatewayError{Kind: kind, Field: field, Err: err}
}

// KindOf extracts the kind of a gateway error. ok is false for any other error.
func KindOf(err error) (ParseErrorKind, bool) {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	return "", false
}

// #endregion gateway-error
