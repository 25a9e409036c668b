package models

import "errors"

// ErrorKind classifies a reading rejection.
type ErrorKind string

const (
	KindMissingField  ErrorKind = "missing_field"
	KindInvalidRange  ErrorKind = "invalid_range"
	KindInvalidFormat ErrorKind = "invalid_format"
)

// Validation errors
var (
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidRange     = errors.New("value out of range")
	ErrInvalidFormat    = errors.New("invalid format")
	ErrInvalidTimestamp = errors.New("invalid timestamp format")
)

// Alert event decoding errors
var (
	ErrEmptyMotorID      = errors.New("motor ID cannot be empty")
	ErrUnknownSensorType = errors.New("unknown sensor type")
	ErrUnknownAlertType  = errors.New("unknown alert type")
	ErrTypeMismatch      = errors.New("alert type does not match sensor type")
	ErrZeroTimestamp     = errors.New("timestamp cannot be zero")
)

// ValidationError is returned by RawReading.Validate. Message is safe to show
// to the caller.
type ValidationError struct {
	Kind    ErrorKind
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Is reports whether target is the sentinel for this error's kind.
func (e *ValidationError) Is(target error) bool {
	switch e.Kind {
	case KindMissingField:
		return target == ErrMissingField
	case KindInvalidRange:
		return target == ErrInvalidRange
	case KindInvalidFormat:
		return target == ErrInvalidFormat
	}
	return false
}

func newValidationError(kind ErrorKind, msg string) *ValidationError {
	return &ValidationError{Kind: kind, Message: msg}
}
