package types

import (
	"errors"
	"fmt"
)

// ErrorKind classifies cycle and lifecycle failures. Every error surfaced by a
// component carries exactly one kind; per-candidate rejections are ordinary
// Decision values, never errors.
type ErrorKind string

const (
	KindTransientFetch  ErrorKind = "TRANSIENT_FETCH"
	KindInvalidResponse ErrorKind = "INVALID_RESPONSE"
	KindEmptyForecast   ErrorKind = "EMPTY_FORECAST"
	KindInvalidBrackets ErrorKind = "INVALID_BRACKETS"
	KindNumeric         ErrorKind = "NUMERIC"
	KindStaleInput      ErrorKind = "STALE_INPUT"
	KindConfigInvalid   ErrorKind = "CONFIG_INVALID"
	KindAlreadyRunning  ErrorKind = "ALREADY_RUNNING"
	KindNotRunning      ErrorKind = "NOT_RUNNING"
	KindCancelled       ErrorKind = "CANCELLED"
)

// CycleError is an error tagged with its taxonomy kind. It wraps the
// underlying cause so callers can use errors.Is/As on either layer.
type CycleError struct {
	Kind ErrorKind
	Err  error
}

func (e *CycleError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CycleError) Unwrap() error { return e.Err }

// NewCycleError wraps err with kind. A nil err yields a bare kind error.
func NewCycleError(kind ErrorKind, err error) *CycleError {
	return &CycleError{Kind: kind, Err: err}
}

// Errorf builds a CycleError from a format string.
func Errorf(kind ErrorKind, format string, args ...any) *CycleError {
	return &CycleError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the ErrorKind from err, or "" when err carries none.
func KindOf(err error) ErrorKind {
	var ce *CycleError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
