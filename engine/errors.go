/*
errors.go - Centralized error taxonomy for the engine

PURPOSE:
  Every failure the engine surfaces falls into one of four kinds:

  1. Validation - malformed input, the caller's fault, never retried
  2. NotFound   - a referenced entity does not exist
  3. Conflict   - a business rule forbids the operation (e.g. editing a
                  transfer, which is immutable)
  4. Internal   - unexpected failure; logged in full, surfaced generically

  Validation/NotFound/Conflict errors carry enough detail for the caller to
  correct the request. Internal errors must never leak store internals to
  the client.

USAGE:
  if engine.KindOf(err) == engine.KindNotFound { ... }
  return engine.Validationf("amount must be non-negative")
*/
package engine

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindValidation ErrorKind = "VALIDATION_ERROR"
	KindNotFound   ErrorKind = "NOT_FOUND"
	KindConflict   ErrorKind = "CONFLICT"
	KindInternal   ErrorKind = "INTERNAL_ERROR"
)

// Error is the structured error every engine operation returns on failure.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error // wrapped cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Constructors

func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Conflictf(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf classifies any error. Non-engine errors are internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf returns the client-safe message for an error. Internal errors
// collapse to a generic message so store details never leak.
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindInternal {
		return e.Message
	}
	return "An unexpected error occurred"
}

// IsClientError reports whether the caller can fix the request.
func IsClientError(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindNotFound, KindConflict:
		return true
	}
	return false
}
