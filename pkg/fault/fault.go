// Package fault defines the canonical error format for the casetrail engine.
//
// Every failure that crosses a component boundary carries a stable error
// code. Codes are the portable contract; Go type names are not.
package fault

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error code.
// Code pattern: CASETRAIL/NAMESPACE/KIND.
type Code string

const (
	CodeValidation       Code = "CASETRAIL/EXPORT/VALIDATION"
	CodeRateLimit        Code = "CASETRAIL/EXPORT/RATE_LIMIT"
	CodeVolumeExceeded   Code = "CASETRAIL/EXPORT/VOLUME_EXCEEDED"
	CodeConfiguration    Code = "CASETRAIL/STORAGE/CONFIGURATION"
	CodeNotFound         Code = "CASETRAIL/RESOURCE/NOT_FOUND"
	CodeProcessing       Code = "CASETRAIL/EXPORT/PROCESSING"
	CodeTrailProtected   Code = "CASETRAIL/RETENTION/AUDIT_TRAIL_PROTECTED"
	CodeUnknownEntity    Code = "CASETRAIL/RETENTION/UNKNOWN_ENTITY_TYPE"
	CodeInvalidStateMove Code = "CASETRAIL/EXPORT/INVALID_STATE_TRANSITION"
)

// Error is a coded error. Two Errors match under errors.Is when their
// codes are equal, regardless of message or cause.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports code equality so sentinel matching works through wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a coded error wrapping a cause.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Sentinels for errors.Is checks. Callers compare against these rather
// than concrete messages.
var (
	ErrValidation     = &Error{Code: CodeValidation}
	ErrRateLimit      = &Error{Code: CodeRateLimit}
	ErrVolumeExceeded = &Error{Code: CodeVolumeExceeded}
	ErrConfiguration  = &Error{Code: CodeConfiguration}
	ErrNotFound       = &Error{Code: CodeNotFound}
	ErrProcessing     = &Error{Code: CodeProcessing}
	ErrTrailProtected = &Error{Code: CodeTrailProtected}
	ErrUnknownEntity  = &Error{Code: CodeUnknownEntity}
)
