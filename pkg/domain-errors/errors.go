// Package domainerrors carries coded errors across component boundaries so
// transport code can pick user-facing replies without string matching.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for propagation policy decisions.
type Code string

const (
	// CodeConfigIncomplete marks operations attempted before /setup completed.
	CodeConfigIncomplete Code = "config_incomplete"
	// CodeValidation marks malformed caller input, e.g. a bad player tag.
	CodeValidation Code = "validation"
	// CodeConflict marks a tag already bound to a different member.
	CodeConflict Code = "conflict"
	// CodeExternalNotFound marks a clan or player absent from the clan API.
	CodeExternalNotFound Code = "external_not_found"
	// CodeExternalAuth marks a rejected clan API session.
	CodeExternalAuth Code = "external_auth"
	// CodeExternalTransient marks timeouts and other retryable API failures.
	CodeExternalTransient Code = "external_transient"
	// CodePermissionDenied marks hierarchy or guild permission failures.
	CodePermissionDenied Code = "permission_denied"
	// CodePersistence marks a failed write-back after a logical success.
	CodePersistence Code = "persistence"
	// CodeInternal marks everything that should never reach a user verbatim.
	CodeInternal Code = "internal"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error from a format string.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err or anything it wraps carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		de = nil
	}
	return false
}

// CodeOf returns the outermost code, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost coded message, or a generic fallback for
// uncoded errors so raw internals never leak into chat replies.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}
