package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes for categorizing errors
const (
	ErrConfig    = "CONFIG"
	ErrTransport = "TRANSPORT"
	ErrDecode    = "DECODE"
	ErrConn      = "CONN"
	ErrFraming   = "FRAMING"
)

// Error is a structured error with a code, a message, an optional hint on how
// to fix it and an optional cause.
type Error struct {
	Code       string
	Message    string
	Suggestion string
	Cause      error
}

// New creates a new structured error with the given code, message, and suggestion.
func New(code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
	}
}

// Wrap wraps an existing error with a message, defaulting to ErrTransport.
func Wrap(err error, message string) *Error {
	return &Error{
		Code:    ErrTransport,
		Message: message,
		Cause:   err,
	}
}

// WrapWithCode wraps an existing error with a specific code, message, and suggestion.
func WrapWithCode(err error, code, message, suggestion string) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		Suggestion: suggestion,
		Cause:      err,
	}
}

// Error renders a single line, "message: cause". Probe results carry this
// text verbatim, so it stays compact.
func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

// Detailed renders the multi-line form used by the CLI:
//
//	✗ <what failed>
//
//	  <why it failed>
//
//	  <how to fix it>
func (e *Error) Detailed() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("✗ %s\n", e.Message))
	if e.Cause != nil {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Cause.Error()))
	}
	if e.Suggestion != "" {
		b.WriteString(fmt.Sprintf("\n  %s\n", e.Suggestion))
	}
	return b.String()
}

// Unwrap returns the underlying cause for use with errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsCode checks if an error is a structured Error with the given code.
func IsCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var hpErr *Error
	if errors.As(err, &hpErr) {
		return hpErr.Code == code
	}
	return false
}

// Format returns the detailed rendering for structured errors and the plain
// message for anything else.
func Format(err error) string {
	var hpErr *Error
	if errors.As(err, &hpErr) {
		return hpErr.Detailed()
	}
	return err.Error()
}
