// ABOUTME: Classified plugin error carrying a message and a short code tag
// ABOUTME: Used by orchestrator operations that surface failures to the caller

package syncerr

import (
	"errors"
	"fmt"
)

// Code classifies a plugin error.
type Code string

const (
	CodeNotReady        Code = "not-ready"
	CodeNotAllowed      Code = "not-allowed"
	CodeConnectionError Code = "connection-error"
)

// Error is a plugin error with a classification tag.
type Error struct {
	Code    Code
	Message string
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given code and message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NotReady reports a missing connection or user.
func NotReady(format string, args ...any) *Error {
	return New(CodeNotReady, format, args...)
}

// NotAllowed reports missing required input.
func NotAllowed(format string, args ...any) *Error {
	return New(CodeNotAllowed, format, args...)
}

// Connection wraps a failed backend handshake. The message is the cause's message.
func Connection(cause error) *Error {
	msg := "connection failed"
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Code: CodeConnectionError, Message: msg, Err: cause}
}

// CodeOf returns the code of the first Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
