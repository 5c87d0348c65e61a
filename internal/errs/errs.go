// Package errs defines the error taxonomy shared across pipeline stages.
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes an error by the stage or contract it violated.
type Kind string

const (
	KindInvalidInput    Kind = "invalid_input"
	KindTranscription   Kind = "transcription"
	KindGeneration      Kind = "generation"
	KindSynthesis       Kind = "synthesis"
	KindExternalService Kind = "external_service"
	KindConnection      Kind = "connection"
)

// Error is a categorized error. Provider failures wrap the underlying error.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a categorized error without an underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a categorized error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindExternalService for uncategorized errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindExternalService
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
