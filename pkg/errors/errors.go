package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes the pipeline distinguishes.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrInternalError      = errors.New("internal error")
	ErrTimeout            = errors.New("operation timed out")
	ErrFailedPrecondition = errors.New("failed precondition")

	// Domain-specific sentinel errors
	ErrSessionNotFound     = errors.New("session not found")
	ErrPresenterMissing    = errors.New("presenter video missing")
	ErrMediaFailure        = errors.New("media processing failure")
	ErrSegmentationFailed  = errors.New("audio segmentation failed")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrArtifactWrite       = errors.New("analysis artifact write failed")
)

// Error is a structured error carrying a message, a wrapped cause and
// contextual fields for logging.
type Error struct {
	cause   error
	message string
	fields  map[string]interface{}
}

// New creates a structured error with the given message.
func New(message string) *Error {
	return &Error{
		cause:   errors.New(message),
		message: message,
		fields:  make(map[string]interface{}),
	}
}

// Wrap wraps an existing error with additional context. Returns nil for a
// nil cause so call sites can wrap unconditionally.
func Wrap(err error, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		cause:   err,
		message: message,
		fields:  make(map[string]interface{}),
	}
}

// WithField returns a copy of the error with one extra context field.
func (e *Error) WithField(key string, value interface{}) *Error {
	if e == nil {
		return nil
	}
	fields := make(map[string]interface{}, len(e.fields)+1)
	for k, v := range e.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Error{cause: e.cause, message: e.message, fields: fields}
}

// WithFields returns a copy of the error with extra context fields.
func (e *Error) WithFields(extra map[string]interface{}) *Error {
	if e == nil {
		return nil
	}
	fields := make(map[string]interface{}, len(e.fields)+len(extra))
	for k, v := range e.fields {
		fields[k] = v
	}
	for k, v := range extra {
		fields[k] = v
	}
	return &Error{cause: e.cause, message: e.message, fields: fields}
}

// Fields returns the contextual fields attached to the error.
func (e *Error) Fields() map[string]interface{} {
	if e == nil {
		return nil
	}
	return e.fields
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil || e.cause == nil {
		return ""
	}
	if e.message == "" {
		return e.cause.Error()
	}
	if e.message == e.cause.Error() {
		return e.message
	}
	return fmt.Sprintf("%s: %v", e.message, e.cause)
}

// Unwrap exposes the cause so errors.Is matches the sentinels above.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether err matches target, following wrapped causes.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain matching target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
