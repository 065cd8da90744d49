package core

import "github.com/pkg/errors"

// FieldError ties a validation failure to the request field that caused it.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is a domain validation failure. Fields, when present,
// carries the per-field breakdown surfaced to API clients.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, fields ...FieldError) error {
	return &ValidationError{Err: err, Fields: fields}
}

func (err *ValidationError) Error() string {
	if err.Err == nil {
		return ""
	}
	return err.Err.Error()
}

// shutdown signals an integrity problem the process cannot recover from;
// the HTTP error handler turns it into a graceful stop.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error { return &shutdown{message: msg} }

func (s *shutdown) Error() string { return s.message }

// IsShutdown reports whether err (or its cause) requests a shutdown.
func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
