package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by lookups that require a match (e.g. a configured container id).
var ErrNotFound = errors.New("entity not found")

// ConfigurationError means an importer cannot be built. It is returned before
// any record is processed.
type ConfigurationError struct {
	Importer string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Importer == "" {
		return "importer misconfigured: " + e.Reason
	}
	return fmt.Sprintf("importer %q misconfigured: %s", e.Importer, e.Reason)
}

func configErrorf(importer, format string, args ...any) error {
	return &ConfigurationError{Importer: importer, Reason: fmt.Sprintf(format, args...)}
}

// RecordError means a single record could not be mapped or resolved.
// The run continues with the next record.
type RecordError struct {
	Line   int
	Key    string
	Reason string
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("record error at line %d: %s", e.Line, e.Reason)
}

// RecordErrorf builds a RecordError for rec. Hooks use it to reject a record
// without it being reported as a storage failure.
func RecordErrorf(rec Record, format string, args ...any) error {
	return &RecordError{Line: rec.Line, Reason: fmt.Sprintf(format, args...)}
}

// BackendError wraps a failed storage call. The core does not retry.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend error during %s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// backendErr wraps err as a BackendError unless it already carries a
// classification (record or backend error), or is a context error.
func backendErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RecordError
	var be *BackendError
	if errors.As(err, &re) || errors.As(err, &be) || isContextErr(err) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}
