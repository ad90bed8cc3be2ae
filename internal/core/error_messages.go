package core

// # Error Codes Reference
//
// Errors shown to operators (HTTP responses, CLI summary) carry a code they
// can quote when asking for help. Typed errors are classified first; anything
// else falls back to case-insensitive substring patterns.
//
// # Configuration Errors (CFG001-CFG099)
//
//	CFG001 - Importer misconfigured: the importer cannot be built
//	         Action: Check the importer options and capabilities
//	         Matches: *ConfigurationError
//
//	CFG002 - Unknown importer: no importer registered under that key
//	         Action: List importers with `drupalmigrate importers`
//	         Patterns: "unknown importer"
//
// # Record Errors (REC001-REC099)
//
//	REC001 - Record rejected: one record could not be mapped
//	         Action: Fix the record and re-run; other records are unaffected
//	         Matches: *RecordError
//
//	REC002 - Missing column: a required column is missing or blank
//	         Action: Check the export contains the required columns
//	         Patterns: "missing required column"
//
// # Backend Errors (BE001-BE099)
//
//	BE001 - Duplicate key: the target rejected a duplicate value
//	        Patterns: "duplicate key", "unique constraint"
//
//	BE002 - Connection: the target store is unreachable
//	        Patterns: "connection refused", "connection reset"
//
//	BE003 - Storage failure: any other failed storage call
//	        Matches: *BackendError
//
// # Source Errors (SRC001-SRC099)
//
//	SRC001 - Invalid CSV: the input could not be parsed
//	         Patterns: "invalid csv", "parse error"
//
//	SRC002 - Empty input: the input has no header row
//	         Patterns: "empty file"
//
//	SRC003 - Source unreachable: the Drupal database could not be queried
//	         Patterns: "drupal source"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Busy: another run holds the slot
//	         Patterns: "another import run"
//
//	RUN002 - Cancelled: the run was cancelled or timed out
//	         Patterns: "context canceled", "context deadline exceeded"
//
//	RUN003 - Run not found: no run history under that id
//	         Patterns: "run not found"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error; check the logs for the technical error.

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var (
	configMessage = UserMessage{
		Message: "Importer is misconfigured",
		Action:  "Check the importer options and capabilities",
		Code:    "CFG001",
	}
	recordMessage = UserMessage{
		Message: "Record could not be imported",
		Action:  "Fix the record and re-run; other records are unaffected",
		Code:    "REC001",
	}
	backendMessage = UserMessage{
		Message: "The target store rejected the change",
		Action:  "Check the logs for the storage error and re-run",
		Code:    "BE003",
	}
)

// errorPatterns is searched in order; specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "unknown importer",
		msg: UserMessage{
			Message: "Unknown importer",
			Action:  "List importers with `drupalmigrate importers`",
			Code:    "CFG002",
		},
	},
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "A required column is missing or blank",
			Action:  "Check the export contains the required columns",
			Code:    "REC002",
		},
	},
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this value already exists",
			Action:  "Review the duplicate checks for this importer",
			Code:    "BE001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A record with this value already exists",
			Action:  "Review the duplicate checks for this importer",
			Code:    "BE001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to the target store",
			Action:  "Please try again in a few moments",
			Code:    "BE002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Connection to the target store was interrupted",
			Action:  "Re-run the import; completed records will be updated, not duplicated",
			Code:    "BE002",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "Input is not a valid CSV file",
			Action:  "Ensure the file is comma-separated with consistent columns",
			Code:    "SRC001",
		},
	},
	{
		pattern: "parse error",
		msg: UserMessage{
			Message: "Input is not a valid CSV file",
			Action:  "Ensure the file is comma-separated with consistent columns",
			Code:    "SRC001",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The input has no header row",
			Action:  "Export again with column headers",
			Code:    "SRC002",
		},
	},
	{
		pattern: "drupal source",
		msg: UserMessage{
			Message: "The Drupal database could not be queried",
			Action:  "Check DRUPAL_DSN and the table prefix",
			Code:    "SRC003",
		},
	},
	{
		pattern: "another import run",
		msg: UserMessage{
			Message: "Another import is running",
			Action:  "Wait for it to finish and try again",
			Code:    "RUN001",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "The run was cancelled",
			Action:  "Re-run when ready; the import is idempotent",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The run timed out",
			Action:  "Raise IMPORT_TIMEOUT or split the input",
			Code:    "RUN002",
		},
	},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Import run not found",
			Action:  "List runs with `drupalmigrate runs`",
			Code:    "RUN003",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or check the logs",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Patterns are checked before typed errors so a BackendError wrapping a
// connection failure still reports BE002.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	var ce *ConfigurationError
	var re *RecordError
	var be *BackendError
	switch {
	case errors.As(err, &ce):
		return configMessage
	case errors.As(err, &re):
		return recordMessage
	case errors.As(err, &be):
		return backendMessage
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to something other than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError keeps the technical error for logging next to the message shown to users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
