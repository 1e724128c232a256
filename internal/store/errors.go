package store

import (
	"errors"
	"fmt"
)

// Code categorizes store errors.
type Code string

const (
	// CodeValidationRejected indicates a mutation's resulting field value
	// failed its rule. The write has been reverted in place.
	CodeValidationRejected Code = "VALIDATION_REJECTED"

	// CodeUnknownField indicates a write or unregister targeted a field
	// name that was never registered.
	CodeUnknownField Code = "UNKNOWN_FIELD"

	// CodeMissingRule indicates a write targeted a field with no compiled
	// validation rule.
	CodeMissingRule Code = "MISSING_RULE"

	// CodeHistoryMismatch indicates an undo/redo restoration would change
	// the set of registered field names. The operation is aborted before
	// any state is touched.
	CodeHistoryMismatch Code = "HISTORY_MISMATCH"

	// CodeBadPath indicates a path that cannot be parsed or resolved
	// against the current state tree.
	CodeBadPath Code = "BAD_PATH"

	// CodeDuplicateField indicates a registration under a name already in
	// use.
	CodeDuplicateField Code = "DUPLICATE_FIELD"
)

// Error is the structured error type surfaced by store operations.
// Detail carries the underlying cause (for validation rejections, the
// rule engine's *rules.RuleError).
type Error struct {
	Code    Code
	Field   string
	Path    string
	Message string
	Detail  error
}

func (e *Error) Error() string {
	switch {
	case e.Path != "" && e.Field != "":
		return fmt.Sprintf("%s: %s (field=%s, path=%s)", e.Code, e.Message, e.Field, e.Path)
	case e.Field != "":
		return fmt.Sprintf("%s: %s (field=%s)", e.Code, e.Message, e.Field)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// Unwrap exposes the underlying cause for errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Detail }

// IsValidationRejected reports whether err is a rejected validation.
// Uses errors.As to handle wrapped errors.
func IsValidationRejected(err error) bool { return hasCode(err, CodeValidationRejected) }

// IsUnknownField reports whether err targets an unregistered field.
func IsUnknownField(err error) bool { return hasCode(err, CodeUnknownField) }

// IsMissingRule reports whether err is a write to a field without a rule.
func IsMissingRule(err error) bool { return hasCode(err, CodeMissingRule) }

// IsHistoryMismatch reports whether err is a history field-set mismatch.
func IsHistoryMismatch(err error) bool { return hasCode(err, CodeHistoryMismatch) }

// IsBadPath reports whether err is a path resolution failure.
func IsBadPath(err error) bool { return hasCode(err, CodeBadPath) }

func hasCode(err error, code Code) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
