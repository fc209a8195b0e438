package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies every failure an action attempt can surface.
// Codes are stable API strings; handlers map them to HTTP statuses.
type ErrorCode string

const (
	CodeInvalidArgument  ErrorCode = "INVALID_ARGUMENT"  // schema/shape failure
	CodeScienceViolation ErrorCode = "SCIENCE_VIOLATION" // numeric bound failure
	CodeSafetyViolation  ErrorCode = "SAFETY_VIOLATION"  // contextual guardrail failure
	CodeStaleVersion     ErrorCode = "STALE_VERSION"     // optimistic-concurrency conflict
	CodePhaseGuard       ErrorCode = "PHASE_GUARD"       // action not valid in current phase
	CodeNotFound         ErrorCode = "NOT_FOUND"         // target card/workspace missing
	CodeUndoNotPossible  ErrorCode = "UNDO_NOT_POSSIBLE" // no reversible event in window
	CodeQueueCapExceeded ErrorCode = "QUEUE_CAP_EXCEEDED" // informational, triggers trim
)

// ErrorDetail carries field-level context for a failure.
type ErrorDetail struct {
	Field   string `bson:"field" json:"field"`
	Message string `bson:"message" json:"message"`
}

// Error is the typed error returned by the validator chain, the reducer
// and the transaction coordinator. All of them leave state unchanged when
// returning one of these.
type Error struct {
	Code    ErrorCode     `json:"code"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError creates a typed error with no field details.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewFieldError creates a typed error carrying one field-level detail.
func NewFieldError(code ErrorCode, message, field, detail string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Details: []ErrorDetail{{Field: field, Message: detail}},
	}
}

// WithDetail appends a field-level detail and returns the error for chaining.
func (e *Error) WithDetail(field, message string) *Error {
	e.Details = append(e.Details, ErrorDetail{Field: field, Message: message})
	return e
}

// CodeOf extracts the ErrorCode from err, or "" if err is not a domain Error.
func CodeOf(err error) ErrorCode {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsCode reports whether err is a domain Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}
