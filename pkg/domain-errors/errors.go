// Package domainerrors defines the typed error taxonomy returned by domain
// services. Handlers translate codes to HTTP statuses via ToHTTPStatus;
// services attach codes via New/Wrap and branch on them via HasCode.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code identifies the class of a domain error.
type Code string

const (
	// CodeNotFound signals an unknown aggregate id.
	CodeNotFound Code = "not_found"
	// CodeConflict signals a duplicate aggregate for a case (one assessment /
	// one work item per case) or a uniqueness violation.
	CodeConflict Code = "conflict"
	// CodeValidation signals missing or malformed input, e.g. an empty
	// override justification or an unmapped enum value.
	CodeValidation Code = "validation"
	// CodeInvalidState signals an operation that is not legal from the
	// aggregate's current state machine state.
	CodeInvalidState Code = "invalid_state"
	// CodePreconditionFailed signals a guard failure that is not a state
	// machine violation, e.g. starting review without an assignee.
	CodePreconditionFailed Code = "precondition_failed"
	// CodeUnauthorized signals a four-eyes violation: the same actor
	// attempting sequential review and approval steps.
	CodeUnauthorized Code = "unauthorized_transition"
	// CodeConcurrencyConflict signals an optimistic version mismatch; the
	// caller must reload the aggregate and retry.
	CodeConcurrencyConflict Code = "concurrency_conflict"
	// CodeInvariantViolation signals a broken aggregate invariant detected at
	// construction or mutation time.
	CodeInvariantViolation Code = "invariant_violation"
	// CodeBadRequest signals a malformed request at the transport boundary.
	CodeBadRequest Code = "bad_request"
	// CodeTimeout signals a cancelled or deadline-exceeded operation.
	CodeTimeout Code = "timeout"
	// CodeInternal signals an unexpected infrastructure failure.
	CodeInternal Code = "internal"
)

// Error carries a code, a caller-safe message, and an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New constructs a domain error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error, preserving the
// cause for errors.Is / errors.As inspection.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or any error it wraps) is a domain error with
// the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// CodeOf returns the code of err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain error code to its HTTP response status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeConcurrencyConflict:
		return http.StatusConflict
	case CodeValidation, CodeBadRequest, CodeInvariantViolation:
		return http.StatusBadRequest
	case CodeInvalidState, CodePreconditionFailed:
		return http.StatusUnprocessableEntity
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
