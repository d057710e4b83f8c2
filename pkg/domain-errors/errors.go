// Package domainerrors carries coded errors from services to transports.
//
// Services return errors created with New or Wrap; handlers read the code with
// CodeOf and translate it to a status. Stores should not use this package; they
// return sentinel errors from pkg/platform/sentinel instead.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers and transports.
type Code string

const (
	// CodeValidation covers caller-fixable input problems (overshooting
	// amounts, operations on payments that are no longer pending).
	CodeValidation Code = "validation_error"
	CodeBadRequest Code = "bad_request"
	CodeNotFound   Code = "not_found"
	// CodeConflict signals concurrency collisions: sequence contention,
	// duplicate activation or uniqueness races.
	CodeConflict Code = "conflict"
	// CodeConfiguration is fatal to the current operation: missing fee
	// catalog, no active academic year.
	CodeConfiguration Code = "configuration_error"
	// CodeDependency marks a collaborator failure (email, rendering). It never
	// implies that committed financial state was rolled back.
	CodeDependency         Code = "dependency_failure"
	CodeInvalidState       Code = "invalid_state"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInternal           Code = "internal_error"
	CodeInvariantViolation Code = "invariant_violation"
)

// Error is a coded domain error. Cause is optional.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a coded error.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Cause: err}
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// chain carries no domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error carries code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for handler readability.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}
