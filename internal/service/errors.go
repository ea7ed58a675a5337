package service

import (
	"errors"
	"fmt"

	"standup-desk/pkg/validator"
)

// Error codes surfaced to API clients
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeGoalAlreadySet   = "GOAL_ALREADY_SET"
	CodeNoGoalSet        = "NO_GOAL_SET"
	CodeAlreadySubmitted = "ALREADY_SUBMITTED"
	CodeInvalidStatus    = "INVALID_STATUS"
	CodeAlreadyResolved  = "ALREADY_RESOLVED"
	CodeNotFound         = "NOT_FOUND"
	CodeForbidden        = "FORBIDDEN"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeTokenExpired     = "TOKEN_EXPIRED"
	CodeServerError      = "SERVER_ERROR"
)

// Error is a request-level failure with a stable code
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches errors carrying the same code
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Code == e.Code
	}
	return false
}

// NewError creates an error with the given code and message
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// ErrorCode returns the code of err, or SERVER_ERROR for unclassified errors
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeServerError
}

// notFound builds a NOT_FOUND error for a resource
func notFound(resource string) *Error {
	return NewError(CodeNotFound, resource+" not found")
}

// forbidden builds a FORBIDDEN error
func forbidden(message string) *Error {
	return NewError(CodeForbidden, message)
}

// validationError wraps validator failures, keeping the per-field details
func validationError(err error) error {
	if err == nil {
		return nil
	}
	var fields validator.ValidationErrors
	if errors.As(err, &fields) {
		return &Error{Code: CodeValidation, Message: fields[0].Message, Details: fields}
	}
	return &Error{Code: CodeValidation, Message: err.Error()}
}

// invalidField builds a VALIDATION_ERROR for a single field
func invalidField(field, message string) *Error {
	return &Error{
		Code:    CodeValidation,
		Message: message,
		Details: validator.ValidationErrors{{Field: field, Message: message}},
	}
}
