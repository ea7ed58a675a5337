// Package response writes the JSON envelope every API endpoint answers with:
// {success, data, message, error{code, message, details}}.
package response

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"standup-desk/internal/service"
)

// Extra codes produced by the HTTP layer itself
const (
	CodeRateLimited      = "RATE_LIMITED"
	CodeInvalidJSON      = "INVALID_JSON"
	CodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
)

// Envelope is the body of every response
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed request
type ErrorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// hideInternal replaces SERVER_ERROR messages with a generic text
var hideInternal bool

// HideInternalErrors controls whether unclassified error messages reach the
// client. It is switched on in production.
func HideInternalErrors(hide bool) {
	hideInternal = hide
}

// OK writes a 200 envelope with data
func OK(w http.ResponseWriter, data interface{}, message string) {
	JSON(w, http.StatusOK, Envelope{Success: true, Data: normalizeSlices(data), Message: message})
}

// Created writes a 201 envelope with data
func Created(w http.ResponseWriter, data interface{}, message string) {
	JSON(w, http.StatusCreated, Envelope{Success: true, Data: normalizeSlices(data), Message: message})
}

// Fail writes an error envelope with an explicit status
func Fail(w http.ResponseWriter, status int, code, message string, details interface{}) {
	JSON(w, status, Envelope{
		Success: false,
		Error:   &ErrorBody{Code: code, Message: message, Details: details},
	})
}

// Error writes err as an envelope. Service errors keep their code and
// details; anything else is logged and becomes SERVER_ERROR.
func Error(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		Fail(w, Status(svcErr.Code), svcErr.Code, svcErr.Message, svcErr.Details)
		return
	}

	slog.Error("Request failed with internal error",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	message := err.Error()
	if hideInternal {
		message = "an internal error occurred"
	}
	Fail(w, http.StatusInternalServerError, service.CodeServerError, message, nil)
}

// Status maps an error code to its HTTP status
func Status(code string) int {
	switch code {
	case service.CodeValidation, CodeInvalidJSON:
		return http.StatusBadRequest
	case service.CodeUnauthorized, service.CodeTokenExpired:
		return http.StatusUnauthorized
	case service.CodeForbidden:
		return http.StatusForbidden
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeGoalAlreadySet, service.CodeNoGoalSet, service.CodeAlreadySubmitted,
		service.CodeInvalidStatus, service.CodeAlreadyResolved:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// Decode reads a JSON request body into v. Unknown fields are rejected.
func Decode(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &service.Error{Code: CodeInvalidJSON, Message: "invalid request body: " + err.Error()}
	}
	return nil
}
