package backend

import (
	"errors"
	"fmt"
)

// APIError is a structured error response from the chat backend. Callers
// use errors.As to extract it:
//
//	var apiErr *backend.APIError
//	if errors.As(err, &apiErr) {
//	    if apiErr.Code == backend.CodeNotAuthorized { ... }
//	}
//
// Transport-level failures (connection refused, timeouts) are returned as
// plain wrapped errors, never as *APIError — read paths use that
// distinction to degrade instead of failing.
type APIError struct {
	// Code is the backend error code (e.g. "not_authorized").
	Code string `json:"code"`
	// Message is the human-readable description from the server.
	Message string `json:"message"`
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Backend error codes.
const (
	CodeNotFound      = "not_found"
	CodeNotAuthorized = "not_authorized"
	CodeConflict      = "conflict"
	CodeValidation    = "validation"
)

// IsCode checks whether err is an *APIError with the given code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}
