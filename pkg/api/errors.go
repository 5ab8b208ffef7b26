package api

import (
	"errors"
	"fmt"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeInvalidRequest  ErrorType = "invalid_request"
	ErrorTypeUnauthenticated ErrorType = "unauthenticated"
	ErrorTypeNotFound        ErrorType = "not_found"
	ErrorTypeModelError      ErrorType = "model_error"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
	ErrorTypeUnavailable     ErrorType = "unavailable"
)

// APIError is the structured error used at the HTTP and model boundaries.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Retryable reports whether a caller may reasonably retry the request.
func (e *APIError) Retryable() bool {
	switch e.Type {
	case ErrorTypeTooManyRequests, ErrorTypeUnavailable:
		return true
	}
	return false
}

// ErrorResponse wraps an APIError as the top-level JSON error body.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// AsAPIError returns err as an *APIError, wrapping anything else as a
// server error. It returns nil for a nil error.
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return NewServerError(err.Error())
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{Type: ErrorTypeInvalidRequest, Param: param, Message: message}
}

// NewUnauthenticatedError creates an APIError for missing or bad credentials.
func NewUnauthenticatedError(message string) *APIError {
	return &APIError{Type: ErrorTypeUnauthenticated, Message: message}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{Type: ErrorTypeNotFound, Message: message}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{Type: ErrorTypeServerError, Message: message}
}

// NewModelError creates an APIError for failures of the language model backend.
func NewModelError(message string) *APIError {
	return &APIError{Type: ErrorTypeModelError, Message: message}
}

// NewTooManyRequestsError creates an APIError for rate limiting and capacity.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{Type: ErrorTypeTooManyRequests, Message: message}
}

// NewUnavailableError creates an APIError for an unreachable dependency.
func NewUnavailableError(message string) *APIError {
	return &APIError{Type: ErrorTypeUnavailable, Message: message}
}
