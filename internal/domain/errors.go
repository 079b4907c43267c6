// Package domain provides the shared types and canonical error taxonomy
// for the gateway.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of an API error.
type ErrorType string

const (
	// ErrorTypeValidation indicates a malformed or invalid request.
	ErrorTypeValidation ErrorType = "validation"

	// ErrorTypeAdmission indicates the request was rejected by admission
	// control (rate limit or token budget). Terminal for this request.
	ErrorTypeAdmission ErrorType = "admission"

	// ErrorTypeProvider indicates an upstream model, embedding, or vector
	// store failure.
	ErrorTypeProvider ErrorType = "provider"

	// ErrorTypeNotFound indicates an unknown tenant, session, or route.
	ErrorTypeNotFound ErrorType = "not_found"

	// ErrorTypeInternal indicates an unexpected failure in orchestration glue.
	ErrorTypeInternal ErrorType = "internal"
)

// APIError is a canonical error carrying a stable machine-readable code,
// a human message, and an HTTP status. Internal causes are kept on the
// wrapped error and never rendered into Message.
type APIError struct {
	Type    ErrorType `json:"-"`
	Code    string    `json:"code"`
	Message string    `json:"message"`

	// StatusCode is the suggested HTTP status code.
	StatusCode int `json:"-"`

	cause error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Type, e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Type, e.Code, e.Message)
}

// Unwrap exposes the internal cause for errors.Is/As chains.
func (e *APIError) Unwrap() error {
	return e.cause
}

// WithCause attaches an internal cause to the error. The cause is logged,
// never surfaced to clients.
func (e *APIError) WithCause(err error) *APIError {
	e.cause = err
	return e
}

// HTTPStatusCode returns the appropriate HTTP status code for this error.
func (e *APIError) HTTPStatusCode() int {
	if e.StatusCode != 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeAdmission:
		return http.StatusTooManyRequests
	case ErrorTypeProvider:
		return http.StatusBadGateway
	case ErrorTypeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// NewAPIError creates a new API error.
func NewAPIError(errType ErrorType, code, message string) *APIError {
	return &APIError{
		Type:    errType,
		Code:    code,
		Message: message,
	}
}

// WithStatusCode sets a specific HTTP status code.
func (e *APIError) WithStatusCode(code int) *APIError {
	e.StatusCode = code
	return e
}

// Convenience constructors for common errors

// ErrInvalidRequest creates a validation error.
func ErrInvalidRequest(message string) *APIError {
	return NewAPIError(ErrorTypeValidation, "invalid_request", message)
}

// ErrInvalidJSON creates a validation error for undecodable bodies.
func ErrInvalidJSON() *APIError {
	return NewAPIError(ErrorTypeValidation, "invalid_json", "Invalid JSON")
}

// ErrRateLimited creates an admission error for an exhausted rate limit.
func ErrRateLimited() *APIError {
	return NewAPIError(ErrorTypeAdmission, "rate_limited", "Rate limit exceeded")
}

// ErrBudgetExceeded creates an admission error for an exhausted token budget.
func ErrBudgetExceeded(window string) *APIError {
	return NewAPIError(ErrorTypeAdmission, "budget_exceeded",
		fmt.Sprintf("%s token budget exceeded", window))
}

// ErrModelNotAllowed creates an admission error for a model outside the
// tenant's allow-list.
func ErrModelNotAllowed() *APIError {
	return NewAPIError(ErrorTypeAdmission, "model_not_allowed",
		"Requested model is not allowed").WithStatusCode(http.StatusForbidden)
}

// ErrProviderUnavailable creates a provider error.
func ErrProviderUnavailable() *APIError {
	return NewAPIError(ErrorTypeProvider, "ai_error", "AI provider unavailable")
}

// ErrNoContent creates a validation error for empty ingest payloads.
func ErrNoContent() *APIError {
	return NewAPIError(ErrorTypeValidation, "no_content", "Document produced no chunks")
}

// ErrNotFound creates a not found error.
func ErrNotFound(message string) *APIError {
	return NewAPIError(ErrorTypeNotFound, "not_found", message)
}

// ErrMethodNotAllowed creates a validation error for a known route hit
// with the wrong HTTP method.
func ErrMethodNotAllowed() *APIError {
	return NewAPIError(ErrorTypeValidation, "method_not_allowed",
		"Method not allowed").WithStatusCode(http.StatusMethodNotAllowed)
}

// ErrTenantUnknown creates a not found error for unresolvable tenants.
func ErrTenantUnknown() *APIError {
	return NewAPIError(ErrorTypeNotFound, "tenant_unknown", "Unknown tenant")
}

// ErrInternal creates an internal error.
func ErrInternal(message string) *APIError {
	return NewAPIError(ErrorTypeInternal, "internal", message)
}

// AsAPIError extracts an *APIError from err, or wraps err as an internal
// error so handlers always have a coded error to render.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrInternal("Internal error").WithCause(err)
}
