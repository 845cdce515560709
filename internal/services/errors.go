package services

import (
	"errors"
	"fmt"
	"net/http"

	"modrota/internal/repositories"
)

// ===============================
// ERROR TYPES
// ===============================

// ServiceError represents a structured service error
type ServiceError struct {
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
	StatusCode int                    `json:"-"`
	Cause      error                  `json:"-"`
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// GetStatusCode returns the HTTP status code for this error
func (e *ServiceError) GetStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}
	return http.StatusInternalServerError
}

// ===============================
// ERROR CONSTRUCTORS
// ===============================

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *ServiceError {
	return &ServiceError{
		Type:       "VALIDATION_ERROR",
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Cause:      cause,
	}
}

// NewBusinessError creates a business logic error
func NewBusinessError(message, code string) *ServiceError {
	return &ServiceError{
		Type:       "BUSINESS_ERROR",
		Message:    message,
		Code:       code,
		StatusCode: http.StatusUnprocessableEntity,
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message string) *ServiceError {
	return &ServiceError{
		Type:       "NOT_FOUND",
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewPreconditionError reports a state race lost to a concurrent transition:
// an invitation answered after its sweep, a badge settled twice, a decision
// on already-resolved content. Clients should refetch and retry.
func NewPreconditionError(message, code string) *ServiceError {
	return &ServiceError{
		Type:       "PRECONDITION_FAILED",
		Message:    message,
		Code:       code,
		StatusCode: http.StatusConflict,
	}
}

// NewForbiddenError creates a forbidden error
func NewForbiddenError(message string) *ServiceError {
	return &ServiceError{
		Type:       "FORBIDDEN",
		Message:    message,
		StatusCode: http.StatusForbidden,
	}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError(message string) *ServiceError {
	return &ServiceError{
		Type:       "UNAUTHORIZED",
		Message:    message,
		StatusCode: http.StatusUnauthorized,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *ServiceError {
	return &ServiceError{
		Type:       "INTERNAL_ERROR",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
	}
}

// ===============================
// ERROR UTILITIES
// ===============================

// GetServiceError extracts a ServiceError from an error, or creates a generic one
func GetServiceError(err error) *ServiceError {
	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	return NewInternalError(err.Error())
}

// IsErrorType checks if an error is of a specific type
func IsErrorType(err error, errorType string) bool {
	if serviceErr := GetServiceError(err); serviceErr != nil {
		return serviceErr.Type == errorType
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return IsErrorType(err, "NOT_FOUND")
}

// IsPreconditionError checks if an error is a state-race error
func IsPreconditionError(err error) bool {
	return IsErrorType(err, "PRECONDITION_FAILED")
}

// mapRepositoryError translates repository sentinels into client-facing
// service errors. Unknown errors pass through wrapped as internal.
func mapRepositoryError(err error, entity string) *ServiceError {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		return NewNotFoundError(fmt.Sprintf("%s not found", entity))
	case errors.Is(err, repositories.ErrStaleState):
		return NewPreconditionError(
			fmt.Sprintf("%s was changed by a concurrent operation", entity),
			"STALE_STATE",
		)
	case errors.Is(err, repositories.ErrAlreadyResolved):
		return NewPreconditionError(
			"content flags were already resolved by another decision",
			"ALREADY_RESOLVED",
		)
	default:
		return &ServiceError{
			Type:       "INTERNAL_ERROR",
			Message:    fmt.Sprintf("operation on %s failed", entity),
			StatusCode: http.StatusInternalServerError,
			Cause:      err,
		}
	}
}
