package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors shared by the storage layers.
var (
	ErrNotFound        = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrAlreadyExists   = errors.New("already exists")
)

// APIError represents a standardized error response
type APIError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error codes for different failure scenarios
const (
	ErrInvalidInput    = "INVALID_INPUT"
	ErrValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeConflict    = "VERSION_CONFLICT"
	ErrDatabaseError   = "DATABASE_ERROR"
	ErrAuthentication  = "AUTHENTICATION_ERROR"
	ErrRateLimit       = "RATE_LIMIT_EXCEEDED"
	ErrExport          = "EXPORT_ERROR"
	ErrTimeout         = "REQUEST_TIMEOUT"
	ErrInternalServer  = "INTERNAL_SERVER_ERROR"
	ErrPackTampered    = "PACK_TAMPERED"
	ErrSecretMissing   = "SIGNING_SECRET_MISSING"
	ErrDuplicateReview = "DUPLICATE_SECOND_READING"
)

// ValidationError represents input validation errors
type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// NewAPIError creates a new APIError with timestamp
func NewAPIError(code, message, details, requestID string) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: time.Now().UTC(),
		RequestID: requestID,
	}
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
	}
}
