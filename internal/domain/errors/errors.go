package errors

import (
	"errors"
	"fmt"
)

// Error types for different failure classes
type ErrorType string

const (
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypeConfiguration    ErrorType = "configuration"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeInternal         ErrorType = "internal"
	ErrorTypeModelUnavailable ErrorType = "model_unavailable"
	ErrorTypeTimeout          ErrorType = "timeout"
)

// AppError represents a structured application error
type AppError struct {
	Type      ErrorType              `json:"type"`
	Code      string                 `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Retryable bool                   `json:"retryable"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// Error constructors
func NewValidationError(code, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// NewConfigurationError reports a programming or deployment bug, such as a
// duplicate indicator registration or malformed weights. Fatal at startup.
func NewConfigurationError(code, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeConfiguration,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Type:      ErrorTypeNotFound,
		Code:      "RESOURCE_NOT_FOUND",
		Message:   fmt.Sprintf("%s not found", resource),
		Retryable: false,
	}
}

func NewInternalError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeInternal,
		Code:      "INTERNAL_ERROR",
		Message:   message,
		Retryable: true,
	}
}

// NewModelUnavailableError reports an anomaly method that cannot score. The
// detector resolves it by redistributing the method's weight; it is never
// fatal unless every method is down.
func NewModelUnavailableError(method, message string) *AppError {
	return &AppError{
		Type:      ErrorTypeModelUnavailable,
		Code:      "MODEL_UNAVAILABLE",
		Message:   message,
		Retryable: true,
		Details:   map[string]interface{}{"method": method},
	}
}

func NewTimeoutError(message string) *AppError {
	return &AppError{
		Type:      ErrorTypeTimeout,
		Code:      "EVALUATION_TIMEOUT",
		Message:   message,
		Retryable: true,
	}
}

// Predefined common errors
var (
	ErrTenderNotFound   = NewNotFoundError("tender")
	ErrBaselineNotFound = NewNotFoundError("market baseline")
	ErrFeatureVector    = NewNotFoundError("feature vector")
)

// Wrap wraps an error with a message using fmt.Errorf with %w
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// IsType checks if an error is of a specific type
func IsType(err error, errorType ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errorType
	}
	return false
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}
