package errors

import (
	"errors"
	"fmt"
)

var (
	// Oracle errors
	ErrOracleUnavailable   = errors.New("payment notification channel unavailable")
	ErrNoMatchFound        = errors.New("no matching payment notification")
	ErrUnsupportedCurrency = errors.New("unsupported currency")

	// Sale errors
	ErrUnknownPaymentMethod = errors.New("unknown payment option")
	ErrSaleInProgress       = errors.New("another sale is in progress")

	// Display errors
	ErrDisplayUnavailable = errors.New("display unavailable")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
