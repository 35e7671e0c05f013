// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Standard sentinel errors
var (
	ErrTradeClosed     = errors.New("trade is already closed")
	ErrTradeNotFound   = errors.New("trade not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrSyncDisabled    = errors.New("broker sync disabled")
	ErrSyncCoolingDown = errors.New("broker sync in cooldown")
	ErrMappingConflict = errors.New("conflicting global mapping")
	ErrNoRates         = errors.New("no fx rates available")
	ErrNotConfigured   = errors.New("broker not configured")
)

// ValidationError represents a validation error on user input. It is
// rejected synchronously and never retried.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// BrokerErrorKind classifies broker failures for retry/cooldown handling.
type BrokerErrorKind string

const (
	BrokerAuth      BrokerErrorKind = "auth"
	BrokerRateLimit BrokerErrorKind = "rate_limit"
	BrokerNetwork   BrokerErrorKind = "network"
	BrokerParse     BrokerErrorKind = "parse"
)

// BrokerError represents an error from the broker API.
type BrokerError struct {
	Kind    BrokerErrorKind
	Code    int // HTTP status when applicable
	Message string
	// RetryAfter is the broker's rate-limit hint, zero if none was given.
	RetryAfter time.Duration
	Err        error
}

func (e *BrokerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("broker error [%s]: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("broker error [%s]: %s", e.Kind, e.Message)
}

func (e *BrokerError) Unwrap() error {
	return e.Err
}

// NewBrokerError creates a new BrokerError.
func NewBrokerError(kind BrokerErrorKind, code int, message string, err error) *BrokerError {
	return &BrokerError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// BrokerKind returns the broker error kind in err's chain, or "" if err is
// not a broker error.
func BrokerKind(err error) BrokerErrorKind {
	var be *BrokerError
	if errors.As(err, &be) {
		return be.Kind
	}
	return ""
}

// IsRetryable reports whether err is transient and safe to retry within a
// single sync attempt. Only network failures qualify: auth and rate-limit
// failures are handled by disable/cooldown, parse failures abandon the
// attempt outright.
func IsRetryable(err error) bool {
	return BrokerKind(err) == BrokerNetwork
}

// RetryAfter extracts the broker's rate-limit hint from err, zero if none.
func RetryAfter(err error) time.Duration {
	var be *BrokerError
	if errors.As(err, &be) {
		return be.RetryAfter
	}
	return 0
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
