// Package errors provides error classification and handling for meraki-toolkit.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"meraki-toolkit/internal/dashboard"
)

// ErrorType represents the classification of errors
type ErrorType int

const (
	// ConfigurationErrorType covers invalid input detected before any remote call
	ConfigurationErrorType ErrorType = iota

	// RateLimitErrorType is an HTTP 429 from the dashboard
	RateLimitErrorType

	// APIErrorType is any other remote rejection
	APIErrorType

	// ConfirmationErrorType means the remote accepted an update but echoed a
	// different PSK
	ConfirmationErrorType

	// UnexpectedErrorType is everything else: transport, decoding, cancellation
	UnexpectedErrorType
)

var allTypes = []ErrorType{
	ConfigurationErrorType,
	RateLimitErrorType,
	APIErrorType,
	ConfirmationErrorType,
	UnexpectedErrorType,
}

// String returns a string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ConfigurationErrorType:
		return "configuration"
	case RateLimitErrorType:
		return "rate_limit"
	case APIErrorType:
		return "api"
	case ConfirmationErrorType:
		return "confirmation"
	case UnexpectedErrorType:
		return "unexpected"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps an error with classification information
type ClassifiedError struct {
	Type     ErrorType
	Original error
	Message  string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	switch {
	case ce.Message != "" && ce.Original != nil:
		return ce.Message + ": " + ce.Original.Error()
	case ce.Message != "":
		return ce.Message
	case ce.Original != nil:
		return ce.Original.Error()
	default:
		return "unknown error"
	}
}

// Unwrap returns the original error for error unwrapping
func (ce *ClassifiedError) Unwrap() error {
	return ce.Original
}

// IsRetryable reports whether the same call may simply be attempted again.
// Only rate limiting qualifies.
func (ce *ClassifiedError) IsRetryable() bool {
	return ce.Type == RateLimitErrorType
}

// IsFatal reports whether the error must abort the whole run
func (ce *ClassifiedError) IsFatal() bool {
	return ce.Type == ConfigurationErrorType || ce.Type == UnexpectedErrorType
}

// ConfirmationError reports that an update response carried a PSK other
// than the one submitted.
type ConfirmationError struct {
	NetworkID  string
	SSIDNumber int
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("network %s ssid %d: psk in response does not match submitted passphrase", e.NetworkID, e.SSIDNumber)
}

// ClassifyError inspects the error chain and returns its classification.
// An error that is already classified keeps its type.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if stderrors.As(err, &classified) {
		return classified
	}

	var rateLimited *dashboard.RateLimitedError
	if stderrors.As(err, &rateLimited) {
		return &ClassifiedError{Type: RateLimitErrorType, Original: err}
	}

	var confirmation *ConfirmationError
	if stderrors.As(err, &confirmation) {
		return &ClassifiedError{Type: ConfirmationErrorType, Original: err}
	}

	var apiErr *dashboard.APIError
	if stderrors.As(err, &apiErr) {
		return &ClassifiedError{Type: APIErrorType, Original: err}
	}

	return &ClassifiedError{Type: UnexpectedErrorType, Original: err}
}

// TypeOf is shorthand for ClassifyError(err).Type
func TypeOf(err error) ErrorType {
	return ClassifyError(err).Type
}

// NewConfigurationError creates a configuration error
func NewConfigurationError(message string, original error) *ClassifiedError {
	return &ClassifiedError{
		Type:     ConfigurationErrorType,
		Original: original,
		Message:  message,
	}
}

// NewUnexpectedError creates an unexpected error
func NewUnexpectedError(message string, original error) *ClassifiedError {
	return &ClassifiedError{
		Type:     UnexpectedErrorType,
		Original: original,
		Message:  message,
	}
}

// ErrorCollector collects and categorizes errors. Safe for concurrent use.
type ErrorCollector struct {
	mu     sync.Mutex
	errors map[ErrorType][]error
	count  int
}

// NewErrorCollector creates a new error collector
func NewErrorCollector() *ErrorCollector {
	return &ErrorCollector{
		errors: make(map[ErrorType][]error),
	}
}

// Add adds an error to the collector
func (ec *ErrorCollector) Add(err error) {
	if err == nil {
		return
	}

	classified := ClassifyError(err)

	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.errors[classified.Type] = append(ec.errors[classified.Type], err)
	ec.count++
}

// Count returns the total number of errors
func (ec *ErrorCollector) Count() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.count
}

// CountByType returns the number of errors of a specific type
func (ec *ErrorCollector) CountByType(errorType ErrorType) int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return len(ec.errors[errorType])
}

// HasErrors returns true if there are any errors
func (ec *ErrorCollector) HasErrors() bool {
	return ec.Count() > 0
}

// HasErrorsOfType returns true if there are errors of the specified type
func (ec *ErrorCollector) HasErrorsOfType(errorType ErrorType) bool {
	return ec.CountByType(errorType) > 0
}

// GetErrorsByType returns all errors of a specific type
func (ec *ErrorCollector) GetErrorsByType(errorType ErrorType) []error {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return append([]error(nil), ec.errors[errorType]...)
}

// Summary returns a summary of all collected errors
func (ec *ErrorCollector) Summary() string {
	ec.mu.Lock()
	defer ec.mu.Unlock()

	if ec.count == 0 {
		return "no errors"
	}

	var parts []string
	for _, errorType := range allTypes {
		if n := len(ec.errors[errorType]); n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, errorType))
		}
	}

	return fmt.Sprintf("total: %d errors (%s)", ec.count, strings.Join(parts, ", "))
}
