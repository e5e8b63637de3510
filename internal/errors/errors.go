package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// PageError is the structured error type for pagegenie.
// It provides rich context for error handling, logging, and user presentation.
type PageError struct {
	// Code is the unique error code (e.g., "ERR_302_EMBEDDING_FAILED").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, Store, Upstream, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the client may resend the request.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Error implements the error interface.
func (e *PageError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *PageError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
func (e *PageError) Is(target error) bool {
	if t, ok := target.(*PageError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
func (e *PageError) WithDetail(key, value string) *PageError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
func (e *PageError) WithSuggestion(suggestion string) *PageError {
	e.Suggestion = suggestion
	return e
}

// New creates a new PageError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *PageError {
	return &PageError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a PageError from an existing error.
// The error's message becomes the PageError message.
func Wrap(code string, err error) *PageError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *PageError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// StoreError creates a storage error. Store errors are fatal to the current request.
func StoreError(message string, cause error) *PageError {
	return New(ErrCodeStoreQuery, message, cause)
}

// UpstreamError creates an error for a failed external capability call.
// A deadline expiry in cause is reported with the timeout code instead.
func UpstreamError(code string, message string, cause error) *PageError {
	if stderrors.Is(cause, context.DeadlineExceeded) {
		return New(ErrCodeUpstreamTimeout, message+": timed out", cause)
	}
	return New(code, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *PageError {
	return New(ErrCodeInvalidInput, message, cause)
}

// PersistenceWarning reports that an answer was produced but saving or
// re-indexing it did not fully succeed.
func PersistenceWarning(message string, cause error) *PageError {
	return New(ErrCodePersistenceWarning, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *PageError {
	return New(ErrCodeInternal, message, cause)
}

// As finds the first PageError in err's chain.
func As(err error) (*PageError, bool) {
	var pe *PageError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if pe, ok := As(err); ok {
		return pe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
func IsFatal(err error) bool {
	if pe, ok := As(err); ok {
		return pe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a PageError.
// Returns empty string if err carries no PageError.
func GetCode(err error) string {
	if pe, ok := As(err); ok {
		return pe.Code
	}
	return ""
}

// GetCategory extracts the category from a PageError.
func GetCategory(err error) Category {
	if pe, ok := As(err); ok {
		return pe.Category
	}
	return ""
}
