package errors

import (
	"errors"
	"fmt"
)

// Dispatch errors - these never reach the event producer, they are logged and counted.
var (
	ErrSettingsUnavailable       = errors.New("settings unavailable")
	ErrRecipientEnrichmentFailed = errors.New("recipient enrichment failed")
	ErrRenderFailed              = errors.New("template render failed")
	ErrDeliveryFailed            = errors.New("delivery failed")
	ErrHandlerPanic              = errors.New("event handler panicked")
	ErrChannelNotConfigured      = errors.New("delivery channel not configured")
)

// Event bus errors
var (
	ErrBusClosed           = errors.New("event bus is closed")
	ErrUnknownEventKind    = errors.New("unknown event kind")
	ErrInvalidEventPayload = errors.New("invalid event payload")
	ErrTicketIDRequired    = errors.New("ticket ID is required")
	ErrAccountIDRequired   = errors.New("account ID is required")
)

// Authentication & Authorization
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("action forbidden")
)

// Generic
var (
	ErrRateLimited = errors.New("rate limit exceeded")
)

// AppError wraps errors with additional context for HTTP responses
type AppError struct {
	Err        error  // The underlying error
	Message    string // User-friendly message
	Code       string // Machine-readable error code
	StatusCode int    // HTTP status code
	Details    map[string]interface{}
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Error constructors for common cases
func NewBadRequestError(err error, message string) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		Code:       "BAD_REQUEST",
		StatusCode: 400,
	}
}

// ValidationErrors holds multiple field validation errors
type ValidationErrors struct {
	Errors map[string][]string `json:"errors"`
}

func NewValidationErrors() *ValidationErrors {
	return &ValidationErrors{
		Errors: make(map[string][]string),
	}
}

func (v *ValidationErrors) Add(field, message string) {
	v.Errors[field] = append(v.Errors[field], message)
}

func (v *ValidationErrors) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationErrors) Error() string {
	return fmt.Sprintf("validation failed: %d field(s) have errors", len(v.Errors))
}

// Unwrap lets callers match validation failures with errors.Is(err, ErrInvalidEventPayload).
func (v *ValidationErrors) Unwrap() error {
	return ErrInvalidEventPayload
}
