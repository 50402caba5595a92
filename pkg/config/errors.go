package config

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingRequiredField indicates a required setting is missing
	ErrMissingRequiredField = errors.New("missing required setting")

	// ErrInvalidValue indicates a setting has an invalid value
	ErrInvalidValue = errors.New("invalid setting value")

	// ErrTicketingNotConfigured indicates ticketing platform credentials are
	// absent. Ingestion endpoints reject requests; the process keeps running.
	ErrTicketingNotConfigured = errors.New("ticketing platform credentials not configured")
)

// ValidationError wraps configuration validation errors with context.
type ValidationError struct {
	Section string // configuration section (zendesk, embedding, vectorstore, ingestion)
	Field   string // field name
	Err     error  // underlying error
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: field '%s': %v", e.Section, e.Field, e.Err)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError creates a new validation error.
func NewValidationError(section, field string, err error) *ValidationError {
	return &ValidationError{Section: section, Field: field, Err: err}
}

// LoadError wraps configuration loading errors with file context.
type LoadError struct {
	File string
	Err  error
}

// Error returns the formatted error message.
func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.File, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error { return e.Err }
