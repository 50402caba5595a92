// Package remote classifies failures returned by external HTTP APIs so
// callers can decide between retrying, failing the run, or aborting startup.
package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// ConfigError marks a deployment problem that must stop the process before
// it accepts any ingestion: missing credentials, index dimension mismatch.
type ConfigError struct {
	Setting string
	Err     error
}

// Error returns the formatted error message.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error (%s): %v", e.Setting, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error { return e.Err }

// TransientError marks a failure worth retrying: 429, 5xx, network resets,
// timeouts. It is surfaced to callers only after the retry budget is spent.
type TransientError struct {
	Op         string // operation being performed, e.g. "search tickets"
	StatusCode int    // zero for pure network errors
	Err        error
}

// Error returns the formatted error message.
func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: transient HTTP %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: transient: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError marks a failure that will not succeed on retry: 4xx other
// than 429, malformed responses, model-not-found.
type PermanentError struct {
	Op         string
	StatusCode int
	Body       string // response body, included for operator diagnosis
	Err        error
}

// Error returns the formatted error message.
func (e *PermanentError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Op, e.StatusCode)
}

// Unwrap returns the underlying error.
func (e *PermanentError) Unwrap() error { return e.Err }

// IsTransient reports whether err (or anything it wraps) is a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// IsNotFound reports whether err is a PermanentError carrying HTTP 404.
// Used by existence checks where a missing resource is an expected outcome.
func IsNotFound(err error) bool {
	var pe *PermanentError
	if errors.As(err, &pe) {
		return pe.StatusCode == http.StatusNotFound
	}
	return false
}

// RetryableStatus reports whether an HTTP status code should be retried.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
