package recognition

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrEmptyImage is returned when a request carries no image.
	ErrEmptyImage = errors.New("recognition: image required")

	// ErrInvalidResponse is returned when a 2xx body is not a valid envelope.
	ErrInvalidResponse = errors.New("recognition: invalid response body")

	// ErrNoToken is returned by token providers that find no token.
	ErrNoToken = errors.New("recognition: anti-forgery token not found")
)

// StatusError is a response with a non-success HTTP status, or a success
// status whose body could not be decoded.
type StatusError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the server-supplied message, when the body had one.
	Message string

	// Endpoint is the request path.
	Endpoint string

	Err error
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("recognition: %s: HTTP %d: %s", e.Endpoint, e.StatusCode, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("recognition: %s: HTTP %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("recognition: %s: HTTP %d", e.Endpoint, e.StatusCode)
}

// Unwrap returns the underlying error.
func (e *StatusError) Unwrap() error {
	return e.Err
}

// IsForbidden returns true for HTTP 403, which the backend uses for a
// missing or stale anti-forgery token.
func (e *StatusError) IsForbidden() bool {
	return e.StatusCode == 403
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *StatusError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// NetworkError means no HTTP response was received at all.
type NetworkError struct {
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("recognition: %s: no response: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying error.
func (e *NetworkError) Unwrap() error {
	return e.Err
}
