package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProductNotFound is returned when a product id is unknown to the backend
	ErrProductNotFound = errors.New("product not found")

	// ErrAlertNotFound is returned when an alert id is unknown
	ErrAlertNotFound = errors.New("alert not found")

	// ErrInvalidProductID is returned when an identifier is not a valid integer id
	ErrInvalidProductID = errors.New("invalid product id")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrNotAuthenticated is returned when an operation needs a signed-in user
	ErrNotAuthenticated = errors.New("user not authenticated")

	// ErrInvalidCredentials is returned when sign-in fails
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned when a session token cannot be verified
	ErrInvalidToken = errors.New("invalid session token")

	// ErrBackendFailure is returned when a live backend request fails
	ErrBackendFailure = errors.New("backend request failed")

	// ErrBackendUnavailable is returned by the liveness probe
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrRateLimited is returned when the live backend throttles us
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrExtensionUnavailable is returned when no extension storage is configured
	ErrExtensionUnavailable = errors.New("extension storage unavailable")

	// ErrExtractionFailed is returned when a page yields no product
	ErrExtractionFailed = errors.New("product extraction failed")
)

// APIError is a failed live backend call carrying the server's message
type APIError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error [%d]: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// FieldError is a single validation failure
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationError collects every field failure of one input
type ValidationError struct {
	Errors []FieldError `json:"details"`
}

func (e *ValidationError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		msgs = append(msgs, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Unwrap lets callers match validation failures with ErrInvalidRequest
func (e *ValidationError) Unwrap() error {
	return ErrInvalidRequest
}
