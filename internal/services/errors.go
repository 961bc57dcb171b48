package services

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAPIKey indicates the upstream API key is not configured
	ErrNoAPIKey = errors.New("API key not configured")

	// ErrMissingContent indicates the upstream reply had no completion text
	ErrMissingContent = errors.New("missing content")
)

// UpstreamError represents a failed call to the LLM API.
// StatusCode is zero when no HTTP response was received at all.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s upstream error (HTTP %d) after %d attempt(s)", e.Provider, e.StatusCode, e.Attempts)
	}
	return fmt.Sprintf("%s upstream error after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// ParseError represents an upstream body that could not be decoded.
type ParseError struct {
	Provider string
	Input    string
	Err      error
}

func (e *ParseError) Error() string {
	input := e.Input
	if len(input) > 100 {
		input = input[:100] + "..."
	}
	return fmt.Sprintf("%s returned invalid json: %v (body: %q)", e.Provider, e.Err, input)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// retryable reports whether an upstream HTTP status is worth a second attempt.
func retryable(status int) bool {
	return status == 429 || status >= 500
}
