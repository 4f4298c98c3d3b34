// Package errors defines the error taxonomy for model invocation.
// Configuration errors (unknown model, unknown role) are fatal for the call
// and never retried; provider errors carry a classified ErrorType that drives
// retry decisions in the middleware pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType is the failure class used for retry decisions and metrics labels.
type ErrorType string

// Retryable classes.
const (
	ErrorTypeTimeout   ErrorType = "timeout"
	ErrorTypeRateLimit ErrorType = "rate_limit"
	ErrorTypeNetwork   ErrorType = "network"
	ErrorTypeProvider  ErrorType = "provider_unavailable"
)

// Non-retryable classes.
const (
	// ErrorTypeConfiguration is an unknown model id or role key.
	ErrorTypeConfiguration ErrorType = "configuration"
	ErrorTypeValidation    ErrorType = "validation_failed"
	ErrorTypeAuth          ErrorType = "authentication"
	ErrorTypePermission    ErrorType = "permission_denied"
	ErrorTypeQuota         ErrorType = "quota_exceeded"

	// ErrorTypeCircuitOpen is a call the per-model breaker rejected without
	// contacting the provider.
	ErrorTypeCircuitOpen ErrorType = "circuit_open"

	ErrorTypeUnknown ErrorType = "unknown"
)

var (
	ErrUnknownModel      = errors.New("model is not available")
	ErrUnknownRole       = errors.New("system role key is not defined")
	ErrUnknownProvider   = errors.New("unknown provider")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")

	// ErrInvalidResponse is a 2xx reply the adapter could not use.
	ErrInvalidResponse = errors.New("invalid provider response")
)

// ProviderError is a classified failure reported by a model endpoint.
type ProviderError struct {
	Provider   string    `json:"provider"` // model id
	StatusCode int       `json:"status_code"`
	Message    string    `json:"message"`
	Code       string    `json:"code"`
	Type       ErrorType `json:"type"`
	RetryAfter int       `json:"retry_after"` // seconds
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// IsRetryable reports whether Type is a transient class.
func (e *ProviderError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	}
	return false
}

// GetRetryAfter converts the provider's Retry-After hint to a duration.
func (e *ProviderError) GetRetryAfter() time.Duration {
	return seconds(e.RetryAfter)
}

// RateLimitError is a throttle, either from the provider or the local limiter.
type RateLimitError struct {
	Provider   string `json:"provider"`
	RetryAfter int    `json:"retry_after"` // seconds
	Limit      int    `json:"limit"`
	LocalLimit bool   `json:"local_limit"`
}

func (e *RateLimitError) Error() string {
	msg := "rate limit exceeded for " + e.Provider
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(", retry after %d seconds", e.RetryAfter)
	}
	return msg
}

// GetRetryAfter converts RetryAfter to a duration.
func (e *RateLimitError) GetRetryAfter() time.Duration {
	return seconds(e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimitExceeded }

// ValidationError is a request or reply that failed a local check.
type ValidationError struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}
