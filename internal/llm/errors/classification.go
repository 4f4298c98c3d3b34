package errors

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
)

// Classify maps an invocation error to an ErrorType.
// Typed errors win over sentinel checks; string matching is the last resort
// for errors surfaced by the HTTP stack without structure.
func Classify(err error) ErrorType {
	if err == nil {
		return ""
	}

	if errors.Is(err, ErrUnknownModel) || errors.Is(err, ErrUnknownRole) || errors.Is(err, ErrUnknownProvider) {
		return ErrorTypeConfiguration
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Type
	}

	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return ErrorTypeRateLimit
	}

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return ErrorTypeValidation
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}

	if IsNetworkError(err) {
		return ErrorTypeNetwork
	}

	return ErrorTypeUnknown
}

// IsConfigurationError reports whether err stems from an unknown model or role.
func IsConfigurationError(err error) bool {
	return Classify(err) == ErrorTypeConfiguration
}

// IsRetryableError determines if an error warrants a retry attempt.
// Unknown errors are not retried to avoid retry loops.
func IsRetryableError(err error) bool {
	switch Classify(err) {
	case ErrorTypeTimeout, ErrorTypeRateLimit, ErrorTypeNetwork, ErrorTypeProvider:
		return true
	default:
		return false
	}
}

// IsNetworkError checks if an error is network related using type assertions,
// falling back to well-known message fragments.
func IsNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var netErr net.Error
		if errors.As(urlErr.Err, &netErr) && netErr.Timeout() {
			return true
		}
		return isNetworkErrorByString(urlErr.Err.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return isNetworkErrorByString(err.Error())
}

var networkErrorIndicators = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"i/o timeout",
	"eof",
}

func isNetworkErrorByString(errStr string) bool {
	lowered := strings.ToLower(errStr)
	for _, indicator := range networkErrorIndicators {
		if strings.Contains(lowered, indicator) {
			return true
		}
	}
	return false
}
