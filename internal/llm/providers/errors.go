package providers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ring2236/ESA-DGR/internal/llm/configuration"
	llmerrors "github.com/ring2236/ESA-DGR/internal/llm/errors"
)

// ErrUnsupportedKind indicates a request variant with no registered adapter.
var ErrUnsupportedKind = errors.New("unsupported invocation kind")

// classifyErrorType determines ErrorType from HTTP status and provider error codes.
// Provider codes are checked first; the status code is the fallback.
func classifyErrorType(statusCode int, errorCode string) llmerrors.ErrorType {
	lowerCode := strings.ToLower(errorCode)
	switch {
	case strings.Contains(lowerCode, "rate") || strings.Contains(lowerCode, "limit"):
		return llmerrors.ErrorTypeRateLimit
	case strings.Contains(lowerCode, "timeout"):
		return llmerrors.ErrorTypeTimeout
	case strings.Contains(lowerCode, "auth") || strings.Contains(lowerCode, "unauthorized"):
		return llmerrors.ErrorTypeAuth
	case strings.Contains(lowerCode, "permission") || strings.Contains(lowerCode, "forbidden"):
		return llmerrors.ErrorTypePermission
	case strings.Contains(lowerCode, "quota"):
		return llmerrors.ErrorTypeQuota
	}

	switch statusCode {
	case http.StatusTooManyRequests:
		return llmerrors.ErrorTypeRateLimit
	case http.StatusUnauthorized:
		return llmerrors.ErrorTypeAuth
	case http.StatusForbidden:
		return llmerrors.ErrorTypePermission
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return llmerrors.ErrorTypeTimeout
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return llmerrors.ErrorTypeValidation
	default:
		if statusCode >= configuration.ServerErrorStatusThreshold {
			return llmerrors.ErrorTypeProvider
		}
		return llmerrors.ErrorTypeUnknown
	}
}

// parseProviderError converts a non-2xx response into a ProviderError.
// OpenAI-style {"error":{...}} bodies are decoded; anything else is kept verbatim.
func parseProviderError(provider string, resp *http.Response, body []byte) error {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    any    `json:"code"`
		} `json:"error"`
		Message string `json:"message"`
	}

	pe := &llmerrors.ProviderError{
		Provider:   provider,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(body)),
		RetryAfter: retryAfterSeconds(resp.Header.Get("Retry-After")),
	}

	var code string
	if err := json.Unmarshal(body, &errResp); err == nil {
		switch {
		case errResp.Error.Message != "":
			pe.Message = errResp.Error.Message
			code = errResp.Error.Type
			if c, ok := errResp.Error.Code.(string); ok && c != "" {
				pe.Code = c
				code += " " + c
			}
		case errResp.Message != "":
			pe.Message = errResp.Message
		}
	}
	if pe.Message == "" {
		pe.Message = http.StatusText(resp.StatusCode)
	}
	pe.Type = classifyErrorType(resp.StatusCode, code)
	return pe
}

func retryAfterSeconds(v string) int {
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
