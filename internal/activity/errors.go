package activity

import (
	"errors"

	"go.temporal.io/sdk/temporal"

	llmerrors "github.com/ring2236/ESA-DGR/internal/llm/errors"
	"github.com/ring2236/ESA-DGR/internal/refine"
	"github.com/ring2236/ESA-DGR/internal/retrieval"
)

// ErrActivityValidation is returned when activity input is missing required fields.
var ErrActivityValidation = errors.New("activity input validation failed")

// Application error types attached to activity failures.
const (
	ErrorValidation = "Validation"
	ErrorConfig     = "Configuration"
	ErrorParse      = "Parse"
	ErrorProvider   = "Provider"
	ErrorRetrieval  = "Retrieval"
)

// nonRetryable wraps an error as a Temporal non-retryable application error.
func nonRetryable(tag string, cause error, msg string) error {
	return temporal.NewNonRetryableApplicationError(msg, tag, cause)
}

// retryable wraps an error as a Temporal application error eligible for retry.
func retryable(tag string, cause error, msg string) error {
	return temporal.NewApplicationErrorWithCause(msg, tag, cause)
}

// classify converts a step error into a Temporal application error.
// Configuration and malformed-input failures are final; transport failures
// are left to the activity retry policy.
func classify(step string, err error) error {
	switch {
	case llmerrors.IsConfigurationError(err):
		return nonRetryable(ErrorConfig, err, step+": configuration error")
	case errors.Is(err, refine.ErrNoJSONObject), errors.Is(err, refine.ErrMissingAnswer):
		return nonRetryable(ErrorParse, err, step+": unparseable reply")
	case errors.Is(err, retrieval.ErrEmptyQuery), errors.Is(err, retrieval.ErrInvalidSize),
		errors.Is(err, retrieval.ErrMalformedHits):
		return nonRetryable(ErrorRetrieval, err, step+": invalid retrieval")
	}

	switch llmerrors.Classify(err) {
	case llmerrors.ErrorTypeValidation, llmerrors.ErrorTypeAuth,
		llmerrors.ErrorTypePermission, llmerrors.ErrorTypeQuota:
		return nonRetryable(ErrorProvider, err, step+": provider rejected request")
	}
	return retryable(ErrorProvider, err, step+" failed")
}
