// Package retry provides the retry middleware for model invocation.
// Transient failures (timeouts, rate limits, network errors, provider
// outages) are retried with exponential backoff and full jitter; configuration
// and validation errors surface immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ring2236/ESA-DGR/internal/llm/configuration"
	llmerrors "github.com/ring2236/ESA-DGR/internal/llm/errors"
	"github.com/ring2236/ESA-DGR/internal/llm/transport"
)

var (
	// Configuration validation errors.
	errMaxAttemptsInvalid     = errors.New("maxAttempts must be greater than 0")
	errInitialIntervalInvalid = errors.New("initialInterval must be greater than 0")
	errMaxIntervalInvalid     = errors.New("maxInterval must be >= initialInterval")
	errMultiplierInvalid      = errors.New("multiplier must be >= 1.0")
	errMaxElapsedTimeInvalid  = errors.New("maxElapsedTime must be >= 0")

	// ErrRetriesExhausted wraps the last error once every attempt has failed.
	ErrRetriesExhausted = errors.New("all retries exhausted")

	errContextCancelledDuringRetry = errors.New("context cancelled during retry")
)

// AfterProvider is implemented by errors carrying provider backoff guidance.
type AfterProvider interface {
	GetRetryAfter() time.Duration
}

// Observer receives a callback before every retry.
type Observer func(req *transport.Request, attempt int, err error)

// retryMiddleware implements retry logic with exponential backoff.
type retryMiddleware struct {
	config   configuration.RetryConfig
	logger   *slog.Logger
	observer Observer
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option customizes the retry middleware.
type Option func(*retryMiddleware)

// WithObserver registers a callback invoked before each retry.
func WithObserver(o Observer) Option {
	return func(r *retryMiddleware) { r.observer = o }
}

// NewRetryMiddlewareWithConfig creates retry middleware with specified configuration.
func NewRetryMiddlewareWithConfig(cfg configuration.RetryConfig, opts ...Option) (transport.Middleware, error) {
	rm, err := newRetryMiddleware(cfg, opts...)
	if err != nil {
		return nil, err
	}
	return rm.middleware(), nil
}

func validateConfig(cfg configuration.RetryConfig) error {
	if cfg.MaxAttempts <= 0 {
		return fmt.Errorf("%w, got %d", errMaxAttemptsInvalid, cfg.MaxAttempts)
	}
	if cfg.InitialInterval <= 0 {
		return fmt.Errorf("%w, got %v", errInitialIntervalInvalid, cfg.InitialInterval)
	}
	if cfg.MaxInterval < cfg.InitialInterval {
		return fmt.Errorf("%w, MaxInterval: %v, InitialInterval: %v", errMaxIntervalInvalid, cfg.MaxInterval, cfg.InitialInterval)
	}
	if cfg.Multiplier < 1.0 {
		return fmt.Errorf("%w, got %f", errMultiplierInvalid, cfg.Multiplier)
	}
	if cfg.MaxElapsedTime < 0 {
		return fmt.Errorf("%w, got %v", errMaxElapsedTimeInvalid, cfg.MaxElapsedTime)
	}
	return nil
}

func newRetryMiddleware(cfg configuration.RetryConfig, opts ...Option) (*retryMiddleware, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	rm := &retryMiddleware{
		config: cfg,
		logger: slog.Default().With("component", "retry"),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(rm)
	}
	return rm, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// middleware returns the retry middleware function.
func (r *retryMiddleware) middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}

			var lastErr error
			start := time.Now()

			for attempt := 1; ; attempt++ {
				resp, err := next.Handle(ctx, req)
				if err == nil {
					if attempt > 1 {
						r.logger.Info("request succeeded after retry", "attempt", attempt, "model", req.ModelID)
					}
					return resp, nil
				}
				if !isRetryable(err) {
					r.logger.Debug("non-retryable error", "error", err, "attempt", attempt, "model", req.ModelID)
					return nil, err
				}
				lastErr = err
				if attempt >= r.config.MaxAttempts {
					break
				}

				backoff := r.backoffFor(attempt, err)
				if budget := r.config.MaxElapsedTime; budget > 0 && time.Since(start)+backoff > budget {
					r.logger.Warn("retry budget exhausted",
						"elapsed", time.Since(start),
						"attempts", attempt,
						"model", req.ModelID,
						"last_error", err)
					break
				}

				if r.observer != nil {
					r.observer(req, attempt, err)
				}
				r.logger.Debug("retrying after backoff",
					"attempt", attempt, "backoff", backoff, "error", err, "model", req.ModelID)
				if err := r.sleep(ctx, backoff); err != nil {
					return nil, fmt.Errorf("%w: %w", errContextCancelledDuringRetry, err)
				}
			}

			return nil, fmt.Errorf("%w for %s: %w", ErrRetriesExhausted, req.ModelID, lastErr)
		})
	}
}

// isRetryable reports whether err is transient.
// Errors exposing provider backoff guidance are always retried.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	if llmerrors.IsRetryableError(err) {
		return true
	}
	var rateLimitErr *llmerrors.RateLimitError
	return errors.As(err, &rateLimitErr)
}
