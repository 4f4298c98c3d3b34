// Package ratelimit paces model requests with one token bucket per model.
// Unlike a rejecting limiter, callers wait for a token so a batch run keeps
// its concurrency without burning retries on local throttling.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"golang.org/x/time/rate"

	"github.com/ring2236/ESA-DGR/internal/llm/configuration"
	llmerrors "github.com/ring2236/ESA-DGR/internal/llm/errors"
	"github.com/ring2236/ESA-DGR/internal/llm/transport"
)

var (
	errTokensPerSecondInvalid = errors.New("tokens per second must be positive")
	errBurstSizeInvalid       = errors.New("burst size must be positive")
)

// Limiter holds the per-model token buckets.
type Limiter struct {
	cfg    configuration.RateLimitConfig
	mu     sync.Mutex
	byKey  map[string]*rate.Limiter
	logger *slog.Logger
}

// New validates cfg and returns a Limiter.
func New(cfg configuration.RateLimitConfig) (*Limiter, error) {
	if cfg.TokensPerSecond <= 0 || math.IsInf(cfg.TokensPerSecond, 0) || math.IsNaN(cfg.TokensPerSecond) {
		return nil, fmt.Errorf("%w, got %v", errTokensPerSecondInvalid, cfg.TokensPerSecond)
	}
	if cfg.BurstSize <= 0 {
		return nil, fmt.Errorf("%w, got %d", errBurstSizeInvalid, cfg.BurstSize)
	}
	return &Limiter{
		cfg:    cfg,
		byKey:  make(map[string]*rate.Limiter),
		logger: slog.Default().With("component", "ratelimit"),
	}, nil
}

// limiterFor returns the bucket for key, creating it on first use.
func (l *Limiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.byKey[key]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(l.cfg.TokensPerSecond), l.cfg.BurstSize)
		l.byKey[key] = lim
	}
	return lim
}

// Wait blocks until a token for key is available or ctx ends.
// A deadline too short to ever obtain a token is reported as a RateLimitError.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if err := l.limiterFor(key).Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return err
		}
		return &llmerrors.RateLimitError{
			Provider:   key,
			Limit:      int(l.cfg.TokensPerSecond),
			RetryAfter: int(math.Ceil(1 / l.cfg.TokensPerSecond)),
			LocalLimit: true,
		}
	}
	return nil
}

// Middleware returns the pacing middleware keyed by model id.
func (l *Limiter) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			if err := l.Wait(ctx, req.ModelID); err != nil {
				l.logger.Debug("rate limit wait aborted", "model", req.ModelID, "error", err)
				return nil, err
			}
			return next.Handle(ctx, req)
		})
	}
}

// NewRateLimitMiddleware builds the pacing middleware from configuration.
func NewRateLimitMiddleware(cfg configuration.RateLimitConfig) (transport.Middleware, error) {
	l, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return l.Middleware(), nil
}
