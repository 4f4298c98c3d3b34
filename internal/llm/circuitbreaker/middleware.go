package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ring2236/ESA-DGR/internal/llm/configuration"
	llmerrors "github.com/ring2236/ESA-DGR/internal/llm/errors"
	"github.com/ring2236/ESA-DGR/internal/llm/transport"
)

// Provider error codes returned while a breaker rejects calls.
const (
	CodeCircuitOpen     = "CIRCUIT_OPEN"
	CodeHalfOpenLimited = "CIRCUIT_HALF_OPEN_LIMIT"
)

// Breakers holds one breaker per model id.
type Breakers struct {
	cfg    configuration.CircuitBreakerConfig
	now    func() time.Time
	logger *slog.Logger

	mu    sync.Mutex
	byKey map[string]*breaker
}

// New validates cfg and returns an empty breaker set.
func New(cfg configuration.CircuitBreakerConfig) (*Breakers, error) {
	switch {
	case cfg.FailureThreshold < 1:
		return nil, fmt.Errorf("%w, got %d", errFailureThresholdInvalid, cfg.FailureThreshold)
	case cfg.SuccessThreshold < 1:
		return nil, fmt.Errorf("%w, got %d", errSuccessThresholdInvalid, cfg.SuccessThreshold)
	case cfg.HalfOpenProbes < 1:
		return nil, fmt.Errorf("%w, got %d", errHalfOpenProbesInvalid, cfg.HalfOpenProbes)
	case cfg.OpenTimeout <= 0:
		return nil, fmt.Errorf("%w, got %v", errOpenTimeoutInvalid, cfg.OpenTimeout)
	}
	return &Breakers{
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "circuitbreaker"),
		byKey:  make(map[string]*breaker),
	}, nil
}

func (bs *Breakers) get(key string) *breaker {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	b, ok := bs.byKey[key]
	if !ok {
		b = &breaker{cfg: bs.cfg, now: bs.now}
		bs.byKey[key] = b
	}
	return b
}

// State returns the breaker position for a model id.
func (bs *Breakers) State(modelID string) State {
	return bs.get(modelID).current()
}

// Middleware returns the breaker middleware keyed by model id.
func (bs *Breakers) Middleware() transport.Middleware {
	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			b := bs.get(req.ModelID)
			ok, state := b.allow()
			if !ok {
				return nil, rejection(req.ModelID, state, bs.cfg.OpenTimeout)
			}

			resp, err := next.Handle(ctx, req)
			switch {
			case err == nil:
				b.onSuccess()
			case errors.Is(err, context.Canceled):
				b.onNeutral()
			case llmerrors.IsRetryableError(err):
				b.onFailure()
				if b.current() == StateOpen {
					bs.logger.Warn("circuit opened", "model", req.ModelID, "error", err)
				}
			default:
				b.onNeutral()
			}
			return resp, err
		})
	}
}

func rejection(modelID string, state State, openTimeout time.Duration) error {
	code, msg := CodeCircuitOpen, "circuit breaker is open"
	if state == StateHalfOpen {
		code, msg = CodeHalfOpenLimited, "circuit breaker half-open probe limit reached"
	}
	return &llmerrors.ProviderError{
		Provider:   modelID,
		StatusCode: 0,
		Message:    msg,
		Code:       code,
		Type:       llmerrors.ErrorTypeCircuitOpen,
		RetryAfter: int(openTimeout.Seconds()),
	}
}

// NewCircuitBreakerMiddleware builds the breaker middleware from configuration.
func NewCircuitBreakerMiddleware(cfg configuration.CircuitBreakerConfig) (transport.Middleware, error) {
	bs, err := New(cfg)
	if err != nil {
		return nil, err
	}
	return bs.Middleware(), nil
}
