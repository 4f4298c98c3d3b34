// Package llm provides the model invocation client used by the refinement loop.
// Every configured model is resolved once into an invocation variant (local,
// external, or raw) and reached through a shared middleware pipeline:
//
//   - logging and metrics per logical call
//   - Redis response cache for deterministic requests
//   - retry with exponential backoff for transient failures
//   - per-model circuit breaker and token bucket pacing on each attempt
//
// Unknown model ids and role keys fail immediately and are never retried.
package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ring2236/ESA-DGR/internal/domain"
	"github.com/ring2236/ESA-DGR/internal/llm/cache"
	"github.com/ring2236/ESA-DGR/internal/llm/circuitbreaker"
	"github.com/ring2236/ESA-DGR/internal/llm/configuration"
	llmerrors "github.com/ring2236/ESA-DGR/internal/llm/errors"
	"github.com/ring2236/ESA-DGR/internal/llm/providers"
	"github.com/ring2236/ESA-DGR/internal/llm/ratelimit"
	"github.com/ring2236/ESA-DGR/internal/llm/retry"
	"github.com/ring2236/ESA-DGR/internal/llm/transport"
)

// ReasoningFallback is returned as reasoning content when a reasoning model
// answered without a separate reasoning channel.
const ReasoningFallback = "model supports reasoning but returned no reasoning content"

// Invoker sends one query to a configured model under a named system role.
type Invoker interface {
	// Invoke returns the assistant message text.
	Invoke(ctx context.Context, modelID, roleKey, query string) (string, error)

	// InvokeWithReasoning also surfaces the reasoning channel for reasoning models.
	InvokeWithReasoning(ctx context.Context, modelID, roleKey, query string) (*Reply, error)
}

// Reply is a model answer with its optional reasoning content.
// ReasoningContent is empty for models without reasoning support.
type Reply struct {
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content,omitempty"`
}

// Client implements Invoker over the resolved model table.
type Client struct {
	config  *configuration.Config
	targets map[string]providers.Target
	roles   map[string]string
	handler transport.Handler
	cache   *cache.Middleware
}

var _ Invoker = (*Client)(nil)

type clientOptions struct {
	logger  *slog.Logger
	metrics Metrics
	redis   *redis.Client
}

// Option customizes client construction.
type Option func(*clientOptions)

// WithLogger sets the logger used by the logging middleware.
func WithLogger(l *slog.Logger) Option {
	return func(o *clientOptions) { o.logger = l }
}

// WithMetrics records per-call metrics.
func WithMetrics(m Metrics) Option {
	return func(o *clientOptions) { o.metrics = m }
}

// WithRedis supplies the Redis client for the response cache.
func WithRedis(c *redis.Client) Option {
	return func(o *clientOptions) { o.redis = c }
}

// NewClient resolves the model table and builds the middleware pipeline.
func NewClient(ctx context.Context, cfg *configuration.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}
	o := clientOptions{logger: slog.Default(), metrics: NoOpMetrics{}}
	for _, opt := range opts {
		opt(&o)
	}

	targets, err := providers.Resolve(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve model table: %w", err)
	}

	coreHandler := transport.NewHTTPHandler(transport.NewHTTPClient(cfg), providers.NewRouter())

	// Attempt-level middleware runs on every retry.
	var attemptMiddlewares []transport.Middleware
	if cfg.CircuitBreaker.Enabled {
		cb, err := circuitbreaker.NewCircuitBreakerMiddleware(cfg.CircuitBreaker)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize circuit breaker: %w", err)
		}
		attemptMiddlewares = append(attemptMiddlewares, cb)
	}
	if cfg.RateLimit.Enabled {
		rl, err := ratelimit.NewRateLimitMiddleware(cfg.RateLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		attemptMiddlewares = append(attemptMiddlewares, rl)
	}
	attemptHandler := transport.Chain(coreHandler, attemptMiddlewares...)

	retryMiddleware, err := retry.NewRetryMiddlewareWithConfig(cfg.Retry,
		retry.WithObserver(func(req *transport.Request, _ int, _ error) {
			o.metrics.ObserveRetry(req.ModelID)
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize retry middleware: %w", err)
	}
	retryHandler := retryMiddleware(attemptHandler)

	// Call-level middleware runs once per logical call.
	cacheMiddleware := cache.NewCacheMiddlewareWithRedis(ctx, cfg.Cache, o.redis)
	handler := transport.Chain(retryHandler,
		NewLoggingMiddleware(o.logger, o.metrics),
		cacheMiddleware.Middleware(),
	)

	roles := make(map[string]string, len(cfg.Roles))
	for k, v := range cfg.Roles {
		roles[k] = v
	}

	return &Client{
		config:  cfg,
		targets: targets,
		roles:   roles,
		handler: handler,
		cache:   cacheMiddleware,
	}, nil
}

// CheckModelRole reports whether a model/role pair can be invoked.
func (c *Client) CheckModelRole(mr domain.ModelRole) error {
	if _, ok := c.targets[mr.Model]; !ok {
		return fmt.Errorf("%w: %q", llmerrors.ErrUnknownModel, mr.Model)
	}
	if _, ok := c.roles[mr.Role]; !ok {
		return fmt.Errorf("%w: %q", llmerrors.ErrUnknownRole, mr.Role)
	}
	return nil
}

// CacheStats returns response cache counters.
func (c *Client) CacheStats() cache.Stats {
	return c.cache.Stats()
}

// Invoke implements Invoker.
func (c *Client) Invoke(ctx context.Context, modelID, roleKey, query string) (string, error) {
	resp, _, err := c.call(ctx, modelID, roleKey, query)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// InvokeWithReasoning implements Invoker.
func (c *Client) InvokeWithReasoning(ctx context.Context, modelID, roleKey, query string) (*Reply, error) {
	resp, target, err := c.call(ctx, modelID, roleKey, query)
	if err != nil {
		return nil, err
	}

	reply := &Reply{Content: resp.Content}
	if target.Reasoning {
		reply.ReasoningContent = resp.ReasoningContent
		if reply.ReasoningContent == "" {
			reply.ReasoningContent = ReasoningFallback
		}
	}
	return reply, nil
}

func (c *Client) call(ctx context.Context, modelID, roleKey, query string) (*transport.Response, providers.Target, error) {
	target, ok := c.targets[modelID]
	if !ok {
		return nil, providers.Target{}, fmt.Errorf("%w: %q", llmerrors.ErrUnknownModel, modelID)
	}
	systemPrompt, ok := c.roles[roleKey]
	if !ok {
		return nil, target, fmt.Errorf("%w: %q", llmerrors.ErrUnknownRole, roleKey)
	}

	req := &transport.Request{
		ModelID:      modelID,
		Kind:         target.Kind,
		Model:        target.Model,
		BaseURL:      target.BaseURL,
		APIKey:       target.APIKey,
		RoleKey:      roleKey,
		SystemPrompt: systemPrompt,
		Query:        query,
		Reasoning:    target.Reasoning,
		MaxTokens:    c.config.MaxTokens,
		Temperature:  target.Temperature(),
		TraceID:      uuid.NewString(),
	}

	resp, err := c.handler.Handle(ctx, req)
	if err != nil {
		return nil, target, fmt.Errorf("invoking %s as %s: %w", modelID, roleKey, err)
	}
	return resp, target, nil
}
