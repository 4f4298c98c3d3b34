package llm

import (
	"context"
	"log/slog"
	"strings"
	"time"

	llmerrors "github.com/ring2236/ESA-DGR/internal/llm/errors"
	"github.com/ring2236/ESA-DGR/internal/llm/transport"
)

// Call outcomes reported to Metrics alongside error types.
const (
	OutcomeSuccess  = "success"
	OutcomeCacheHit = "cache_hit"
)

// Metrics receives per-call observations from the invocation pipeline.
type Metrics interface {
	ObserveCall(model, kind, outcome string, duration time.Duration)
	ObserveTokens(model string, prompt, completion int64)
	ObserveRetry(model string)
}

// NoOpMetrics discards all observations.
type NoOpMetrics struct{}

func (NoOpMetrics) ObserveCall(string, string, string, time.Duration) {}
func (NoOpMetrics) ObserveTokens(string, int64, int64)                {}
func (NoOpMetrics) ObserveRetry(string)                               {}

const previewLength = 200

// NewLoggingMiddleware logs each logical call and records call metrics.
func NewLoggingMiddleware(logger *slog.Logger, metrics Metrics) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NoOpMetrics{}
	}
	logger = logger.With("component", "llm")

	return func(next transport.Handler) transport.Handler {
		return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
			logger.Debug("model request started",
				"request_id", req.TraceID,
				"model", req.ModelID,
				"kind", req.Kind,
				"role", req.RoleKey,
				"reasoning", req.Reasoning,
				"query_length", len(req.Query))

			start := time.Now()
			resp, err := next.Handle(ctx, req)
			duration := time.Since(start)

			if err != nil {
				errorType := llmerrors.Classify(err)
				metrics.ObserveCall(req.ModelID, string(req.Kind), string(errorType), duration)
				logger.Warn("model request failed",
					"request_id", req.TraceID,
					"model", req.ModelID,
					"role", req.RoleKey,
					"duration_ms", duration.Milliseconds(),
					"error_type", errorType,
					"error", err)
				return nil, err
			}

			outcome := OutcomeSuccess
			if resp.CacheHit {
				outcome = OutcomeCacheHit
			}
			metrics.ObserveCall(req.ModelID, string(req.Kind), outcome, duration)
			metrics.ObserveTokens(req.ModelID, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

			logger.Debug("model request completed",
				"request_id", req.TraceID,
				"model", req.ModelID,
				"role", req.RoleKey,
				"outcome", outcome,
				"duration_ms", duration.Milliseconds(),
				"finish_reason", resp.FinishReason,
				"total_tokens", resp.Usage.TotalTokens,
				"provider_request_ids", strings.Join(resp.ProviderRequestIDs, ","),
				"response_preview", preview(resp.Content))
			return resp, nil
		})
	}
}

func preview(s string) string {
	if len(s) <= previewLength {
		return s
	}
	return s[:previewLength] + "..."
}
