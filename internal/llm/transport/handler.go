package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/ring2236/ESA-DGR/internal/llm/configuration"
)

// Router selects the provider adapter serving a request's variant.
// Implemented by the providers package.
type Router interface {
	Pick(kind Kind) (ProviderAdapter, error)
}

// ProviderAdapter abstracts variant-specific HTTP communication patterns.
// Implemented by the providers package.
type ProviderAdapter interface {
	Build(ctx context.Context, req *Request) (*http.Request, error)
	Parse(httpResp *http.Response) (*Response, error)
	Name() string
}

// Handler processes model requests through a composable middleware pipeline.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, *Request) (*Response, error)

// Handle implements the Handler interface.
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Middleware transforms a Handler into an enhanced Handler.
type Middleware func(Handler) Handler

// Chain builds a middleware pipeline around a core handler.
// Middleware executes in the order provided with the first middleware outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// NewHTTPClient returns cfg.HTTPClient when set, otherwise a client with a
// pooled transport sized for concurrent model calls. A zero HTTPTimeout
// leaves requests bounded only by their context.
func NewHTTPClient(cfg *configuration.Config) *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         dialer.DialContext,
			MaxIdleConns:        configuration.DefaultMaxIdleConns,
			MaxIdleConnsPerHost: configuration.DefaultMaxIdleConns,
			IdleConnTimeout:     configuration.DefaultIdleTimeoutSeconds * time.Second,
			TLSHandshakeTimeout: configuration.DefaultTLSTimeoutSeconds * time.Second,
		},
	}
}

// NewHTTPHandler returns the innermost handler: it builds the request with
// the adapter for req.Kind, sends it, and parses the reply.
func NewHTTPHandler(client *http.Client, router Router) Handler {
	logger := slog.Default().With("component", "llm_transport")
	return HandlerFunc(func(ctx context.Context, req *Request) (*Response, error) {
		adapter, err := router.Pick(req.Kind)
		if err != nil {
			return nil, fmt.Errorf("no adapter for %s: %w", req.ModelID, err)
		}
		if req.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, req.Timeout)
			defer cancel()
		}

		httpReq, err := adapter.Build(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("building %s request for %s: %w", adapter.Name(), req.ModelID, err)
		}

		start := time.Now()
		httpResp, err := client.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("HTTP request to %s failed: %w", req.ModelID, err)
		}
		defer func() {
			if err := httpResp.Body.Close(); err != nil {
				logger.Debug("closing response body", "model", req.ModelID, "error", err)
			}
		}()

		resp, err := adapter.Parse(httpResp)
		if err != nil {
			return nil, err
		}
		resp.Usage.LatencyMs = time.Since(start).Milliseconds()
		return resp, nil
	})
}
