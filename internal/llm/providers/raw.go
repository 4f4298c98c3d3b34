package providers

import (
	"context"
	"net/http"

	"github.com/ring2236/ESA-DGR/internal/llm/configuration"
	"github.com/ring2236/ESA-DGR/internal/llm/transport"
)

// RawAdapter POSTs a hand-built payload to the configured base URL verbatim.
// Used for hosts whose OpenAI-compatible surface needs extra sampling fields.
type RawAdapter struct{}

// NewRawAdapter creates the raw HTTP adapter.
func NewRawAdapter() *RawAdapter {
	return &RawAdapter{}
}

// Name returns the variant name.
func (a *RawAdapter) Name() string {
	return string(transport.KindRaw)
}

// Build constructs the raw request. The base URL is the full endpoint.
func (a *RawAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	body := map[string]any{
		"model":             req.Model,
		"messages":          req.Messages(),
		"stream":            false,
		"max_tokens":        req.MaxTokens,
		"stop":              nil,
		"temperature":       req.Temperature,
		"top_p":             configuration.RawTopP,
		"top_k":             configuration.RawTopK,
		"frequency_penalty": configuration.RawFrequencyPenalty,
		"n":                 1,
		"response_format":   map[string]string{"type": "text"},
	}
	return newJSONRequest(ctx, req.BaseURL, req.APIKey, body)
}

// Parse reads choices[0].message like the OpenAI-compatible variants.
func (a *RawAdapter) Parse(httpResp *http.Response) (*transport.Response, error) {
	return parseChatCompletion(a.Name(), httpResp)
}
