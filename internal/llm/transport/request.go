// Package transport defines the normalized request/response types and the
// middleware pipeline used for every model invocation.
package transport

import (
	"net/http"
	"time"
)

// Kind is the invocation variant resolved for a model at configuration load.
type Kind string

const (
	// KindLocal is a self-hosted OpenAI-compatible server addressed by local id.
	KindLocal Kind = "local"

	// KindExternal is a hosted OpenAI-compatible provider with an API key.
	KindExternal Kind = "external"

	// KindRaw is a provider called with a hand-built HTTP payload POSTed to its base URL.
	KindRaw Kind = "raw"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request represents a normalized request across all invocation variants.
// Contains all information needed for variant-specific HTTP request
// construction, middleware processing, and response correlation.
type Request struct {
	// ModelID is the configured model identifier used for routing and metrics.
	ModelID string `json:"model_id"`

	// Kind selects the provider adapter.
	Kind Kind `json:"kind"`

	// Model is the model name sent on the wire.
	Model string `json:"model"`

	// Endpoint and credentials resolved from the model table.
	BaseURL string `json:"base_url"`
	APIKey  string `json:"-"`

	// RoleKey names the system prompt; SystemPrompt is its resolved text.
	RoleKey      string `json:"role_key"`
	SystemPrompt string `json:"system_prompt,omitempty"`

	// Query is the user turn.
	Query string `json:"query"`

	// Reasoning sends the query as a single user turn and surfaces reasoning content.
	Reasoning bool `json:"reasoning"`

	// Generation parameters control model behavior.
	MaxTokens   int64   `json:"max_tokens"`
	Temperature float64 `json:"temperature"`

	// Control fields for resilience and observability.
	Timeout time.Duration `json:"timeout"`
	TraceID string        `json:"trace_id"`
}

// Messages returns the chat turns for this request.
// Reasoning models receive the query alone, without the system prompt.
func (r *Request) Messages() []Message {
	if r.Reasoning {
		return []Message{{Role: "user", Content: r.Query}}
	}
	return []Message{
		{Role: "system", Content: r.SystemPrompt},
		{Role: "user", Content: r.Query},
	}
}

// Response represents normalized output from any invocation variant.
type Response struct {
	// Content is the assistant message text.
	Content string `json:"content"`

	// ReasoningContent is the separate reasoning channel, when the provider returns one.
	ReasoningContent string `json:"reasoning_content,omitempty"`

	FinishReason string `json:"finish_reason"`

	// ProviderRequestIDs enables cross-system correlation.
	ProviderRequestIDs []string `json:"provider_request_ids,omitempty"`

	// Usage tracks resource consumption.
	Usage NormalizedUsage `json:"usage"`

	// CacheHit marks responses served by the cache middleware.
	CacheHit bool `json:"-"`

	// Headers preserves raw response headers for debugging.
	Headers http.Header `json:"-"`
}

// NormalizedUsage provides consistent usage metrics across all variants.
type NormalizedUsage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
	LatencyMs        int64 `json:"latency_ms"`
}
