package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	llmerrors "github.com/ring2236/ESA-DGR/internal/llm/errors"
	"github.com/ring2236/ESA-DGR/internal/llm/transport"
)

// localAPIKey is sent to self-hosted servers that ignore authentication.
const localAPIKey = "EMPTY"

// chatCompletion is the OpenAI-compatible response body shared by every variant.
type chatCompletion struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Role             string  `json:"role"`
			Content          *string `json:"content"`
			ReasoningContent *string `json:"reasoning_content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

// chatEndpoint appends the chat completions path to an OpenAI-compatible base URL.
func chatEndpoint(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

// newJSONRequest marshals body and builds an authenticated POST request.
func newJSONRequest(ctx context.Context, url, apiKey string, body any) (*http.Request, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	return httpReq, nil
}

// parseChatCompletion reads choices[0].message and normalizes usage.
func parseChatCompletion(provider string, httpResp *http.Response) (*transport.Response, error) {
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode < http.StatusOK || httpResp.StatusCode >= http.StatusMultipleChoices {
		return nil, parseProviderError(provider, httpResp, body)
	}

	var resp chatCompletion
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", llmerrors.ErrInvalidResponse, provider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: %s returned no choices", llmerrors.ErrInvalidResponse, provider)
	}

	choice := resp.Choices[0]
	out := &transport.Response{
		FinishReason: choice.FinishReason,
		Usage: transport.NormalizedUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Headers: httpResp.Header,
	}
	if choice.Message.Content != nil {
		out.Content = *choice.Message.Content
	}
	if choice.Message.ReasoningContent != nil {
		out.ReasoningContent = *choice.Message.ReasoningContent
	}
	if reqID := httpResp.Header.Get("x-request-id"); reqID != "" {
		out.ProviderRequestIDs = append(out.ProviderRequestIDs, reqID)
	} else if resp.ID != "" {
		out.ProviderRequestIDs = append(out.ProviderRequestIDs, resp.ID)
	}

	return out, nil
}

// OpenAIAdapter speaks the OpenAI chat completions protocol.
// It serves both self-hosted servers (KindLocal) and hosted providers (KindExternal).
type OpenAIAdapter struct {
	kind transport.Kind
}

// NewLocalAdapter serves self-hosted OpenAI-compatible servers.
// The model field is the local model id and no API key is required.
func NewLocalAdapter() *OpenAIAdapter {
	return &OpenAIAdapter{kind: transport.KindLocal}
}

// NewExternalAdapter serves hosted OpenAI-compatible providers.
func NewExternalAdapter() *OpenAIAdapter {
	return &OpenAIAdapter{kind: transport.KindExternal}
}

// Name returns the variant name.
func (a *OpenAIAdapter) Name() string {
	return string(a.kind)
}

// Build constructs a chat completions request.
func (a *OpenAIAdapter) Build(ctx context.Context, req *transport.Request) (*http.Request, error) {
	body := map[string]any{
		"model":       req.Model,
		"messages":    req.Messages(),
		"max_tokens":  req.MaxTokens,
		"temperature": req.Temperature,
		"stream":      false,
	}

	apiKey := req.APIKey
	if a.kind == transport.KindLocal || apiKey == "" {
		apiKey = localAPIKey
	}
	return newJSONRequest(ctx, chatEndpoint(req.BaseURL), apiKey, body)
}

// Parse extracts content and reasoning content from the first choice.
func (a *OpenAIAdapter) Parse(httpResp *http.Response) (*transport.Response, error) {
	return parseChatCompletion(a.Name(), httpResp)
}
