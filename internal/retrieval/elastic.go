package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ring2236/ESA-DGR/internal/domain"
)

// PassageField is the indexed field holding passage text.
const PassageField = "paragraph_text"

const maxErrorBody = 4 << 10

// ElasticClient searches an Elasticsearch-compatible index over HTTP.
type ElasticClient struct {
	endpoint string
	client   *http.Client
	logger   *slog.Logger
}

// ElasticOption customizes an ElasticClient.
type ElasticOption func(*ElasticClient)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) ElasticOption {
	return func(e *ElasticClient) { e.client = c }
}

// WithTimeout sets a per-request timeout on the default client.
func WithTimeout(d time.Duration) ElasticOption {
	return func(e *ElasticClient) { e.client.Timeout = d }
}

// NewElasticClient creates a client for the given base endpoint, e.g. http://localhost:9200.
func NewElasticClient(endpoint string, opts ...ElasticOption) (*ElasticClient, error) {
	u, err := url.ParseRequestURI(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid search endpoint %q: %w", endpoint, err)
	}
	e := &ElasticClient{
		endpoint: strings.TrimRight(u.String(), "/"),
		client:   &http.Client{},
		logger:   slog.Default().With("component", "retrieval"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

type searchRequest struct {
	Query struct {
		MultiMatch struct {
			Query  string   `json:"query"`
			Fields []string `json:"fields"`
		} `json:"multi_match"`
	} `json:"query"`
	Size int `json:"size"`
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search implements Searcher.
func (e *ElasticClient) Search(ctx context.Context, query, corpus string, size int) ([]domain.Hit, error) {
	if err := checkArgs(query, size); err != nil {
		return nil, err
	}

	var body searchRequest
	body.Query.MultiMatch.Query = query
	body.Query.MultiMatch.Fields = []string{PassageField}
	body.Size = size

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}

	endpoint := e.endpoint + "/" + url.PathEscape(corpus) + "/_search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			e.logger.Debug("failed to close search response body", "error", cerr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("%w: status %d: %s", ErrSearchFailed, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedHits, err)
	}

	hits := make([]domain.Hit, 0, len(out.Hits.Hits))
	for i, h := range out.Hits.Hits {
		text, ok := h.Source[PassageField].(string)
		if !ok {
			return nil, fmt.Errorf("%w: hit %d has no %s", ErrMalformedHits, i, PassageField)
		}
		hits = append(hits, domain.Hit{PassageText: text})
	}

	e.logger.Debug("search completed",
		"corpus", corpus,
		"size", size,
		"hits", len(hits),
		"duration_ms", time.Since(start).Milliseconds())
	return hits, nil
}

// Reference joins passage texts with newlines in retrieval order.
func Reference(hits []domain.Hit) string {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.PassageText
	}
	return strings.Join(texts, "\n")
}
