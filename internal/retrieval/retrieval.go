// Package retrieval provides passage search against a document index.
package retrieval

import (
	"context"
	"errors"

	"github.com/ring2236/ESA-DGR/internal/domain"
)

// Errors returned by searchers.
var (
	ErrEmptyQuery    = errors.New("retrieval query is empty")
	ErrInvalidSize   = errors.New("retrieval size must be positive")
	ErrSearchFailed  = errors.New("search request failed")
	ErrMalformedHits = errors.New("malformed search response")
)

// Searcher returns the top passages for a query from a named corpus,
// in relevance order.
type Searcher interface {
	Search(ctx context.Context, query, corpus string, size int) ([]domain.Hit, error)
}

// SearcherFunc adapts a function to the Searcher interface.
type SearcherFunc func(ctx context.Context, query, corpus string, size int) ([]domain.Hit, error)

// Search implements Searcher.
func (f SearcherFunc) Search(ctx context.Context, query, corpus string, size int) ([]domain.Hit, error) {
	return f(ctx, query, corpus, size)
}

// Static returns the same passages for every query, truncated to size.
type Static struct {
	Hits []domain.Hit
}

// Search implements Searcher.
func (s Static) Search(_ context.Context, _ string, _ string, size int) ([]domain.Hit, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	n := min(size, len(s.Hits))
	out := make([]domain.Hit, n)
	copy(out, s.Hits[:n])
	return out, nil
}

func checkArgs(query string, size int) error {
	if query == "" {
		return ErrEmptyQuery
	}
	if size <= 0 {
		return ErrInvalidSize
	}
	return nil
}
