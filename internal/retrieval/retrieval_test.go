package retrieval_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ring2236/ESA-DGR/internal/domain"
	"github.com/ring2236/ESA-DGR/internal/retrieval"
)

func TestElasticClient_Search(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"hits":{"hits":[
			{"_source":{"paragraph_text":"Ed Wood is a 1994 film.","title":"Ed Wood"}},
			{"_source":{"paragraph_text":"It was directed by Tim Burton."}}
		]}}`))
	}))
	defer srv.Close()

	c, err := retrieval.NewElasticClient(srv.URL + "/")
	require.NoError(t, err)

	hits, err := c.Search(context.Background(), "Who directed Ed Wood?", "hotpotqa", 10)
	require.NoError(t, err)

	assert.Equal(t, "/hotpotqa/_search", gotPath)
	assert.EqualValues(t, 10, gotBody["size"])
	mm := gotBody["query"].(map[string]any)["multi_match"].(map[string]any)
	assert.Equal(t, "Who directed Ed Wood?", mm["query"])
	assert.Equal(t, []any{"paragraph_text"}, mm["fields"])

	require.Len(t, hits, 2)
	assert.Equal(t, "Ed Wood is a 1994 film.\nIt was directed by Tim Burton.", retrieval.Reference(hits))
}

func TestElasticClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		query   string
		size    int
		wantErr error
	}{
		{name: "server error", status: http.StatusInternalServerError, body: "boom", query: "q", size: 3, wantErr: retrieval.ErrSearchFailed},
		{name: "bad json", status: http.StatusOK, body: "{", query: "q", size: 3, wantErr: retrieval.ErrMalformedHits},
		{name: "missing passage", status: http.StatusOK, body: `{"hits":{"hits":[{"_source":{}}]}}`, query: "q", size: 3, wantErr: retrieval.ErrMalformedHits},
		{name: "empty query", status: http.StatusOK, body: "{}", query: "", size: 3, wantErr: retrieval.ErrEmptyQuery},
		{name: "zero size", status: http.StatusOK, body: "{}", query: "q", size: 0, wantErr: retrieval.ErrInvalidSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c, err := retrieval.NewElasticClient(srv.URL)
			require.NoError(t, err)

			_, err = c.Search(context.Background(), tt.query, "hotpotqa", tt.size)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewElasticClient_InvalidEndpoint(t *testing.T) {
	_, err := retrieval.NewElasticClient("not a url")
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	s := retrieval.Static{Hits: []domain.Hit{{PassageText: "a"}, {PassageText: "b"}, {PassageText: "c"}}}

	hits, err := s.Search(context.Background(), "anything", "hotpotqa", 2)
	require.NoError(t, err)
	assert.Equal(t, "a\nb", retrieval.Reference(hits))

	hits, err = s.Search(context.Background(), "anything", "hotpotqa", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 3)

	_, err = s.Search(context.Background(), "anything", "hotpotqa", 0)
	assert.ErrorIs(t, err, retrieval.ErrInvalidSize)
}

func TestReference_Empty(t *testing.T) {
	assert.Equal(t, "", retrieval.Reference(nil))
}
