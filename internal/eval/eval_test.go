package eval

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ring2236/ESA-DGR/internal/domain"
	"github.com/ring2236/ESA-DGR/internal/logging"
	"github.com/ring2236/ESA-DGR/internal/store"
)

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"The Eiffel Tower!":     "eiffel tower",
		"  an   apple, a pear ": "apple pear",
		"Arthur's Magazine":     "arthurs magazine",
		"theater":               "theater",
		"Yes.":                  "yes",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestF1(t *testing.T) {
	tests := []struct {
		name          string
		pred, gold    string
		f1, prec, rec float64
	}{
		{name: "exact", pred: "Arthur's Magazine", gold: "arthurs magazine", f1: 1, prec: 1, rec: 1},
		{name: "partial", pred: "the city of Chicago", gold: "Chicago", f1: 0.5, prec: 1.0 / 3, rec: 1},
		{name: "repeated tokens counted once each", pred: "new new york", gold: "new york", f1: 0.8, prec: 2.0 / 3, rec: 1},
		{name: "polar mismatch", pred: "yes", gold: "yes it is", f1: 0, prec: 0, rec: 0},
		{name: "polar gold", pred: "no way", gold: "no", f1: 0, prec: 0, rec: 0},
		{name: "disjoint", pred: "Paris", gold: "London", f1: 0, prec: 0, rec: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f1, prec, rec := F1(tt.pred, tt.gold)
			assert.InDelta(t, tt.f1, f1, 1e-9)
			assert.InDelta(t, tt.prec, prec, 1e-9)
			assert.InDelta(t, tt.rec, rec, 1e-9)
		})
	}
}

func TestEvaluate(t *testing.T) {
	gold := map[string]any{
		"a": "yes",
		"b": "Chicago",
		"c": "Arthur's Magazine",
		"d": "missing",
	}
	preds := map[string]any{
		"a": "Yes",
		"b": "the city of Chicago",
		"c": map[string]any{"magazine": "Arthur's"},
	}

	m, err := Evaluate(preds, gold, logging.NewNop())
	require.NoError(t, err)

	assert.Equal(t, 4, m.Samples)
	assert.Equal(t, 1, m.Missing)
	assert.InDelta(t, 0.25, m.EM, 1e-9)
	// c flattens to "magazine: Arthur's", the gold tokens in another order.
	assert.InDelta(t, (1+0.5+1)/4, m.F1, 1e-9)
	assert.InDelta(t, (1+1.0/3+1)/4, m.Precision, 1e-9)
	assert.InDelta(t, (1+1+1)/4, m.Recall, 1e-9)
}

func TestEvaluate_EmptyGold(t *testing.T) {
	_, err := Evaluate(map[string]any{"a": "x"}, nil, nil)
	assert.ErrorIs(t, err, ErrNoGold)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadPredictions(t *testing.T) {
	ctx := context.Background()
	entry := &domain.Entry{ID: "5a8b57f25542995d1e6f1371", Question: "q", FinalAnswer: "yes"}

	arrayPath := filepath.Join(t.TempDir(), "qwen_20260101.json")
	require.NoError(t, store.NewJSONArraySink(arrayPath).Append(ctx, entry.Record()))
	linesPath := filepath.Join(t.TempDir(), "qwen_20260101.jsonl")
	require.NoError(t, store.NewJSONLSink(linesPath).Append(ctx, entry.Record()))

	tests := []struct {
		name string
		path string
		want map[string]any
	}{
		{name: "id map", path: writeFile(t, "pred.json", `{"x": "Paris", "y": "no"}`), want: map[string]any{"x": "Paris", "y": "no"}},
		{name: "json array sink", path: arrayPath, want: map[string]any{entry.ID: "yes"}},
		{name: "jsonl sink", path: linesPath, want: map[string]any{entry.ID: "yes"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadPredictions(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadPredictions_Errors(t *testing.T) {
	_, err := LoadPredictions(filepath.Join(t.TempDir(), "none.json"))
	assert.Error(t, err)

	_, err = LoadPredictions(writeFile(t, "bad.json", `{"x": `))
	assert.Error(t, err)

	_, err = LoadPredictions(writeFile(t, "noid.json", `[{"Answer_final": "yes"}]`))
	assert.ErrorIs(t, err, domain.ErrInvalidEntry)
}

func TestLoadGold(t *testing.T) {
	gold, err := LoadGold(writeFile(t, "gold.json", `{"a": "yes", "b": "Chicago"}`))
	require.NoError(t, err)
	assert.Len(t, gold, 2)

	_, err = LoadGold(writeFile(t, "gold.json", `["a"]`))
	assert.Error(t, err)
}
