package store_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ring2236/ESA-DGR/internal/logging"
	"github.com/ring2236/ESA-DGR/internal/store"
)

func TestLoadDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dev.json")
	require.NoError(t, os.WriteFile(path, []byte(`[
		{"_id": "5a8b57f25542995d1e6f1371", "question": "Same nationality?", "type": "comparison"},
		{"id": 1234567890123, "question": "Numeric id?"},
		{"question": "no id"},
		{"_id": "blank", "question": "  "}
	]`), 0o600))

	entries, err := store.LoadDataset(path, logging.NewNop())
	require.NoError(t, err)
	require.Len(t, entries, 2)

	assert.Equal(t, "5a8b57f25542995d1e6f1371", entries[0].ID)
	assert.Equal(t, "comparison", entries[0].Raw["type"])
	assert.Equal(t, "1234567890123", entries[1].ID)
}

func TestLoadDataset_Errors(t *testing.T) {
	_, err := store.LoadDataset(filepath.Join(t.TempDir(), "missing.json"), logging.NewNop())
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "obj.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"_id": "a"}`), 0o600))
	_, err = store.LoadDataset(path, logging.NewNop())
	assert.Error(t, err)
}
