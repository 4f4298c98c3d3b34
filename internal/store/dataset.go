package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/ring2236/ESA-DGR/internal/domain"
)

// LoadDataset reads a JSON array of dataset records. Records without an
// identifier or question are logged and left out; the run continues with the
// rest.
func LoadDataset(path string, logger *slog.Logger) ([]*domain.Entry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	data, err := os.ReadFile(path) //nolint:gosec // Operator-supplied dataset path.
	if err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raws []map[string]any
	if err := dec.Decode(&raws); err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}

	entries := make([]*domain.Entry, 0, len(raws))
	for i, raw := range raws {
		entry, err := domain.DecodeEntry(raw)
		if err != nil {
			logger.Warn("skipping invalid dataset record",
				"component", "store", "index", i, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
