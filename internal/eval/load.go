package eval

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ring2236/ESA-DGR/internal/domain"
)

// LoadGold reads a JSON object mapping entry ids to gold answers.
func LoadGold(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Operator-supplied path.
	if err != nil {
		return nil, fmt.Errorf("reading gold file: %w", err)
	}
	var gold map[string]any
	if err := json.Unmarshal(data, &gold); err != nil {
		return nil, fmt.Errorf("parsing gold file %s: %w", path, err)
	}
	return gold, nil
}

// LoadPredictions reads predictions from path. It accepts an {id: answer}
// object, a JSON array of result records, or one result record per line.
// Records contribute their Answer_final.
func LoadPredictions(path string) (map[string]any, error) {
	data, err := os.ReadFile(path) //nolint:gosec // Operator-supplied path.
	if err != nil {
		return nil, fmt.Errorf("reading prediction file: %w", err)
	}
	data = bytes.TrimSpace(data)

	var values []map[string]any
	if bytes.HasPrefix(data, []byte("[")) {
		if err := json.Unmarshal(data, &values); err != nil {
			return nil, fmt.Errorf("parsing prediction file %s: %w", path, err)
		}
	} else {
		dec := json.NewDecoder(bytes.NewReader(data))
		for {
			var v map[string]any
			if err := dec.Decode(&v); errors.Is(err, io.EOF) {
				break
			} else if err != nil {
				return nil, fmt.Errorf("parsing prediction file %s: %w", path, err)
			}
			values = append(values, v)
		}
		if len(values) == 1 {
			if _, isRecord := values[0][domain.KeyAnswerFinal]; !isRecord {
				return values[0], nil
			}
		}
	}

	out := make(map[string]any, len(values))
	for i, rec := range values {
		id, err := domain.IdentifierOf(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d of %s: %w", i, path, err)
		}
		out[id] = rec[domain.KeyAnswerFinal]
	}
	return out, nil
}
