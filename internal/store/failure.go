package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ring2236/ESA-DGR/internal/domain"
)

// FailureLog appends one FailureRecord per line.
type FailureLog struct {
	path string
	mu   sync.Mutex
}

// NewFailureLog returns a failure log writing to path.
func NewFailureLog(path string) *FailureLog {
	return &FailureLog{path: path}
}

// Path returns the failure log path.
func (l *FailureLog) Path() string {
	return l.path
}

// Append records a failed entry.
func (l *FailureLog) Append(_ context.Context, rec domain.FailureRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal failure record: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return appendLine(l.path, data)
}

// Records returns all failure records in file order.
func (l *FailureLog) Records(_ context.Context) ([]domain.FailureRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []domain.FailureRecord
	err := scanLines(l.path, func(n int, line []byte, _ bool) error {
		var rec domain.FailureRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return fmt.Errorf("line %d of %s: %w", n, l.path, err)
		}
		out = append(out, rec)
		return nil
	})
	return out, err
}
