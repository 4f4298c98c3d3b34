package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ring2236/ESA-DGR/internal/domain"
)

// Sink output formats.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
)

// ErrUnknownFormat is returned for an unsupported sink format.
var ErrUnknownFormat = errors.New("store: unknown sink format")

// Sink receives completed records.
type Sink interface {
	// Append durably adds rec. Safe for concurrent use.
	Append(ctx context.Context, rec *domain.Record) error
	// IDs returns the ids of all stored records in file order.
	IDs(ctx context.Context) ([]string, error)
}

// OutputPath names the result file after the default model and the run date.
func OutputPath(dir, defaultModel, format string, now time.Time) string {
	return filepath.Join(dir, fmt.Sprintf("%s_%s.%s", defaultModel, now.Format("20060102"), format))
}

// NewSink creates a sink of the given format at path.
func NewSink(format, path string) (Sink, error) {
	switch format {
	case FormatJSON:
		return NewJSONArraySink(path), nil
	case FormatJSONL:
		return NewJSONLSink(path), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// JSONArraySink keeps all records in one indented JSON array. Each append
// reads, extends, and atomically replaces the whole file, so cost grows with
// the number of stored records.
type JSONArraySink struct {
	path string
	mu   sync.Mutex
}

var _ Sink = (*JSONArraySink)(nil)

// NewJSONArraySink returns a sink writing to path.
func NewJSONArraySink(path string) *JSONArraySink {
	return &JSONArraySink{path: path}
}

// Append implements Sink.
func (s *JSONArraySink) Append(_ context.Context, rec *domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	records = append(records, data)

	out, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal result array: %w", err)
	}
	return writeFileAtomic(s.path, out)
}

// IDs implements Sink.
func (s *JSONArraySink) IDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	records, err := s.read()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(records))
	for i, raw := range records {
		id, err := recordID(raw)
		if err != nil {
			return nil, fmt.Errorf("record %d of %s: %w", i, s.path, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *JSONArraySink) read() ([]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var records []json.RawMessage
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", s.path, err)
	}
	return records, nil
}

// writeFileAtomic replaces path via a synced temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to ensure directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}

// JSONLSink appends one record per line.
type JSONLSink struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

var _ Sink = (*JSONLSink)(nil)

// NewJSONLSink returns a sink writing to path.
func NewJSONLSink(path string) *JSONLSink {
	return &JSONLSink{
		path:   path,
		logger: slog.Default().With("component", "store"),
	}
}

// Append implements Sink.
func (s *JSONLSink) Append(_ context.Context, rec *domain.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record %s: %w", rec.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLine(s.path, data)
}

// IDs implements Sink. A truncated final line left by a crash is skipped.
func (s *JSONLSink) IDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	err := scanLines(s.path, func(n int, line []byte, last bool) error {
		id, err := recordID(line)
		if err != nil {
			if last {
				s.logger.Warn("skipping truncated trailing record", "path", s.path, "line", n)
				return nil
			}
			return fmt.Errorf("line %d of %s: %w", n, s.path, err)
		}
		ids = append(ids, id)
		return nil
	})
	return ids, err
}

// scanLines calls fn for every non-blank line of path. A missing file has no lines.
func scanLines(path string, fn func(n int, line []byte, last bool) error) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64<<20)

	var (
		pending []byte
		pendN   int
		n       int
	)
	for scanner.Scan() {
		n++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if pending != nil {
			if err := fn(pendN, pending, false); err != nil {
				return err
			}
		}
		pending = append([]byte(nil), line...)
		pendN = n
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if pending != nil {
		return fn(pendN, pending, true)
	}
	return nil
}

func recordID(raw []byte) (string, error) {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return "", err
	}
	for k, v := range fields {
		if n, ok := v.(json.Number); ok {
			fields[k] = n.String()
		}
	}
	return domain.IdentifierOf(fields)
}
