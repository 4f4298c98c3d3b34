// Package store persists refinement progress: the checkpoint ledger of
// completed entry ids, the result sink holding completed records, and the
// failure log for entries whose task failed outright.
//
// Every file-backed store guards its file with its own mutex; no store
// shares a lock with another. None of them is safe across processes.
package store

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ErrEmptyID is returned when appending an empty identifier.
var ErrEmptyID = errors.New("store: empty entry id")

// Ledger is the durable set of entry ids that were fully processed.
type Ledger interface {
	// Load returns every recorded id. A missing backing store is an empty set.
	Load(ctx context.Context) (map[string]struct{}, error)
	// Append records id. Safe for concurrent use.
	Append(ctx context.Context, id string) error
}

// FileLedger stores ids one per line in an append-only file.
type FileLedger struct {
	path string
	mu   sync.Mutex
}

var _ Ledger = (*FileLedger)(nil)

// NewFileLedger returns a ledger backed by path. The file is created on first append.
func NewFileLedger(path string) *FileLedger {
	return &FileLedger{path: path}
}

// Path returns the ledger file path.
func (l *FileLedger) Path() string {
	return l.path
}

// Load implements Ledger. Blank lines are ignored.
func (l *FileLedger) Load(_ context.Context) (map[string]struct{}, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := make(map[string]struct{})
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return ids, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" {
			ids[id] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return ids, nil
}

// Append implements Ledger. Each id is one write of a full line followed by fsync.
func (l *FileLedger) Append(_ context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrEmptyID
	}
	if strings.ContainsAny(id, "\r\n") {
		return fmt.Errorf("store: entry id %q contains a line break", id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return appendLine(l.path, []byte(id))
}

// appendLine writes line plus a newline in a single write and syncs. A torn
// final line left by an earlier crash is cut off first.
func appendLine(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to ensure directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	if err := trimTornTail(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to repair %s: %w", path, err)
	}

	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')
	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to append to %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to fsync %s: %w", path, err)
	}
	return f.Close()
}

// trimTornTail truncates f back to its last newline when the final line was
// never terminated.
func trimTornTail(f *os.File) error {
	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	buf := make([]byte, 4096)
	end := size
	for end > 0 {
		start := max(end-int64(len(buf)), 0)
		chunk := buf[:end-start]
		if _, err := f.ReadAt(chunk, start); err != nil {
			return err
		}
		if end == size && chunk[len(chunk)-1] == '\n' {
			return nil
		}
		if i := bytes.LastIndexByte(chunk, '\n'); i >= 0 {
			end = start + int64(i) + 1
			break
		}
		end = start
	}
	slog.Default().Warn("truncating torn trailing line",
		"path", f.Name(), "bytes", size-end)
	return f.Truncate(end)
}
