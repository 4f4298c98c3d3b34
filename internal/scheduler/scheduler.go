// Package scheduler runs the refinement of a dataset with bounded
// concurrency, skipping entries the checkpoint ledger already holds.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ring2236/ESA-DGR/internal/domain"
	"github.com/ring2236/ESA-DGR/internal/store"
)

// ErrNilDependency indicates a missing collaborator at construction.
var ErrNilDependency = errors.New("scheduler: nil dependency")

// Task statuses reported to the Observer.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// Processor refines and persists one entry.
type Processor interface {
	Process(ctx context.Context, entry *domain.Entry) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, entry *domain.Entry) error

// Process calls f.
func (f ProcessorFunc) Process(ctx context.Context, entry *domain.Entry) error {
	return f(ctx, entry)
}

// FailureRecorder persists entries that failed above the per-entry guard.
type FailureRecorder interface {
	Append(ctx context.Context, rec domain.FailureRecord) error
}

// Observer is notified of task lifecycle changes.
type Observer interface {
	TaskStarted()
	TaskFinished(status string, d time.Duration)
}

// Summary counts entries by fate for one Run.
type Summary struct {
	Total     int `json:"total"`
	Skipped   int `json:"skipped"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	InFlight  int `json:"in_flight"`
}

// Scheduler launches one task per unprocessed entry.
type Scheduler struct {
	processor Processor
	ledger    store.Ledger
	sink      store.Sink
	failures  FailureRecorder
	observer  Observer
	logger    *slog.Logger

	total     atomic.Int64
	skipped   atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	inFlight  atomic.Int64
}

// Option customizes a Scheduler.
type Option func(*Scheduler)

// WithSink reconciles the ledger against sink before each run.
func WithSink(sink store.Sink) Option {
	return func(s *Scheduler) { s.sink = sink }
}

// WithFailureLog records failed entries to rec.
func WithFailureLog(rec FailureRecorder) Option {
	return func(s *Scheduler) { s.failures = rec }
}

// WithObserver reports task lifecycle to o.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) { s.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = l }
}

// New creates a Scheduler.
func New(processor Processor, ledger store.Ledger, opts ...Option) (*Scheduler, error) {
	if processor == nil || ledger == nil {
		return nil, ErrNilDependency
	}
	s := &Scheduler{processor: processor, ledger: ledger, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "scheduler")
	return s, nil
}

// Run processes every entry not yet in the ledger with at most
// maxConcurrency live tasks, and waits for all of them. Entry failures are
// counted and logged, never returned; the error is non-nil only when the
// ledger cannot be read or ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, entries []*domain.Entry, maxConcurrency int) (Summary, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = domain.DefaultMaxConcurrency
	}
	s.reset(len(entries))

	if s.sink != nil {
		if _, err := store.Reconcile(ctx, s.sink, s.ledger, s.logger); err != nil {
			return s.Progress(), err
		}
	}
	done, err := s.ledger.Load(ctx)
	if err != nil {
		return s.Progress(), fmt.Errorf("loading checkpoint ledger: %w", err)
	}

	g := new(errgroup.Group)
	g.SetLimit(maxConcurrency)
	launched := make(map[string]struct{}, len(entries))

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if _, ok := done[entry.ID]; ok {
			s.skip(entry.ID, "entry already processed, skipping")
			continue
		}
		if _, ok := launched[entry.ID]; ok {
			s.skip(entry.ID, "duplicate entry id, skipping")
			continue
		}
		launched[entry.ID] = struct{}{}

		g.Go(func() error {
			s.runTask(ctx, entry)
			return nil
		})
	}
	_ = g.Wait()

	summary := s.Progress()
	s.logger.Info("run finished",
		"total", summary.Total,
		"skipped", summary.Skipped,
		"completed", summary.Completed,
		"failed", summary.Failed)
	return summary, ctx.Err()
}

// Progress returns a snapshot of the current run's counters.
func (s *Scheduler) Progress() Summary {
	return Summary{
		Total:     int(s.total.Load()),
		Skipped:   int(s.skipped.Load()),
		Completed: int(s.completed.Load()),
		Failed:    int(s.failed.Load()),
		InFlight:  int(s.inFlight.Load()),
	}
}

func (s *Scheduler) reset(total int) {
	s.total.Store(int64(total))
	s.skipped.Store(0)
	s.completed.Store(0)
	s.failed.Store(0)
	s.inFlight.Store(0)
}

func (s *Scheduler) skip(id, msg string) {
	s.skipped.Add(1)
	s.logger.Info(msg, "entry_id", id)
	if s.observer != nil {
		s.observer.TaskFinished(StatusSkipped, 0)
	}
}

// runTask is the outer guard around one entry. Errors and panics are
// recorded to the failure log; the entry stays out of the ledger so the next
// run retries it.
func (s *Scheduler) runTask(ctx context.Context, entry *domain.Entry) {
	start := time.Now()
	s.inFlight.Add(1)
	if s.observer != nil {
		s.observer.TaskStarted()
	}

	var (
		err      error
		panicked bool
	)
	defer func() {
		s.inFlight.Add(-1)
		status := StatusCompleted
		if err != nil {
			status = StatusFailed
			s.failed.Add(1)
			s.recordFailure(ctx, entry.ID, err, panicked)
		} else {
			s.completed.Add(1)
		}
		if s.observer != nil {
			s.observer.TaskFinished(status, time.Since(start))
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			err = fmt.Errorf("panic: %v", r)
			s.logger.Error("entry task panicked",
				"entry_id", entry.ID, "panic", r, "stack", string(debug.Stack()))
		}
	}()

	err = s.processor.Process(ctx, entry)
}

func (s *Scheduler) recordFailure(ctx context.Context, id string, cause error, panicked bool) {
	s.logger.Error("entry failed", "entry_id", id, "error", cause)
	if s.failures == nil {
		return
	}
	rec := domain.FailureRecord{
		ID:       uuid.NewString(),
		EntryID:  id,
		Error:    cause.Error(),
		Panic:    panicked,
		FailedAt: time.Now().UTC(),
	}
	// The run context may already be cancelled; the record must still land.
	if err := s.failures.Append(context.WithoutCancel(ctx), rec); err != nil {
		s.logger.Error("failed to write failure record", "entry_id", id, "error", err)
	}
}
