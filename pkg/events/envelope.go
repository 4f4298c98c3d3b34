// Package events provides the event infrastructure for refinement progress.
// It defines the Envelope type wrapping a JSON payload with routing and
// idempotency metadata, and the EventSink interface that receives envelopes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Version is the envelope schema version emitted by this package.
const Version = "1.0.0"

// Envelope wraps a domain event with consistent metadata.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type identifies the event for routing, e.g. "refinement.round_recorded".
	Type string `json:"type"`

	// Source identifies the emitting component, e.g. "refine-engine".
	Source string `json:"source"`

	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey is derived from the entry and step so that re-emission
	// of the same fact can be deduplicated downstream.
	IdempotencyKey string `json:"idempotency_key"`

	// WorkflowID and RunID are set when the event originates in a Temporal workflow.
	WorkflowID string `json:"workflow_id,omitempty"`
	RunID      string `json:"run_id,omitempty"`

	Payload json.RawMessage `json:"payload"`
}

// New builds an envelope with a fresh ID and the payload marshaled to JSON.
func New(eventType, source, idempotencyKey string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		ID:             uuid.NewString(),
		Type:           eventType,
		Source:         source,
		Version:        Version,
		Timestamp:      time.Now().UTC(),
		IdempotencyKey: idempotencyKey,
		Payload:        data,
	}, nil
}

// EventSink receives emitted events.
//
// Callers must not fail their primary operation because of a sink error;
// events are for observability, not correctness.
type EventSink interface {
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards every event.
type NoOpEventSink struct{}

// Append implements EventSink.
func (n *NoOpEventSink) Append(_ context.Context, _ Envelope) error {
	return nil
}

// NewNoOpEventSink creates a new no-op event sink.
func NewNoOpEventSink() EventSink {
	return &NoOpEventSink{}
}

// LogEventSink writes each event as a structured log record.
type LogEventSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogEventSink creates a sink logging at the given level. A nil logger uses slog.Default.
func NewLogEventSink(logger *slog.Logger, level slog.Level) *LogEventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEventSink{logger: logger.With("component", "events"), level: level}
}

// Append implements EventSink.
func (s *LogEventSink) Append(ctx context.Context, env Envelope) error {
	s.logger.Log(ctx, s.level, "event",
		"event_id", env.ID,
		"event_type", env.Type,
		"source", env.Source,
		"idempotency_key", env.IdempotencyKey,
		"workflow_id", env.WorkflowID,
		"payload", string(env.Payload))
	return nil
}
