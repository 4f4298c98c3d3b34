// Package activity holds helpers shared by Temporal activity structs. Every
// helper also works on a plain context, so activity methods can be unit
// tested without the Temporal test environment.
package activity

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"

	"github.com/ring2236/ESA-DGR/pkg/events"
)

const (
	emitAttempts   = 2
	emitRetryDelay = 200 * time.Millisecond
)

// WorkflowContext identifies the execution an activity belongs to.
type WorkflowContext struct {
	WorkflowID string
	RunID      string
	ActivityID string
}

// BaseActivities is embedded by activity structs that publish events.
type BaseActivities struct {
	eventSink events.EventSink
}

// NewBaseActivities returns a BaseActivities publishing to sink.
// A nil sink turns EmitEventSafe into a no-op.
func NewBaseActivities(sink events.EventSink) BaseActivities {
	return BaseActivities{eventSink: sink}
}

// GetWorkflowContext returns the execution ids of the running activity, or
// "local" ids with a random run suffix when ctx is not an activity context.
func (b *BaseActivities) GetWorkflowContext(ctx context.Context) WorkflowContext {
	if !activity.IsActivity(ctx) {
		return WorkflowContext{
			WorkflowID: "local",
			RunID:      "local-" + uuid.NewString()[:8],
			ActivityID: "local",
		}
	}
	info := activity.GetInfo(ctx)
	return WorkflowContext{
		WorkflowID: info.WorkflowExecution.ID,
		RunID:      info.WorkflowExecution.RunID,
		ActivityID: info.ActivityID,
	}
}

// EmitEventSafe appends env, retrying once after a short pause. Failures are
// logged and swallowed; a lost event never fails the activity.
func (b *BaseActivities) EmitEventSafe(ctx context.Context, env events.Envelope, what string) {
	if b.eventSink == nil {
		return
	}

	var err error
	for attempt := 0; attempt < emitAttempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(emitRetryDelay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				SafeLogError(ctx, "event emission cancelled", "event", what, "event_type", env.Type)
				return
			}
		}
		if err = b.eventSink.Append(ctx, env); err == nil {
			SafeLog(ctx, "event emitted", "event", what, "event_type", env.Type, "idempotency_key", env.IdempotencyKey)
			return
		}
	}
	SafeLogError(ctx, "event emission failed", "event", what, "event_type", env.Type, "attempts", emitAttempts, "error", err)
}

// RecordHeartbeat records a heartbeat for the running activity.
func (b *BaseActivities) RecordHeartbeat(ctx context.Context, details ...any) {
	RecordHeartbeat(ctx, details...)
}

// SafeLog logs at info through the activity logger, or slog outside one.
func SafeLog(ctx context.Context, msg string, keyvals ...any) {
	if activity.IsActivity(ctx) {
		activity.GetLogger(ctx).Info(msg, keyvals...)
		return
	}
	slog.DebugContext(ctx, msg, keyvals...)
}

// SafeLogError logs at error through the activity logger, or slog outside one.
func SafeLogError(ctx context.Context, msg string, keyvals ...any) {
	if activity.IsActivity(ctx) {
		activity.GetLogger(ctx).Error(msg, keyvals...)
		return
	}
	slog.ErrorContext(ctx, msg, keyvals...)
}

// RecordHeartbeat records activity heartbeat details; a no-op outside an activity.
func RecordHeartbeat(ctx context.Context, details ...any) {
	if activity.IsActivity(ctx) {
		activity.RecordHeartbeat(ctx, details...)
	}
}
