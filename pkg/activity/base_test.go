package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ring2236/ESA-DGR/pkg/events"
)

type flakySink struct {
	failures int
	appended []events.Envelope
}

func (s *flakySink) Append(_ context.Context, env events.Envelope) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("sink unavailable")
	}
	s.appended = append(s.appended, env)
	return nil
}

func TestGetWorkflowContext_OutsideActivity(t *testing.T) {
	b := NewBaseActivities(nil)
	wf := b.GetWorkflowContext(context.Background())
	assert.Equal(t, "local", wf.WorkflowID)
	assert.Contains(t, wf.RunID, "local-")
}

func TestEmitEventSafe(t *testing.T) {
	tests := []struct {
		name      string
		failures  int
		wantCount int
	}{
		{name: "first attempt", failures: 0, wantCount: 1},
		{name: "retry succeeds", failures: 1, wantCount: 1},
		{name: "gives up", failures: 5, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &flakySink{failures: tt.failures}
			b := NewBaseActivities(sink)
			b.EmitEventSafe(context.Background(), events.Envelope{Type: "refinement.entry_finalized"}, "entry finalized")
			assert.Len(t, sink.appended, tt.wantCount)
		})
	}
}

func TestEmitEventSafe_NilSink(t *testing.T) {
	b := NewBaseActivities(nil)
	assert.NotPanics(t, func() {
		b.EmitEventSafe(context.Background(), events.Envelope{}, "noop")
	})
}

func TestSafeHelpers_OutsideActivity(t *testing.T) {
	assert.NotPanics(t, func() {
		SafeLog(context.Background(), "msg")
		SafeLogError(context.Background(), "msg")
		RecordHeartbeat(context.Background(), 1)
	})
}
