package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ring2236/ESA-DGR/internal/llm"
	"github.com/ring2236/ESA-DGR/internal/scheduler"
)

func TestMetrics_ModelCalls(t *testing.T) {
	m := New()

	m.ObserveCall("qwen", "local", llm.OutcomeSuccess, 300*time.Millisecond)
	m.ObserveCall("qwen", "local", llm.OutcomeCacheHit, 0)
	m.ObserveCall("qwen", "local", "provider", time.Second)
	m.ObserveTokens("qwen", 12, 30)
	m.ObserveRetry("qwen")
	m.ObserveRetry("qwen")

	assert.InDelta(t, 1, testutil.ToFloat64(m.modelCalls.WithLabelValues("qwen", "local", llm.OutcomeSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.modelCalls.WithLabelValues("qwen", "local", llm.OutcomeCacheHit)), 0)
	assert.InDelta(t, 12, testutil.ToFloat64(m.tokens.WithLabelValues("qwen", "prompt")), 0)
	assert.InDelta(t, 30, testutil.ToFloat64(m.tokens.WithLabelValues("qwen", "completion")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.retries.WithLabelValues("qwen")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.modelLatency))
}

func TestMetrics_SchedulerAndEntries(t *testing.T) {
	m := New()

	m.TaskStarted()
	m.TaskStarted()
	m.TaskFinished(scheduler.StatusSkipped, 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.inFlight), 0)

	m.TaskFinished(scheduler.StatusCompleted, time.Second)
	m.TaskFinished(scheduler.StatusFailed, time.Second)
	assert.InDelta(t, 0, testutil.ToFloat64(m.inFlight), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.tasks.WithLabelValues(scheduler.StatusFailed)), 0)

	m.ObserveEntry("strict_accepted", 2, 3*time.Second)
	assert.InDelta(t, 1, testutil.ToFloat64(m.entries.WithLabelValues("strict_accepted")), 0)

	m.ObserveSinkWrite(time.Millisecond, nil)
	m.ObserveSinkWrite(time.Millisecond, errors.New("disk full"))
	assert.Equal(t, 2, testutil.CollectAndCount(m.sinkWrites))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveRetry("deepseek-r1-250120")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `esa_model_retries_total{model="deepseek-r1-250120"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
