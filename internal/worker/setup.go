package worker

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
	temporallog "go.temporal.io/sdk/log"
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/ring2236/ESA-DGR/internal/activity"
	"github.com/ring2236/ESA-DGR/internal/llm"
	"github.com/ring2236/ESA-DGR/internal/llm/configuration"
	"github.com/ring2236/ESA-DGR/internal/refine"
	"github.com/ring2236/ESA-DGR/internal/retrieval"
	pkgactivity "github.com/ring2236/ESA-DGR/pkg/activity"
	"github.com/ring2236/ESA-DGR/pkg/events"
)

// DefaultTaskQueue is the task queue refinement workflows run on.
const DefaultTaskQueue = "esa-refinement"

// InitializeLLMClient builds the model client from cfg, falling back to
// defaults when cfg is nil.
func InitializeLLMClient(ctx context.Context, cfg *configuration.Config, opts ...llm.Option) (*llm.Client, error) {
	if cfg == nil {
		cfg = configuration.DefaultConfig()
	}

	c, err := llm.NewClient(ctx, cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
	}
	return c, nil
}

// NewActivities builds the activity set over the given backends.
// A nil sink disables event emission.
func NewActivities(
	invoker llm.Invoker,
	searcher retrieval.Searcher,
	sink events.EventSink,
	logger *slog.Logger,
) (*activity.Activities, error) {
	core, err := refine.NewCore(invoker, searcher, logger)
	if err != nil {
		return nil, err
	}
	return activity.NewActivities(pkgactivity.NewBaseActivities(sink), core), nil
}

// Dial connects to the Temporal frontend at hostPort.
func Dial(hostPort, namespace string, logger *slog.Logger) (client.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
		Logger:    temporallog.NewStructuredLogger(logger.With("component", "temporal")),
	})
	if err != nil {
		return nil, fmt.Errorf("dialing temporal at %s: %w", hostPort, err)
	}
	return c, nil
}

// New creates a worker on queue with acts registered. maxConcurrent bounds
// concurrently executing activities; zero keeps the sdk default.
func New(c client.Client, queue string, maxConcurrent int, acts *activity.Activities) sdkworker.Worker {
	if queue == "" {
		queue = DefaultTaskQueue
	}
	w := sdkworker.New(c, queue, sdkworker.Options{
		MaxConcurrentActivityExecutionSize: maxConcurrent,
	})
	RegisterAll(w, acts)
	return w
}
