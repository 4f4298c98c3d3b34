package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/ring2236/ESA-DGR/internal/domain"
	"github.com/ring2236/ESA-DGR/internal/refine"
	"github.com/ring2236/ESA-DGR/internal/store"
	"github.com/ring2236/ESA-DGR/internal/workflow"
)

// WorkflowIDPrefix prefixes the Temporal workflow id of each entry.
const WorkflowIDPrefix = "refine-"

// SinkObserver records result-sink write latency.
type SinkObserver interface {
	ObserveSinkWrite(d time.Duration, err error)
}

// persister writes a refined entry to the sink and then the ledger.
// The order matters: an id in the ledger always has a record in the sink.
type persister struct {
	sink     store.Sink
	ledger   store.Ledger
	observer SinkObserver
}

func (p persister) persist(ctx context.Context, entry *domain.Entry) error {
	start := time.Now()
	err := p.sink.Append(ctx, entry.Record())
	if p.observer != nil {
		p.observer.ObserveSinkWrite(time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("writing result for %s: %w", entry.ID, err)
	}
	if err := p.ledger.Append(ctx, entry.ID); err != nil {
		return fmt.Errorf("checkpointing %s: %w", entry.ID, err)
	}
	return nil
}

// DefaultProcessor refines entries in-process.
type DefaultProcessor struct {
	engine *refine.Engine
	persister
}

// NewDefaultProcessor returns a processor running engine and persisting to
// sink and ledger. observer may be nil.
func NewDefaultProcessor(engine *refine.Engine, sink store.Sink, ledger store.Ledger, observer SinkObserver) (*DefaultProcessor, error) {
	if engine == nil || sink == nil || ledger == nil {
		return nil, ErrNilDependency
	}
	return &DefaultProcessor{
		engine:    engine,
		persister: persister{sink: sink, ledger: ledger, observer: observer},
	}, nil
}

// Process refines entry and persists the result. An entry whose context was
// cancelled mid-loop is not persisted, so it runs again on resume.
func (p *DefaultProcessor) Process(ctx context.Context, entry *domain.Entry) error {
	p.engine.Run(ctx, entry)
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.persist(ctx, entry)
}

// TemporalProcessor refines each entry as a RefinementWorkflow execution.
type TemporalProcessor struct {
	client client.Client
	queue  string
	cfg    domain.RefinementConfig
	persister
}

// NewTemporalProcessor returns a processor starting workflows on queue.
func NewTemporalProcessor(
	c client.Client,
	queue string,
	cfg domain.RefinementConfig,
	sink store.Sink,
	ledger store.Ledger,
	observer SinkObserver,
) (*TemporalProcessor, error) {
	if c == nil || sink == nil || ledger == nil {
		return nil, ErrNilDependency
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &TemporalProcessor{
		client:    c,
		queue:     queue,
		cfg:       cfg,
		persister: persister{sink: sink, ledger: ledger, observer: observer},
	}, nil
}

// Process executes the workflow for entry, waits for it, and persists the
// refined entry it returns.
func (p *TemporalProcessor) Process(ctx context.Context, entry *domain.Entry) error {
	opts := client.StartWorkflowOptions{
		ID:        WorkflowIDPrefix + entry.ID,
		TaskQueue: p.queue,
	}
	in := workflow.RefinementInput{Entry: *entry, Config: p.cfg}

	run, err := p.client.ExecuteWorkflow(ctx, opts, workflow.RefinementWorkflow, in)
	if err != nil {
		return fmt.Errorf("starting workflow for %s: %w", entry.ID, err)
	}

	var out workflow.RefinementOutput
	if err := run.Get(ctx, &out); err != nil {
		return fmt.Errorf("workflow %s: %w", run.GetID(), err)
	}
	*entry = out.Entry
	return p.persist(ctx, entry)
}
