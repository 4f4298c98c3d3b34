package refine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ring2236/ESA-DGR/internal/domain"
	"github.com/ring2236/ESA-DGR/internal/llm"
	"github.com/ring2236/ESA-DGR/internal/retrieval"
	"github.com/ring2236/ESA-DGR/pkg/events"
)

// ErrNilDependency indicates a missing collaborator at construction.
var ErrNilDependency = errors.New("refine: nil dependency")

// Core performs single refinement steps against the model and retrieval
// backends. It holds no run configuration, so the in-process Engine and the
// Temporal activities share it.
type Core struct {
	invoker  llm.Invoker
	searcher retrieval.Searcher
	logger   *slog.Logger
}

// NewCore returns a Core over the given backends.
func NewCore(invoker llm.Invoker, searcher retrieval.Searcher, logger *slog.Logger) (*Core, error) {
	if invoker == nil || searcher == nil {
		return nil, ErrNilDependency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Core{
		invoker:  invoker,
		searcher: searcher,
		logger:   logger.With("component", "refine"),
	}, nil
}

// Retrieve searches corpus and joins the passage texts.
func (c *Core) Retrieve(ctx context.Context, query, corpus string, size int) (string, error) {
	hits, err := c.searcher.Search(ctx, query, corpus, size)
	if err != nil {
		return "", fmt.Errorf("retrieve: %w", err)
	}
	return retrieval.Reference(hits), nil
}

// Distill asks m for an evidence excerpt.
func (c *Core) Distill(ctx context.Context, m domain.ModelRole, question, reference string) (string, error) {
	excerpt, err := c.invoker.Invoke(ctx, m.Model, m.Role, EvidencePrompt(question, reference))
	if err != nil {
		return "", fmt.Errorf("distill: %w", err)
	}
	return excerpt, nil
}

// StrictScore asks the strict judge m. Unparseable replies score 0.
func (c *Core) StrictScore(ctx context.Context, m domain.ModelRole, question, evidence string) (StrictVerdict, error) {
	reply, err := c.invoker.Invoke(ctx, m.Model, m.Role, JudgePrompt(question, evidence))
	if err != nil {
		return StrictVerdict{}, fmt.Errorf("strict score: %w", err)
	}
	verdict, err := ParseStrict(reply)
	if err != nil {
		c.logger.Warn("failed to parse strict judge reply",
			"model", m.Model, "error", err, "reply", truncate(reply, 200))
		return StrictVerdict{}, nil
	}
	return verdict, nil
}

// LooseScore asks the loose judge m. Unparseable replies score 0.0.
func (c *Core) LooseScore(ctx context.Context, m domain.ModelRole, question, evidence string) (float64, error) {
	reply, err := c.invoker.Invoke(ctx, m.Model, m.Role, JudgePrompt(question, evidence))
	if err != nil {
		return 0, fmt.Errorf("loose score: %w", err)
	}
	score, err := ParseLoose(reply)
	if err != nil {
		c.logger.Warn("failed to parse loose judge reply",
			"model", m.Model, "error", err)
		return 0, nil
	}
	return score, nil
}

// Finalize asks m for the final answer. Parse failures are returned as
// errors wrapping ErrNoJSONObject or ErrMissingAnswer.
func (c *Core) Finalize(ctx context.Context, m domain.ModelRole, question, evidence string) (Answer, error) {
	reply, err := c.invoker.Invoke(ctx, m.Model, m.Role, AnswerPrompt(question, evidence))
	if err != nil {
		return Answer{}, fmt.Errorf("finalize: %w", err)
	}
	answer, err := ParseFinal(reply)
	if err != nil {
		return Answer{}, fmt.Errorf("finalize: %w", err)
	}
	return answer, nil
}

// boundSteps adapts Core to Steps for one context and configuration.
type boundSteps struct {
	ctx  context.Context
	core *Core
	cfg  domain.RefinementConfig
}

func (b boundSteps) Retrieve(query string) (string, error) {
	return b.core.Retrieve(b.ctx, query, b.cfg.Corpus, b.cfg.RetrievalSize)
}

func (b boundSteps) Distill(question, reference string) (string, error) {
	return b.core.Distill(b.ctx, b.cfg.Default, question, reference)
}

func (b boundSteps) StrictScore(question, evidence string) (StrictVerdict, error) {
	return b.core.StrictScore(b.ctx, b.cfg.Strict, question, evidence)
}

func (b boundSteps) LooseScore(question, evidence string) (float64, error) {
	return b.core.LooseScore(b.ctx, b.cfg.Loose, question, evidence)
}

func (b boundSteps) Finalize(question, evidence string) (Answer, error) {
	return b.core.Finalize(b.ctx, b.cfg.Default, question, evidence)
}

// EntryObserver is notified after an entry finishes.
type EntryObserver interface {
	ObserveEntry(outcome string, rounds int, duration time.Duration)
}

// Engine runs the refinement loop in-process.
type Engine struct {
	core     *Core
	cfg      domain.RefinementConfig
	sink     events.EventSink
	observer EntryObserver
	logger   *slog.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithEventSink emits refinement events to sink.
func WithEventSink(sink events.EventSink) EngineOption {
	return func(e *Engine) { e.sink = sink }
}

// WithObserver records per-entry outcomes.
func WithObserver(o EntryObserver) EngineOption {
	return func(e *Engine) { e.observer = o }
}

// NewEngine creates an in-process engine running every entry under cfg.
func NewEngine(core *Core, cfg domain.RefinementConfig, opts ...EngineOption) (*Engine, error) {
	if core == nil {
		return nil, ErrNilDependency
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		core:   core,
		cfg:    cfg,
		sink:   events.NewNoOpEventSink(),
		logger: core.logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the refinement configuration.
func (e *Engine) Config() domain.RefinementConfig {
	return e.cfg
}

// Run refines entry in place. It never fails: step errors end the loop
// early and the entry is finalized with whatever evidence it has.
func (e *Engine) Run(ctx context.Context, entry *domain.Entry) Outcome {
	start := time.Now()
	outcome := Loop(boundSteps{ctx: ctx, core: e.core, cfg: e.cfg}, e.cfg, entry, e.logger)

	if e.observer != nil {
		e.observer.ObserveEntry(string(outcome), len(entry.Rounds), time.Since(start))
	}
	e.emit(ctx, entry, outcome)

	e.logger.Info("entry refined",
		"entry_id", entry.ID,
		"outcome", outcome,
		"rounds", len(entry.Rounds),
		"duration_ms", time.Since(start).Milliseconds())
	return outcome
}

func (e *Engine) emit(ctx context.Context, entry *domain.Entry, outcome Outcome) {
	envs, err := EntryEvents(entry, outcome, SourceEngine)
	if err != nil {
		e.logger.Warn("failed to build refinement events", "entry_id", entry.ID, "error", err)
		return
	}
	for _, env := range envs {
		if err := e.sink.Append(ctx, env); err != nil {
			e.logger.Warn("failed to emit refinement event",
				"entry_id", entry.ID, "event_type", env.Type, "error", err)
		}
	}
}
