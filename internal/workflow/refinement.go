// Package workflow runs the refinement loop as a Temporal workflow.
// Control flow is the same refine.Loop used in-process; every model and
// retrieval call is an activity, so the workflow itself stays deterministic.
package workflow

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/ring2236/ESA-DGR/internal/activity"
	"github.com/ring2236/ESA-DGR/internal/domain"
	"github.com/ring2236/ESA-DGR/internal/refine"
)

// DefaultActivityTimeout bounds a single activity attempt when the input sets none.
const DefaultActivityTimeout = 5 * time.Minute

// RefinementInput is the workflow input.
type RefinementInput struct {
	Entry           domain.Entry            `json:"entry"`
	Config          domain.RefinementConfig `json:"config"`
	ActivityTimeout time.Duration           `json:"activity_timeout,omitempty"`
}

// RefinementOutput carries the refined entry back to the caller.
type RefinementOutput struct {
	Entry   domain.Entry   `json:"entry"`
	Outcome refine.Outcome `json:"outcome"`
}

// acts is only used for method references; activities are resolved by name.
var acts *activity.Activities

// RefinementWorkflow refines one entry. Step failures end the loop early
// and the entry is still finalized, so the workflow only fails on invalid input.
func RefinementWorkflow(ctx workflow.Context, in RefinementInput) (*RefinementOutput, error) {
	const currentVersion = 1
	_ = workflow.GetVersion(ctx, "refinement.v", workflow.DefaultVersion, currentVersion)

	if err := in.Config.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError("invalid refinement config", "Validation", err)
	}
	if in.Entry.ID == "" {
		return nil, temporal.NewNonRetryableApplicationError("invalid entry", "Validation", domain.ErrInvalidEntry)
	}

	timeout := in.ActivityTimeout
	if timeout <= 0 {
		timeout = DefaultActivityTimeout
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    3,
		},
	})

	logger := workflow.GetLogger(ctx)
	entry := in.Entry
	outcome := refine.Loop(workflowSteps{ctx: ctx, cfg: in.Config}, in.Config, &entry, logger)

	emit := activity.EmitInput{Entry: entry, Outcome: outcome}
	if err := workflow.ExecuteActivity(ctx, acts.EmitEntryEvents, emit).Get(ctx, nil); err != nil {
		logger.Warn("failed to emit refinement events", "entry_id", entry.ID, "error", err)
	}

	logger.Info("entry refined",
		"entry_id", entry.ID,
		"outcome", outcome,
		"rounds", len(entry.Rounds))
	return &RefinementOutput{Entry: entry, Outcome: outcome}, nil
}

// workflowSteps executes each refinement step as an activity.
type workflowSteps struct {
	ctx workflow.Context
	cfg domain.RefinementConfig
}

func (s workflowSteps) Retrieve(query string) (string, error) {
	var ref string
	in := activity.RetrieveInput{Query: query, Corpus: s.cfg.Corpus, Size: s.cfg.RetrievalSize}
	err := workflow.ExecuteActivity(s.ctx, acts.Retrieve, in).Get(s.ctx, &ref)
	return ref, err
}

func (s workflowSteps) Distill(question, reference string) (string, error) {
	var excerpt string
	in := activity.DistillInput{Model: s.cfg.Default, Question: question, Reference: reference}
	err := workflow.ExecuteActivity(s.ctx, acts.Distill, in).Get(s.ctx, &excerpt)
	return excerpt, err
}

func (s workflowSteps) StrictScore(question, evidence string) (refine.StrictVerdict, error) {
	var v refine.StrictVerdict
	in := activity.JudgeInput{Model: s.cfg.Strict, Question: question, Evidence: evidence}
	err := workflow.ExecuteActivity(s.ctx, acts.StrictScore, in).Get(s.ctx, &v)
	return v, err
}

func (s workflowSteps) LooseScore(question, evidence string) (float64, error) {
	var score float64
	in := activity.JudgeInput{Model: s.cfg.Loose, Question: question, Evidence: evidence}
	err := workflow.ExecuteActivity(s.ctx, acts.LooseScore, in).Get(s.ctx, &score)
	return score, err
}

func (s workflowSteps) Finalize(question, evidence string) (refine.Answer, error) {
	var answer refine.Answer
	in := activity.JudgeInput{Model: s.cfg.Default, Question: question, Evidence: evidence}
	err := workflow.ExecuteActivity(s.ctx, acts.Finalize, in).Get(s.ctx, &answer)
	return answer, err
}
