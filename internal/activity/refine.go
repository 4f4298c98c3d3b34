// Package activity implements the Temporal activities behind the refinement
// workflow. Each activity performs exactly one side-effecting step of the
// loop; the control flow stays in the workflow.
package activity

import (
	"context"
	"fmt"

	"github.com/ring2236/ESA-DGR/internal/domain"
	"github.com/ring2236/ESA-DGR/internal/refine"
	pkgactivity "github.com/ring2236/ESA-DGR/pkg/activity"
)

// RetrieveInput is the input of Retrieve.
type RetrieveInput struct {
	Query  string `json:"query"`
	Corpus string `json:"corpus"`
	Size   int    `json:"size"`
}

// DistillInput is the input of Distill.
type DistillInput struct {
	Model     domain.ModelRole `json:"model"`
	Question  string           `json:"question"`
	Reference string           `json:"reference"`
}

// JudgeInput is the input of StrictScore, LooseScore, and Finalize.
type JudgeInput struct {
	Model    domain.ModelRole `json:"model"`
	Question string           `json:"question"`
	Evidence string           `json:"evidence"`
}

// EmitInput is the input of EmitEntryEvents.
type EmitInput struct {
	Entry   domain.Entry   `json:"entry"`
	Outcome refine.Outcome `json:"outcome"`
}

// Activities holds the refinement activity implementations.
type Activities struct {
	pkgactivity.BaseActivities
	core *refine.Core
}

// NewActivities creates the activity set over core.
func NewActivities(base pkgactivity.BaseActivities, core *refine.Core) *Activities {
	return &Activities{BaseActivities: base, core: core}
}

// Retrieve searches the corpus and returns the joined reference block.
func (a *Activities) Retrieve(ctx context.Context, in RetrieveInput) (string, error) {
	if in.Corpus == "" {
		return "", nonRetryable(ErrorValidation, ErrActivityValidation, "corpus is required")
	}
	ref, err := a.core.Retrieve(ctx, in.Query, in.Corpus, in.Size)
	if err != nil {
		return "", classify("Retrieve", err)
	}
	return ref, nil
}

// Distill produces the evidence excerpt for one round.
func (a *Activities) Distill(ctx context.Context, in DistillInput) (string, error) {
	if err := validateModel(in.Model); err != nil {
		return "", err
	}
	a.RecordHeartbeat(ctx, "distill")
	excerpt, err := a.core.Distill(ctx, in.Model, in.Question, in.Reference)
	if err != nil {
		return "", classify("Distill", err)
	}
	return excerpt, nil
}

// StrictScore runs the strict judge.
func (a *Activities) StrictScore(ctx context.Context, in JudgeInput) (refine.StrictVerdict, error) {
	if err := validateModel(in.Model); err != nil {
		return refine.StrictVerdict{}, err
	}
	v, err := a.core.StrictScore(ctx, in.Model, in.Question, in.Evidence)
	if err != nil {
		return refine.StrictVerdict{}, classify("StrictScore", err)
	}
	return v, nil
}

// LooseScore runs the loose judge.
func (a *Activities) LooseScore(ctx context.Context, in JudgeInput) (float64, error) {
	if err := validateModel(in.Model); err != nil {
		return 0, err
	}
	score, err := a.core.LooseScore(ctx, in.Model, in.Question, in.Evidence)
	if err != nil {
		return 0, classify("LooseScore", err)
	}
	return score, nil
}

// Finalize writes the final answer. An unparseable reply fails without retry.
func (a *Activities) Finalize(ctx context.Context, in JudgeInput) (refine.Answer, error) {
	if err := validateModel(in.Model); err != nil {
		return refine.Answer{}, err
	}
	a.RecordHeartbeat(ctx, "finalize")
	answer, err := a.core.Finalize(ctx, in.Model, in.Question, in.Evidence)
	if err != nil {
		return refine.Answer{}, classify("Finalize", err)
	}
	return answer, nil
}

// EmitEntryEvents publishes the round and finalization events of a refined entry.
func (a *Activities) EmitEntryEvents(ctx context.Context, in EmitInput) error {
	wf := a.GetWorkflowContext(ctx)
	envs, err := refine.EntryEvents(&in.Entry, in.Outcome, refine.SourceActivity)
	if err != nil {
		return nonRetryable(ErrorValidation, err, "failed to build events")
	}
	for _, env := range envs {
		env.WorkflowID = wf.WorkflowID
		env.RunID = wf.RunID
		a.EmitEventSafe(ctx, env, env.Type)
	}
	return nil
}

func validateModel(m domain.ModelRole) error {
	if m.Model == "" || m.Role == "" {
		return nonRetryable(ErrorValidation,
			fmt.Errorf("%w: model and role are required, got %q", ErrActivityValidation, m.String()),
			"invalid model selection")
	}
	return nil
}
