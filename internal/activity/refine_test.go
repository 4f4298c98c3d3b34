package activity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/ring2236/ESA-DGR/internal/domain"
	"github.com/ring2236/ESA-DGR/internal/llm"
	llmerrors "github.com/ring2236/ESA-DGR/internal/llm/errors"
	"github.com/ring2236/ESA-DGR/internal/refine"
	"github.com/ring2236/ESA-DGR/internal/retrieval"
	pkgactivity "github.com/ring2236/ESA-DGR/pkg/activity"
	"github.com/ring2236/ESA-DGR/pkg/events"
)

type stubInvoker struct {
	reply string
	err   error
}

func (s stubInvoker) Invoke(context.Context, string, string, string) (string, error) {
	return s.reply, s.err
}

func (s stubInvoker) InvokeWithReasoning(ctx context.Context, m, r, q string) (*llm.Reply, error) {
	content, err := s.Invoke(ctx, m, r, q)
	if err != nil {
		return nil, err
	}
	return &llm.Reply{Content: content}, nil
}

type memorySink struct {
	mu   sync.Mutex
	envs []events.Envelope
}

func (s *memorySink) Append(_ context.Context, env events.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
	return nil
}

var qwenHelpful = domain.ModelRole{Model: "qwen", Role: "helpful"}

func newActivities(t *testing.T, inv llm.Invoker, sink events.EventSink) *Activities {
	t.Helper()
	searcher := retrieval.Static{Hits: []domain.Hit{{PassageText: "Ed Wood was American."}}}
	core, err := refine.NewCore(inv, searcher, slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	return NewActivities(pkgactivity.NewBaseActivities(sink), core)
}

func newEnv(acts *Activities) *testsuite.TestActivityEnvironment {
	suite := &testsuite.WorkflowTestSuite{}
	env := suite.NewTestActivityEnvironment()
	env.RegisterActivity(acts)
	return env
}

func TestActivities_Steps(t *testing.T) {
	acts := newActivities(t, stubInvoker{reply: `{"score": 1, "missing_evidence": ""}`}, nil)
	env := newEnv(acts)

	val, err := env.ExecuteActivity(acts.Retrieve, RetrieveInput{Query: "q", Corpus: "hotpotqa", Size: 1})
	require.NoError(t, err)
	var ref string
	require.NoError(t, val.Get(&ref))
	assert.Equal(t, "Ed Wood was American.", ref)

	val, err = env.ExecuteActivity(acts.StrictScore, JudgeInput{Model: qwenHelpful, Question: "q", Evidence: "e"})
	require.NoError(t, err)
	var verdict refine.StrictVerdict
	require.NoError(t, val.Get(&verdict))
	assert.Equal(t, 1, verdict.Score)
}

func TestActivities_LooseScoreMalformedIsZero(t *testing.T) {
	acts := newActivities(t, stubInvoker{reply: "somewhat relevant"}, nil)
	env := newEnv(acts)

	val, err := env.ExecuteActivity(acts.LooseScore, JudgeInput{Model: qwenHelpful, Question: "q", Evidence: "e"})
	require.NoError(t, err)
	var score float64
	require.NoError(t, val.Get(&score))
	assert.Zero(t, score)
}

func TestActivities_ErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		invoker       stubInvoker
		run           func(*Activities, *testsuite.TestActivityEnvironment) error
		wantType      string
		wantRetryable bool
	}{
		{
			name:    "finalize parse failure is final",
			invoker: stubInvoker{reply: "the answer is yes"},
			run: func(a *Activities, env *testsuite.TestActivityEnvironment) error {
				_, err := env.ExecuteActivity(a.Finalize, JudgeInput{Model: qwenHelpful, Question: "q", Evidence: "e"})
				return err
			},
			wantType: ErrorParse,
		},
		{
			name:    "unknown role is final",
			invoker: stubInvoker{err: llmerrors.ErrUnknownRole},
			run: func(a *Activities, env *testsuite.TestActivityEnvironment) error {
				_, err := env.ExecuteActivity(a.Distill, DistillInput{Model: qwenHelpful, Question: "q", Reference: "r"})
				return err
			},
			wantType: ErrorConfig,
		},
		{
			name:    "transport failure is retryable",
			invoker: stubInvoker{err: errors.New("connection reset")},
			run: func(a *Activities, env *testsuite.TestActivityEnvironment) error {
				_, err := env.ExecuteActivity(a.Distill, DistillInput{Model: qwenHelpful, Question: "q", Reference: "r"})
				return err
			},
			wantType:      ErrorProvider,
			wantRetryable: true,
		},
		{
			name: "missing model is a validation error",
			run: func(a *Activities, env *testsuite.TestActivityEnvironment) error {
				_, err := env.ExecuteActivity(a.StrictScore, JudgeInput{Question: "q"})
				return err
			},
			wantType: ErrorValidation,
		},
		{
			name: "empty query is final",
			run: func(a *Activities, env *testsuite.TestActivityEnvironment) error {
				_, err := env.ExecuteActivity(a.Retrieve, RetrieveInput{Corpus: "hotpotqa", Size: 3})
				return err
			},
			wantType: ErrorRetrieval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acts := newActivities(t, tt.invoker, nil)
			err := tt.run(acts, newEnv(acts))
			require.Error(t, err)

			var appErr *temporal.ApplicationError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, tt.wantType, appErr.Type())
			assert.Equal(t, !tt.wantRetryable, appErr.NonRetryable())
		})
	}
}

func TestActivities_EmitEntryEvents(t *testing.T) {
	sink := &memorySink{}
	acts := newActivities(t, stubInvoker{}, sink)
	env := newEnv(acts)

	loose := 0.2
	entry := domain.Entry{
		ID:       "5ab3b0bf5542992ade7c6e39",
		Question: "Which magazine was started first?",
		Rounds: []domain.Round{
			{Number: 1, LooseScore: &loose, Evidence: "a"},
			{Number: 2, StrictScore: 1, Evidence: "b"},
		},
		FinalAnswer: "Arthur's Magazine",
	}

	_, err := env.ExecuteActivity(acts.EmitEntryEvents, EmitInput{Entry: entry, Outcome: refine.OutcomeStrictAccepted})
	require.NoError(t, err)

	require.Len(t, sink.envs, 3)
	for _, env := range sink.envs {
		assert.Equal(t, refine.SourceActivity, env.Source)
		assert.NotEmpty(t, env.WorkflowID)
		assert.NotEqual(t, "local", env.WorkflowID)
	}
	assert.Equal(t, entry.ID+":round_2", sink.envs[1].IdempotencyKey)
	assert.Equal(t, entry.ID+":final", sink.envs[2].IdempotencyKey)
}
