package refine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ring2236/ESA-DGR/internal/domain"
	"github.com/ring2236/ESA-DGR/internal/llm"
	"github.com/ring2236/ESA-DGR/internal/retrieval"
	"github.com/ring2236/ESA-DGR/pkg/events"
)

// roleInvoker answers by role key, popping scripted replies in order.
type roleInvoker struct {
	mu      sync.Mutex
	replies map[string][]string
	errs    map[string]error
	prompts map[string][]string
}

func (r *roleInvoker) Invoke(_ context.Context, _, roleKey, query string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.prompts == nil {
		r.prompts = map[string][]string{}
	}
	r.prompts[roleKey] = append(r.prompts[roleKey], query)
	if err := r.errs[roleKey]; err != nil {
		return "", err
	}
	queue := r.replies[roleKey]
	if len(queue) == 0 {
		return "", errors.New("no scripted reply for " + roleKey)
	}
	r.replies[roleKey] = queue[1:]
	return queue[0], nil
}

func (r *roleInvoker) InvokeWithReasoning(ctx context.Context, modelID, roleKey, query string) (*llm.Reply, error) {
	content, err := r.Invoke(ctx, modelID, roleKey, query)
	if err != nil {
		return nil, err
	}
	return &llm.Reply{Content: content}, nil
}

type capturingSink struct {
	mu   sync.Mutex
	envs []events.Envelope
}

func (s *capturingSink) Append(_ context.Context, env events.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs = append(s.envs, env)
	return nil
}

type countingObserver struct {
	outcome string
	rounds  int
}

func (o *countingObserver) ObserveEntry(outcome string, rounds int, _ time.Duration) {
	o.outcome = outcome
	o.rounds = rounds
}

func engineConfig() domain.RefinementConfig {
	cfg := loopConfig(2, 0.8)
	cfg.Default.Role = "helpful"
	cfg.Strict.Role = "strict"
	cfg.Loose.Role = "loose"
	return cfg
}

func TestEngine_Run(t *testing.T) {
	inv := &roleInvoker{replies: map[string][]string{
		"helpful": {
			"Scott Derrickson is an American director.",
			"Ed Wood was an American filmmaker.",
			`{"process": "Both are American.", "final answer": "yes"}`,
		},
		"strict": {
			"not json at all",
			`{"score": 1, "missing_evidence": ""}`,
		},
		"loose": {"0.4"},
	}}
	searcher := retrieval.Static{Hits: []domain.Hit{{PassageText: "p1"}, {PassageText: "p2"}}}

	core, err := NewCore(inv, searcher, nopLogger())
	require.NoError(t, err)

	sink := &capturingSink{}
	obs := &countingObserver{}
	engine, err := NewEngine(core, engineConfig(), WithEventSink(sink), WithObserver(obs))
	require.NoError(t, err)

	entry := newEntry()
	outcome := engine.Run(context.Background(), entry)

	assert.Equal(t, OutcomeStrictAccepted, outcome)
	require.Len(t, entry.Rounds, 2)
	assert.Equal(t, 0, entry.Rounds[0].StrictScore, "malformed strict reply scores zero")
	require.NotNil(t, entry.Rounds[0].LooseScore)
	assert.InDelta(t, 0.4, *entry.Rounds[0].LooseScore, 1e-9)
	assert.Nil(t, entry.Rounds[1].LooseScore)
	assert.Equal(t, "yes", entry.FinalAnswer)
	assert.Equal(t,
		"Scott Derrickson is an American director.\nEd Wood was an American filmmaker.",
		entry.Record().RetrievedPassages)

	// Distillation sees the joined retrieval reference.
	assert.Contains(t, inv.prompts["helpful"][0], "current_reference: p1\np2")

	// Judges see the cumulative evidence.
	var judged judgePayload
	require.NoError(t, json.Unmarshal([]byte(inv.prompts["strict"][1]), &judged))
	assert.Equal(t, entry.CumulativeEvidence, judged.Evidence)

	assert.Equal(t, string(OutcomeStrictAccepted), obs.outcome)
	assert.Equal(t, 2, obs.rounds)

	require.Len(t, sink.envs, 3)
	assert.Equal(t, EventRoundRecorded, sink.envs[0].Type)
	assert.Equal(t, entry.ID+":round_1", sink.envs[0].IdempotencyKey)
	assert.Equal(t, EventEntryFinalized, sink.envs[2].Type)
	assert.Equal(t, entry.ID+":final", sink.envs[2].IdempotencyKey)
}

func TestEngine_Run_FinalizeParseFailure(t *testing.T) {
	inv := &roleInvoker{replies: map[string][]string{
		"helpful": {"excerpt", "I think the answer is yes."},
		"strict":  {`{"score": 1}`},
	}}
	engine := newTestEngine(t, inv)

	entry := newEntry()
	engine.Run(context.Background(), entry)

	assert.Equal(t, domain.AnswerErrorProcess, entry.FinalProcess)
	assert.Empty(t, entry.FinalAnswer)
}

func TestEngine_Run_InvokerFailureFinalizesPartial(t *testing.T) {
	inv := &roleInvoker{
		replies: map[string][]string{
			"helpful": {"excerpt", `{"process": "partial", "final answer": "unknown"}`},
		},
		errs: map[string]error{"strict": errors.New("connection refused")},
	}
	engine := newTestEngine(t, inv)

	entry := newEntry()
	outcome := engine.Run(context.Background(), entry)

	assert.Equal(t, OutcomeAborted, outcome)
	assert.Empty(t, entry.Rounds)
	assert.Equal(t, "unknown", entry.FinalAnswer)
	assert.Equal(t, "excerpt", entry.Record().RetrievedPassages)
}

func newTestEngine(t *testing.T, inv *roleInvoker) *Engine {
	t.Helper()
	core, err := NewCore(inv, retrieval.Static{Hits: []domain.Hit{{PassageText: "p"}}}, nopLogger())
	require.NoError(t, err)
	engine, err := NewEngine(core, engineConfig())
	require.NoError(t, err)
	return engine
}

func TestNewEngine_Validation(t *testing.T) {
	_, err := NewCore(nil, retrieval.Static{}, nil)
	assert.ErrorIs(t, err, ErrNilDependency)

	_, err = NewEngine(nil, engineConfig())
	assert.ErrorIs(t, err, ErrNilDependency)

	core, err := NewCore(&roleInvoker{}, retrieval.Static{}, nil)
	require.NoError(t, err)

	cfg := engineConfig()
	cfg.MaxRound = 0
	_, err = NewEngine(core, cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	cfg = engineConfig()
	cfg.Strict = domain.ModelRole{}
	_, err = NewEngine(core, cfg)
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
