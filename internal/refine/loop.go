// Package refine implements the per-entry evidence refinement loop.
//
// Each round retrieves passages, distills them into an evidence excerpt,
// and asks two judges whether the accumulated evidence answers the question.
// The strict judge returns a binary score plus the evidence still missing;
// the loose judge returns a graded score compared against a threshold. When
// either accepts, or the round budget runs out, a final answer is written
// from the cumulative evidence.
//
// The control flow lives in Loop and is independent of how steps are
// executed, so it runs both in-process (Engine) and inside a Temporal workflow.
package refine

import (
	"github.com/ring2236/ESA-DGR/internal/domain"
)

// Steps performs the side effects of one refinement round. Implementations
// bind their own context; Loop only sequences the calls.
//
// Malformed judge replies are soft failures handled inside the step and
// reported as a zero score. An error return means the call itself failed.
type Steps interface {
	// Retrieve returns the newline-joined passages for query.
	Retrieve(query string) (string, error)
	// Distill compresses a reference block into an evidence excerpt.
	Distill(question, reference string) (string, error)
	StrictScore(question, evidence string) (StrictVerdict, error)
	LooseScore(question, evidence string) (float64, error)
	// Finalize writes the answer. An error covers both invocation and parse failures.
	Finalize(question, evidence string) (Answer, error)
}

// Logger is the logging surface Loop needs. It is satisfied by *slog.Logger
// and by the Temporal workflow logger.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// Outcome describes why the loop stopped.
type Outcome string

// Loop outcomes.
const (
	OutcomeStrictAccepted Outcome = "strict_accepted"
	OutcomeLooseAccepted  Outcome = "loose_accepted"
	OutcomeExhausted      Outcome = "exhausted"
	OutcomeAborted        Outcome = "aborted"
)

// Loop runs the refinement rounds for entry and then finalizes it.
// Rounds are appended to entry.Rounds; a failed step aborts the remaining
// rounds without recording the partial one. Finalize always runs.
func Loop(steps Steps, cfg domain.RefinementConfig, entry *domain.Entry, logger Logger) Outcome {
	outcome := runRounds(steps, cfg, entry, logger)
	finalize(steps, entry, logger)
	return outcome
}

func runRounds(steps Steps, cfg domain.RefinementConfig, entry *domain.Entry, logger Logger) Outcome {
	for n := 1; n <= cfg.MaxRound; n++ {
		query := nextQuery(entry, n)

		reference, err := steps.Retrieve(query)
		if err != nil {
			logger.Warn("retrieval failed, finalizing with partial evidence",
				"entry_id", entry.ID, "round", n, "error", err)
			return OutcomeAborted
		}

		excerpt, err := steps.Distill(entry.Question, reference)
		if err != nil {
			logger.Warn("evidence distillation failed, finalizing with partial evidence",
				"entry_id", entry.ID, "round", n, "error", err)
			return OutcomeAborted
		}
		entry.AppendEvidence(excerpt)

		verdict, err := steps.StrictScore(entry.Question, entry.CumulativeEvidence)
		if err != nil {
			logger.Warn("strict judge failed, finalizing with partial evidence",
				"entry_id", entry.ID, "round", n, "error", err)
			return OutcomeAborted
		}

		round := domain.Round{
			Number:          n,
			StrictScore:     verdict.Score,
			MissingEvidence: verdict.MissingEvidence,
			Evidence:        excerpt,
		}
		if verdict.Score == 1 {
			entry.Rounds = append(entry.Rounds, round)
			logger.Info("strict judge accepted evidence, skipping loose judge",
				"entry_id", entry.ID, "round", n)
			return OutcomeStrictAccepted
		}

		loose, err := steps.LooseScore(entry.Question, entry.CumulativeEvidence)
		if err != nil {
			logger.Warn("loose judge failed, finalizing with partial evidence",
				"entry_id", entry.ID, "round", n, "error", err)
			return OutcomeAborted
		}
		round.LooseScore = &loose
		entry.Rounds = append(entry.Rounds, round)

		if round.Accepted(cfg.Threshold()) {
			logger.Debug("loose judge accepted evidence",
				"entry_id", entry.ID, "round", n, "loose_score", loose)
			return OutcomeLooseAccepted
		}
	}
	return OutcomeExhausted
}

// nextQuery is the question on round one and the previous round's missing
// evidence afterwards. An empty missing-evidence string falls back to the question.
func nextQuery(entry *domain.Entry, n int) string {
	if n > 1 {
		if prev, ok := entry.LastRound(); ok && prev.MissingEvidence != "" {
			return prev.MissingEvidence
		}
	}
	return entry.Question
}

func finalize(steps Steps, entry *domain.Entry, logger Logger) {
	answer, err := steps.Finalize(entry.Question, entry.CumulativeEvidence)
	if err != nil {
		logger.Warn("final answer failed",
			"entry_id", entry.ID, "error", err)
		entry.FinalProcess = domain.AnswerErrorProcess
		entry.FinalAnswer = ""
		return
	}
	entry.FinalProcess = answer.Process
	entry.FinalAnswer = answer.Final
}
