package refine

import (
	"fmt"

	"github.com/ring2236/ESA-DGR/internal/domain"
	"github.com/ring2236/ESA-DGR/pkg/events"
)

// Event types emitted for each refined entry.
const (
	EventRoundRecorded  = "refinement.round_recorded"
	EventEntryFinalized = "refinement.entry_finalized"
)

// Event sources.
const (
	SourceEngine   = "refine-engine"
	SourceActivity = "refine-activity"
)

// RoundRecordedPayload is the payload of EventRoundRecorded.
type RoundRecordedPayload struct {
	EntryID string       `json:"entry_id"`
	Round   domain.Round `json:"round"`
}

// EntryFinalizedPayload is the payload of EventEntryFinalized.
type EntryFinalizedPayload struct {
	EntryID     string  `json:"entry_id"`
	Outcome     Outcome `json:"outcome"`
	Rounds      int     `json:"rounds"`
	AnswerFinal string  `json:"answer_final"`
	Failed      bool    `json:"answer_failed"`
}

// EntryEvents builds one round event per recorded round and a final event.
// Idempotency keys are "<entry>:round_<n>" and "<entry>:final".
func EntryEvents(entry *domain.Entry, outcome Outcome, source string) ([]events.Envelope, error) {
	out := make([]events.Envelope, 0, len(entry.Rounds)+1)
	for _, r := range entry.Rounds {
		env, err := events.New(EventRoundRecorded, source,
			fmt.Sprintf("%s:%s", entry.ID, domain.RoundLabel(r.Number)),
			RoundRecordedPayload{EntryID: entry.ID, Round: r})
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}

	env, err := events.New(EventEntryFinalized, source, entry.ID+":final", EntryFinalizedPayload{
		EntryID:     entry.ID,
		Outcome:     outcome,
		Rounds:      len(entry.Rounds),
		AnswerFinal: entry.FinalAnswer,
		Failed:      entry.FinalProcess == domain.AnswerErrorProcess,
	})
	if err != nil {
		return nil, err
	}
	return append(out, env), nil
}
