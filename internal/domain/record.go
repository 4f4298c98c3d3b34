package domain

import (
	"encoding/json"
	"fmt"
	"maps"
	"strings"
	"time"
)

// Output record keys added to the original dataset fields.
const (
	KeyRetrievedPassages = "retrieved_passages"
	KeyRoundLogs         = "round_logs"
	KeyAnswerProcess     = "Answer_process"
	KeyAnswerFinal       = "Answer_final"
)

// AnswerErrorProcess is written as the answer process when the final answer
// could not be generated or parsed.
const AnswerErrorProcess = "Error generating answer"

// RoundLog is the persisted form of a Round inside a record's round_logs map.
type RoundLog struct {
	StrictScore      int      `json:"strict_score"`
	MissingEvidence  string   `json:"missing_evidence"`
	LooseScore       *float64 `json:"loose_score,omitempty"`
	CurrentReference string   `json:"current_reference"`
}

// Record is a completed entry as written to the result sink.
// It serializes as a flat JSON object: the original dataset fields plus the
// evidence, the round audit trail, and the final answer.
type Record struct {
	ID                string
	Fields            map[string]any
	RetrievedPassages string
	RoundLogs         map[string]RoundLog
	AnswerProcess     string
	AnswerFinal       string
}

// RoundLabel returns the round_logs key for a round number.
func RoundLabel(n int) string {
	return fmt.Sprintf("round_%d", n)
}

// Record converts a finished entry into its persisted form.
func (e *Entry) Record() *Record {
	logs := make(map[string]RoundLog, len(e.Rounds))
	for _, r := range e.Rounds {
		logs[RoundLabel(r.Number)] = RoundLog{
			StrictScore:      r.StrictScore,
			MissingEvidence:  r.MissingEvidence,
			LooseScore:       r.LooseScore,
			CurrentReference: r.Evidence,
		}
	}

	fields := cloneFields(e.Raw)
	if _, ok := fields["_id"]; !ok {
		if _, ok := fields["id"]; !ok {
			fields["_id"] = e.ID
		}
	}
	if _, ok := fields["question"]; !ok {
		fields["question"] = e.Question
	}

	return &Record{
		ID:                e.ID,
		Fields:            fields,
		RetrievedPassages: strings.TrimSpace(e.CumulativeEvidence),
		RoundLogs:         logs,
		AnswerProcess:     e.FinalProcess,
		AnswerFinal:       e.FinalAnswer,
	}
}

// MarshalJSON flattens the record into a single object.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := cloneFields(r.Fields)
	out[KeyRetrievedPassages] = r.RetrievedPassages
	logs := r.RoundLogs
	if logs == nil {
		logs = map[string]RoundLog{}
	}
	out[KeyRoundLogs] = logs
	out[KeyAnswerProcess] = r.AnswerProcess
	out[KeyAnswerFinal] = r.AnswerFinal
	return json.Marshal(out)
}

// UnmarshalJSON splits a flat object back into original fields and pipeline output.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = Record{Fields: make(map[string]any, len(raw))}
	for k, v := range raw {
		var err error
		switch k {
		case KeyRetrievedPassages:
			err = json.Unmarshal(v, &r.RetrievedPassages)
		case KeyRoundLogs:
			err = json.Unmarshal(v, &r.RoundLogs)
		case KeyAnswerProcess:
			err = json.Unmarshal(v, &r.AnswerProcess)
		case KeyAnswerFinal:
			err = json.Unmarshal(v, &r.AnswerFinal)
		default:
			var val any
			err = json.Unmarshal(v, &val)
			r.Fields[k] = val
		}
		if err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
	}

	entry, err := DecodeEntry(r.Fields)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	r.ID = entry.ID
	return nil
}

// FailureRecord marks an entry whose task failed above the per-entry guard.
// It lets a restart distinguish "attempted and failed" from "never attempted".
type FailureRecord struct {
	ID       string    `json:"id"`
	EntryID  string    `json:"entry_id"`
	Error    string    `json:"error"`
	Panic    bool      `json:"panic,omitempty"`
	FailedAt time.Time `json:"failed_at"`
}

// cloneFields copies m so records never alias dataset maps. A nil m yields
// an empty, writable map.
func cloneFields(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	maps.Copy(out, m)
	return out
}
