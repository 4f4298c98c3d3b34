// Package domain provides the core types of the evidence-refinement pipeline.
// It defines dataset entries, the per-round audit trail, the persisted result
// record, and the refinement configuration shared by the local engine and the
// Temporal workflow. Types are plain data so they serialize cleanly across
// activity boundaries.
package domain

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Entry is one question-answering unit of work from the dataset.
// It is created from a single dataset record and mutated only by the state
// machine run that owns it; entries are never shared across concurrent runs.
type Entry struct {
	ID                 string         `json:"id"`
	Question           string         `json:"question"`
	CumulativeEvidence string         `json:"cumulative_evidence"`
	Rounds             []Round        `json:"rounds"`
	FinalProcess       string         `json:"final_process"`
	FinalAnswer        string         `json:"final_answer"`
	Raw                map[string]any `json:"raw,omitempty"` // Original dataset fields.
}

// Round records one retrieve/distill/score cycle.
// LooseScore is nil when the strict judge accepted the evidence and the
// loose judge was never consulted.
type Round struct {
	Number          int      `json:"round_number"`
	StrictScore     int      `json:"strict_score"`
	MissingEvidence string   `json:"missing_evidence"`
	LooseScore      *float64 `json:"loose_score,omitempty"`
	Evidence        string   `json:"evidence_excerpt"`
}

// Accepted reports whether this round satisfied either judge.
func (r Round) Accepted(threshold float64) bool {
	if r.StrictScore == 1 {
		return true
	}
	return r.LooseScore != nil && *r.LooseScore >= threshold
}

// AppendEvidence adds a distilled excerpt to the cumulative evidence.
// Excerpts are newline-joined and never replace earlier rounds.
func (e *Entry) AppendEvidence(excerpt string) {
	e.CumulativeEvidence += "\n" + excerpt
}

// LastRound returns the most recently recorded round, if any.
func (e *Entry) LastRound() (Round, bool) {
	if len(e.Rounds) == 0 {
		return Round{}, false
	}
	return e.Rounds[len(e.Rounds)-1], true
}

// Hit is a single passage returned by the retrieval backend.
type Hit struct {
	PassageText string `json:"paragraph_text"`
}

// datasetFields captures the fields the pipeline reads from a dataset record.
type datasetFields struct {
	ID       string `mapstructure:"_id"`
	AltID    string `mapstructure:"id"`
	Question string `mapstructure:"question"`
}

// DecodeEntry builds an Entry from a raw dataset record.
// The identifier is read from "_id", falling back to "id"; numeric identifiers
// are accepted and rendered as strings. All original fields are preserved in
// Raw so the persisted record carries them through unchanged.
func DecodeEntry(raw map[string]any) (*Entry, error) {
	fields, err := decodeFields(raw)
	if err != nil {
		return nil, err
	}
	id, err := fields.identifier()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(fields.Question) == "" {
		return nil, fmt.Errorf("%w: entry %s has no question", ErrInvalidEntry, id)
	}

	return &Entry{
		ID:       id,
		Question: fields.Question,
		Raw:      cloneFields(raw),
	}, nil
}

// IdentifierOf reads only the identifier of a dataset or result record.
func IdentifierOf(raw map[string]any) (string, error) {
	fields, err := decodeFields(raw)
	if err != nil {
		return "", err
	}
	return fields.identifier()
}

func decodeFields(raw map[string]any) (datasetFields, error) {
	var fields datasetFields
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &fields,
	})
	if err != nil {
		return fields, fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return fields, fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	return fields, nil
}

func (f datasetFields) identifier() (string, error) {
	id := f.ID
	if id == "" {
		id = f.AltID
	}
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: missing identifier", ErrInvalidEntry)
	}
	return id, nil
}
