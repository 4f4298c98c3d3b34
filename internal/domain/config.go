package domain

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Refinement defaults for the HotpotQA corpus.
const (
	DefaultCorpus         = "hotpotqa"
	DefaultRetrievalSize  = 10
	DefaultMaxConcurrency = 5
)

// ModelRole pairs a model identifier with the system role key it is invoked under.
type ModelRole struct {
	Model string `json:"model" yaml:"model" validate:"required"`
	Role  string `json:"role" yaml:"role" validate:"required"`
}

// String renders the pair for diagnostics.
func (m ModelRole) String() string {
	return m.Model + "/" + m.Role
}

// RefinementConfig controls the per-entry evidence-refinement loop.
// It is fixed for the whole run and passed unchanged to every entry.
type RefinementConfig struct {
	// Default distills evidence and writes the final answer.
	Default ModelRole `json:"default" yaml:"default" validate:"required"`

	// Strict is the judge returning a binary score plus missing evidence.
	Strict ModelRole `json:"strict" yaml:"strict" validate:"required"`

	// Loose is the judge returning a graded score compared against LooseThreshold.
	Loose ModelRole `json:"loose" yaml:"loose" validate:"required"`

	// LooseThreshold has no default; nil fails validation.
	LooseThreshold *float64 `json:"loose_threshold" yaml:"loose_threshold" validate:"required"`
	MaxRound       int      `json:"max_round" yaml:"max_round" validate:"min=1"`

	// Retrieval parameters, identical for every round.
	Corpus        string `json:"corpus" yaml:"corpus" validate:"required"`
	RetrievalSize int    `json:"retrieval_size" yaml:"retrieval_size" validate:"min=1"`
}

// DefaultRefinementConfig returns a configuration with retrieval defaults filled in.
// Model selections are left empty and must be supplied by the caller.
func DefaultRefinementConfig() RefinementConfig {
	return RefinementConfig{
		MaxRound:      1,
		Corpus:        DefaultCorpus,
		RetrievalSize: DefaultRetrievalSize,
	}
}

// SetLooseThreshold sets the loose acceptance threshold.
func (c *RefinementConfig) SetLooseThreshold(v float64) {
	c.LooseThreshold = &v
}

// Threshold returns the loose acceptance threshold, or +Inf when unset so an
// unvalidated config never accepts on the loose judge.
func (c RefinementConfig) Threshold() float64 {
	if c.LooseThreshold == nil {
		return math.Inf(1)
	}
	return *c.LooseThreshold
}

// Validate checks the configuration using struct tags.
func (c RefinementConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
