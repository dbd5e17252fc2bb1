package models

import (
	"github.com/terra-clan/clinical-sim/internal/simerr"
)

// DiagnosisOption is one labeled candidate diagnosis
type DiagnosisOption struct {
	ID                string        `yaml:"id" json:"id"`
	Label             string        `yaml:"label" json:"label"`
	RelatedParameters []ParameterID `yaml:"related_parameters" json:"related_parameters,omitempty"`
}

// DiagnosticChallengeDef is the authored form of a challenge inside a case
type DiagnosticChallengeDef struct {
	Prompt             string            `yaml:"prompt" json:"prompt"`
	CorrectConditionID string            `yaml:"correct_condition_id" json:"correct_condition_id"`
	Options            []DiagnosisOption `yaml:"options" json:"options"`
}

// Validate checks that exactly one option is the correct condition
func (d *DiagnosticChallengeDef) Validate() error {
	correct := 0
	seen := make(map[string]bool, len(d.Options))
	for _, o := range d.Options {
		if seen[o.ID] {
			return simerr.New(simerr.KindInvalidCaseData, "duplicate diagnosis option %q", o.ID)
		}
		seen[o.ID] = true
		if o.ID == d.CorrectConditionID {
			correct++
		}
	}
	if correct != 1 {
		return simerr.New(simerr.KindInvalidCaseData, "challenge must have exactly one correct option, got %d", correct)
	}
	return nil
}

// NewChallenge creates an unresolved challenge for a session
func (d *DiagnosticChallengeDef) NewChallenge() *DiagnosticChallenge {
	opts := make([]DiagnosisOption, len(d.Options))
	copy(opts, d.Options)
	return &DiagnosticChallenge{
		Prompt:             d.Prompt,
		CorrectConditionID: d.CorrectConditionID,
		CandidateOptions:   opts,
	}
}

// DiagnosticChallenge is the per-session, resolvable instance of a challenge
type DiagnosticChallenge struct {
	Prompt             string            `json:"prompt"`
	CorrectConditionID string            `json:"-"`
	CandidateOptions   []DiagnosisOption `json:"options"`
	Resolved           bool              `json:"resolved"`
	SelectedOptionID   string            `json:"selected_option_id,omitempty"`
	Correct            bool              `json:"correct"`
}
