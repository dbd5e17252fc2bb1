// Package diagnosis scores a learner's diagnostic choice.
package diagnosis

import (
	"github.com/terra-clan/clinical-sim/internal/models"
	"github.com/terra-clan/clinical-sim/internal/patient"
	"github.com/terra-clan/clinical-sim/internal/simerr"
)

// Result is the outcome of a diagnostic attempt
type Result struct {
	Correct          bool   `json:"correct"`
	SelectedOptionID string `json:"selected_option_id"`
}

// Evaluate resolves the challenge exactly once. Correctness is strict equality
// with the correct condition; there is no partial credit.
func Evaluate(ch *models.DiagnosticChallenge, selectedOptionID string) (Result, error) {
	if ch.Resolved {
		return Result{}, simerr.New(simerr.KindChallengeAlreadyResolved, "challenge already answered with %q", ch.SelectedOptionID)
	}

	correct := selectedOptionID == ch.CorrectConditionID

	ch.Resolved = true
	ch.SelectedOptionID = selectedOptionID
	ch.Correct = correct

	return Result{Correct: correct, SelectedOptionID: selectedOptionID}, nil
}

// Candidate is an option shown with the current readings it relates to
type Candidate struct {
	ID       string           `json:"id"`
	Label    string           `json:"label"`
	Readings []models.Reading `json:"readings,omitempty"`
}

// Board is the challenge as presented to the learner
type Board struct {
	Prompt           string      `json:"prompt"`
	Candidates       []Candidate `json:"candidates"`
	Resolved         bool        `json:"resolved"`
	SelectedOptionID string      `json:"selected_option_id,omitempty"`
	Correct          *bool       `json:"correct,omitempty"`
}

// Present builds the board, reading current values from state without mutating it
func Present(ch *models.DiagnosticChallenge, state *patient.State) Board {
	var byID map[models.ParameterID]models.Reading
	if state != nil {
		readings := state.Readings()
		byID = make(map[models.ParameterID]models.Reading, len(readings))
		for _, r := range readings {
			byID[r.ParameterID] = r
		}
	}

	b := Board{
		Prompt:     ch.Prompt,
		Candidates: make([]Candidate, 0, len(ch.CandidateOptions)),
		Resolved:   ch.Resolved,
	}
	for _, o := range ch.CandidateOptions {
		c := Candidate{ID: o.ID, Label: o.Label}
		for _, id := range o.RelatedParameters {
			if r, ok := byID[id]; ok {
				c.Readings = append(c.Readings, r)
			}
		}
		b.Candidates = append(b.Candidates, c)
	}
	if ch.Resolved {
		correct := ch.Correct
		b.SelectedOptionID = ch.SelectedOptionID
		b.Correct = &correct
	}
	return b
}
