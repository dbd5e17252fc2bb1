package models

import (
	"github.com/terra-clan/clinical-sim/internal/simerr"
)

// Adequacy is a case-authored appropriateness label for a treatment
type Adequacy string

const (
	AdequacyUnspecified Adequacy = ""
	AdequacyAdequate    Adequacy = "adequate"
	AdequacyInadequate  Adequacy = "inadequate"
)

// TreatmentEffect describes how a treatment perturbs one parameter.
// DurationTicks of 0 means the effect is instantaneous.
type TreatmentEffect struct {
	ParameterID     ParameterID `yaml:"parameter_id" json:"parameter_id"`
	DeltaPerTick    float64     `yaml:"delta_per_tick" json:"delta_per_tick,omitempty"`
	ImmediateDelta  float64     `yaml:"immediate_delta" json:"immediate_delta,omitempty"`
	DurationTicks   int         `yaml:"duration_ticks" json:"duration_ticks"`
	HPDelta         float64     `yaml:"hp_delta" json:"hp_delta,omitempty"`
	SuppressesDrift bool        `yaml:"suppresses_drift" json:"suppresses_drift,omitempty"`
}

// Scaled returns a copy with beneficial magnitudes multiplied by m.
// Harmful HP deltas are never softened.
func (e TreatmentEffect) Scaled(m float64) TreatmentEffect {
	out := e
	out.DeltaPerTick *= m
	out.ImmediateDelta *= m
	if out.HPDelta > 0 {
		out.HPDelta *= m
	}
	return out
}

// Treatment is a catalog entry a learner can apply
type Treatment struct {
	ID              string            `yaml:"id" json:"id"`
	Name            string            `yaml:"name" json:"name"`
	Description     string            `yaml:"description" json:"description,omitempty"`
	Effects         []TreatmentEffect `yaml:"effects" json:"effects"`
	Adequacy        Adequacy          `yaml:"adequacy" json:"adequacy,omitempty"`
	PartialEfficacy *float64          `yaml:"partial_efficacy" json:"partial_efficacy,omitempty"`
}

// DriftRule models untreated disease progression for a parameter
type DriftRule struct {
	ParameterID ParameterID `yaml:"parameter_id" json:"parameter_id"`
	Target      float64     `yaml:"target" json:"target"`
	Rate        float64     `yaml:"rate" json:"rate"` // absolute change per tick
}

// GoalKind selects the predicate a goal evaluates
type GoalKind string

const (
	GoalParameterNormal  GoalKind = "parameter_normal"
	GoalParameterRange   GoalKind = "parameter_range"
	GoalDiagnosisCorrect GoalKind = "diagnosis_correct"
	GoalTreatmentGiven   GoalKind = "treatment_given"
)

// Goal is a predicate over session state the learner must satisfy to win
type Goal struct {
	ID          string      `yaml:"id" json:"id"`
	Description string      `yaml:"description" json:"description"`
	Kind        GoalKind    `yaml:"kind" json:"kind"`
	ParameterID ParameterID `yaml:"parameter_id" json:"parameter_id,omitempty"`
	Range       *Range      `yaml:"range" json:"range,omitempty"`
	TreatmentID string      `yaml:"treatment_id" json:"treatment_id,omitempty"`
}

// Case is the full content bundle the core needs to run one scenario
type Case struct {
	ID                  string                  `yaml:"id" json:"id"`
	Title               string                  `yaml:"title" json:"title"`
	Description         string                  `yaml:"description" json:"description"`
	ConditionID         string                  `yaml:"condition_id" json:"condition_id"`
	Tags                []string                `yaml:"tags" json:"tags,omitempty"`
	Parameters          []Parameter             `yaml:"parameters" json:"parameters"`
	InitialValues       Values                  `yaml:"initial_values" json:"initial_values"`
	InitialHP           float64                 `yaml:"initial_hp" json:"initial_hp"`
	Drift               []DriftRule             `yaml:"drift" json:"drift,omitempty"`
	HPDecayPerTick      float64                 `yaml:"hp_decay_per_tick" json:"hp_decay_per_tick,omitempty"`
	CriticalHPPenalty   float64                 `yaml:"critical_hp_penalty" json:"critical_hp_penalty,omitempty"`
	Treatments          []Treatment             `yaml:"treatments" json:"treatments"`
	Goals               []Goal                  `yaml:"goals" json:"goals"`
	Challenge           *DiagnosticChallengeDef `yaml:"challenge" json:"challenge,omitempty"`
	EvaluationTickLimit int                     `yaml:"evaluation_tick_limit" json:"evaluation_tick_limit,omitempty"`
}

// Registry returns the parameter catalog keyed by id
func (c *Case) Registry() map[ParameterID]Parameter {
	reg := make(map[ParameterID]Parameter, len(c.Parameters))
	for _, p := range c.Parameters {
		reg[p.ID] = p
	}
	return reg
}

// Treatment looks up a treatment by id
func (c *Case) Treatment(id string) (Treatment, bool) {
	for _, t := range c.Treatments {
		if t.ID == id {
			return t, true
		}
	}
	return Treatment{}, false
}

// Validate checks the internal consistency of the case content
func (c *Case) Validate() error {
	if c.ID == "" {
		return simerr.New(simerr.KindInvalidCaseData, "case id is required")
	}
	if len(c.Parameters) == 0 {
		return simerr.New(simerr.KindInvalidCaseData, "case %s has no parameters", c.ID)
	}

	names := make(map[string]bool, len(c.Parameters))
	reg := make(map[ParameterID]Parameter, len(c.Parameters))
	for _, p := range c.Parameters {
		if _, dup := reg[p.ID]; dup {
			return simerr.New(simerr.KindInvalidCaseData, "duplicate parameter id %d", p.ID)
		}
		if names[p.Name] {
			return simerr.New(simerr.KindInvalidCaseData, "duplicate parameter name %q", p.Name)
		}
		if p.NormalRange.Min > p.NormalRange.Max {
			return simerr.New(simerr.KindInvalidCaseData, "parameter %q has inverted normal range", p.Name)
		}
		if !p.CriticalRange.StrictlyContains(p.NormalRange) {
			return simerr.New(simerr.KindInvalidCaseData, "parameter %q: critical range must strictly contain normal range", p.Name)
		}
		reg[p.ID] = p
		names[p.Name] = true
	}

	known := func(id ParameterID) bool {
		_, ok := reg[id]
		return ok
	}

	for id := range c.InitialValues {
		if !known(id) {
			return simerr.New(simerr.KindInvalidCaseData, "initial value for unknown parameter %d", id)
		}
	}
	for _, d := range c.Drift {
		if !known(d.ParameterID) {
			return simerr.New(simerr.KindInvalidCaseData, "drift rule for unknown parameter %d", d.ParameterID)
		}
		if d.Rate < 0 {
			return simerr.New(simerr.KindInvalidCaseData, "drift rate for parameter %d must not be negative", d.ParameterID)
		}
	}

	treatments := make(map[string]bool, len(c.Treatments))
	for _, t := range c.Treatments {
		if t.ID == "" {
			return simerr.New(simerr.KindInvalidCaseData, "treatment id is required")
		}
		if treatments[t.ID] {
			return simerr.New(simerr.KindInvalidCaseData, "duplicate treatment id %q", t.ID)
		}
		treatments[t.ID] = true
		if t.PartialEfficacy != nil && (*t.PartialEfficacy < 0 || *t.PartialEfficacy > 1) {
			return simerr.New(simerr.KindInvalidCaseData, "treatment %q: partial efficacy must be within [0,1]", t.ID)
		}
		for _, e := range t.Effects {
			if !known(e.ParameterID) {
				return simerr.New(simerr.KindInvalidCaseData, "treatment %q targets unknown parameter %d", t.ID, e.ParameterID)
			}
			if e.DurationTicks < 0 {
				return simerr.New(simerr.KindInvalidCaseData, "treatment %q has negative duration", t.ID)
			}
		}
	}

	for _, g := range c.Goals {
		switch g.Kind {
		case GoalParameterNormal:
			if !known(g.ParameterID) {
				return simerr.New(simerr.KindInvalidCaseData, "goal %q references unknown parameter %d", g.ID, g.ParameterID)
			}
		case GoalParameterRange:
			if !known(g.ParameterID) {
				return simerr.New(simerr.KindInvalidCaseData, "goal %q references unknown parameter %d", g.ID, g.ParameterID)
			}
			if g.Range == nil {
				return simerr.New(simerr.KindInvalidCaseData, "goal %q requires a range", g.ID)
			}
		case GoalDiagnosisCorrect:
			if c.Challenge == nil {
				return simerr.New(simerr.KindInvalidCaseData, "goal %q requires a diagnostic challenge", g.ID)
			}
		case GoalTreatmentGiven:
			if !treatments[g.TreatmentID] {
				return simerr.New(simerr.KindInvalidCaseData, "goal %q references unknown treatment %q", g.ID, g.TreatmentID)
			}
		default:
			return simerr.New(simerr.KindInvalidCaseData, "goal %q has unknown kind %q", g.ID, g.Kind)
		}
	}

	if c.Challenge != nil {
		if err := c.Challenge.Validate(); err != nil {
			return err
		}
	}

	if c.EvaluationTickLimit < 0 {
		return simerr.New(simerr.KindInvalidCaseData, "evaluation tick limit must not be negative")
	}

	return nil
}
