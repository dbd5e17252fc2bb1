// Package treatment turns a learner's treatment choice into parameter effects.
package treatment

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/terra-clan/clinical-sim/internal/models"
	"github.com/terra-clan/clinical-sim/internal/patient"
	"github.com/terra-clan/clinical-sim/internal/simerr"
)

// DefaultPartialEfficacy is used for inadequate treatments without an authored value
const DefaultPartialEfficacy = 0.5

// AdequacyRequest is what an advisor sees about a treatment decision
type AdequacyRequest struct {
	CaseID        string           `json:"case_id"`
	ConditionID   string           `json:"condition_id"`
	TreatmentID   string           `json:"treatment_id"`
	TreatmentName string           `json:"treatment_name"`
	Readings      []models.Reading `json:"readings"`
}

// Verdict is an advisor's efficacy multiplier and its explanation
type Verdict struct {
	Multiplier float64 `json:"multiplier"`
	Rationale  string  `json:"rationale"`
}

// Advisor evaluates how appropriate a treatment is for the case condition
type Advisor interface {
	Evaluate(ctx context.Context, req AdequacyRequest) (Verdict, error)
}

// CaseContext carries the session facts the resolver needs.
// Readings is what the advisor is shown; Apply fills it from state when empty.
type CaseContext struct {
	Case     *models.Case
	Status   models.SessionStatus
	Tick     int
	Readings []models.Reading
}

// Resolution is a treatment resolved against the current case and state
type Resolution struct {
	Treatment  models.Treatment
	Effects    []models.TreatmentEffect
	Multiplier float64
	Rationale  string
}

// Resolver resolves and applies treatments. The advisor is optional.
type Resolver struct {
	advisor         Advisor
	partialEfficacy float64
}

// NewResolver creates a resolver. A nil advisor means adequacy comes from case data only.
func NewResolver(advisor Advisor, partialEfficacy float64) *Resolver {
	if partialEfficacy < 0 || partialEfficacy > 1 {
		partialEfficacy = DefaultPartialEfficacy
	}
	return &Resolver{
		advisor:         advisor,
		partialEfficacy: partialEfficacy,
	}
}

// Resolve validates the request and returns the scaled effects. It touches no
// patient state, so callers may run it without holding the session lock.
func (r *Resolver) Resolve(ctx context.Context, treatmentID string, cc CaseContext) (*Resolution, error) {
	t, ok := cc.Case.Treatment(treatmentID)
	if !ok {
		return nil, simerr.New(simerr.KindUnknownTreatment, "treatment %q is not registered for case %s", treatmentID, cc.Case.ID)
	}
	if cc.Status != models.StatusRunning {
		return nil, simerr.New(simerr.KindTreatmentNotApplicableNow, "session is %s", cc.Status)
	}

	registry := cc.Case.Registry()
	for _, e := range t.Effects {
		if _, ok := registry[e.ParameterID]; !ok {
			return nil, simerr.New(simerr.KindUnknownParameter, "treatment %q targets parameter %d", t.ID, e.ParameterID)
		}
	}

	multiplier, rationale := r.adequacy(ctx, t, cc)

	effects := make([]models.TreatmentEffect, 0, len(t.Effects))
	for _, e := range t.Effects {
		effects = append(effects, e.Scaled(multiplier))
	}

	return &Resolution{
		Treatment:  t,
		Effects:    effects,
		Multiplier: multiplier,
		Rationale:  rationale,
	}, nil
}

// Apply resolves a treatment and commits it to state in one step
func (r *Resolver) Apply(ctx context.Context, treatmentID string, state *patient.State, cc CaseContext) (*models.TreatmentFeedback, error) {
	if cc.Readings == nil {
		cc.Readings = state.Readings()
	}
	res, err := r.Resolve(ctx, treatmentID, cc)
	if err != nil {
		return nil, err
	}
	return r.Commit(res, state, cc.Tick)
}

// Commit applies a resolved treatment to state, reporting before/after values.
// Immediate deltas and instantaneous HP changes land now; durational effects are
// installed on the state and reported with their first-tick value.
func (r *Resolver) Commit(res *Resolution, state *patient.State, tick int) (*models.TreatmentFeedback, error) {
	fb := &models.TreatmentFeedback{
		TreatmentID: res.Treatment.ID,
		Name:        res.Treatment.Name,
		Tick:        tick,
		Multiplier:  res.Multiplier,
		Rationale:   res.Rationale,
		HPBefore:    state.HP(),
		Changes:     make([]models.ParameterChange, 0, len(res.Effects)),
	}

	for _, e := range res.Effects {
		p, _ := state.Parameter(e.ParameterID)
		before, _ := state.Value(e.ParameterID)

		if e.ImmediateDelta != 0 {
			if err := state.ApplyDelta(e.ParameterID, e.ImmediateDelta); err != nil {
				return nil, err
			}
		}
		after, _ := state.Value(e.ParameterID)

		change := models.ParameterChange{
			ParameterID: e.ParameterID,
			Name:        p.Name,
			Before:      before,
			After:       after,
		}

		if e.DurationTicks > 0 {
			state.SetEffect(res.Treatment.ID, e)
			change.After = after + e.DeltaPerTick
			change.Gradual = true
			change.Note = fmt.Sprintf("further change is gradual over %d ticks", e.DurationTicks)
		} else if e.HPDelta != 0 {
			state.ApplyHPDelta(e.HPDelta)
		}

		fb.Changes = append(fb.Changes, change)
	}

	fb.HPAfter = state.HP()
	return fb, nil
}

// adequacy picks the efficacy multiplier. Authored labels win; unlabeled treatments
// ask the advisor; a missing or failing advisor yields full efficacy.
func (r *Resolver) adequacy(ctx context.Context, t models.Treatment, cc CaseContext) (float64, string) {
	switch t.Adequacy {
	case models.AdequacyAdequate:
		return 1.0, ""
	case models.AdequacyInadequate:
		if t.PartialEfficacy != nil {
			return *t.PartialEfficacy, "treatment is not appropriate for this condition"
		}
		return r.partialEfficacy, "treatment is not appropriate for this condition"
	}

	if r.advisor == nil {
		return 1.0, ""
	}

	verdict, err := r.advisor.Evaluate(ctx, AdequacyRequest{
		CaseID:        cc.Case.ID,
		ConditionID:   cc.Case.ConditionID,
		TreatmentID:   t.ID,
		TreatmentName: t.Name,
		Readings:      cc.Readings,
	})
	if err != nil {
		slog.Warn("adequacy advisor failed, using full efficacy",
			"case_id", cc.Case.ID,
			"treatment_id", t.ID,
			"error", err,
		)
		return 1.0, ""
	}

	m := verdict.Multiplier
	if m < 0 {
		m = 0
	}
	if m > 1 {
		m = 1
	}
	return m, verdict.Rationale
}
