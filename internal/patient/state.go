// Package patient holds the mutable physiological state of one simulated patient.
package patient

import (
	"sort"
	"time"

	"github.com/terra-clan/clinical-sim/internal/models"
	"github.com/terra-clan/clinical-sim/internal/simerr"
)

const (
	MinHP = 0.0
	MaxHP = 100.0
)

// ActiveEffect is an in-progress treatment effect with remaining duration
type ActiveEffect struct {
	TreatmentID string
	Effect      models.TreatmentEffect
	Remaining   int
}

// State is owned by exactly one session and is not safe for concurrent use.
type State struct {
	registry map[models.ParameterID]models.Parameter
	order    []models.ParameterID
	values   models.Values
	hp       float64

	history []models.HistoryEntry
	frozen  bool

	effects []*ActiveEffect

	depleted   bool
	onDepleted func()
}

// Initialize builds a patient state for the given parameter registry.
// Parameters without an initial value start at the midpoint of their normal range.
func Initialize(params []models.Parameter, initial models.Values, initialHP float64) (*State, error) {
	s := &State{
		registry: make(map[models.ParameterID]models.Parameter, len(params)),
		values:   make(models.Values, len(params)),
	}

	for _, p := range params {
		if !p.CriticalRange.StrictlyContains(p.NormalRange) {
			return nil, simerr.New(simerr.KindInvalidCaseData, "parameter %q: critical range must strictly contain normal range", p.Name)
		}
		s.registry[p.ID] = p
		s.order = append(s.order, p.ID)
	}
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })

	for id := range initial {
		if _, ok := s.registry[id]; !ok {
			return nil, simerr.New(simerr.KindInvalidCaseData, "initial value for unknown parameter %d", id)
		}
	}

	for _, id := range s.order {
		if v, ok := initial[id]; ok {
			s.values[id] = v
		} else {
			s.values[id] = s.registry[id].NormalRange.Midpoint()
		}
	}

	s.hp = clampHP(initialHP)
	s.depleted = s.hp <= MinHP

	return s, nil
}

// OnDepleted registers a callback fired once when HP first reaches zero.
func (s *State) OnDepleted(fn func()) {
	s.onDepleted = fn
}

// ApplyDelta adds delta to a parameter. Unknown parameters are rejected without mutation.
func (s *State) ApplyDelta(id models.ParameterID, delta float64) error {
	if _, ok := s.registry[id]; !ok {
		return simerr.New(simerr.KindUnknownParameter, "parameter %d", id)
	}
	s.values[id] += delta
	return nil
}

// ApplyHPDelta adds delta to HP, clamps to [0,100] and returns the new value.
func (s *State) ApplyHPDelta(delta float64) float64 {
	s.hp = clampHP(s.hp + delta)
	if s.hp <= MinHP && !s.depleted {
		s.depleted = true
		if s.onDepleted != nil {
			s.onDepleted()
		}
	}
	return s.hp
}

// HP returns current health points
func (s *State) HP() float64 {
	return s.hp
}

// Depleted reports whether HP has reached zero
func (s *State) Depleted() bool {
	return s.depleted
}

// Value returns the current reading of a parameter
func (s *State) Value(id models.ParameterID) (float64, error) {
	v, ok := s.values[id]
	if !ok {
		return 0, simerr.New(simerr.KindUnknownParameter, "parameter %d", id)
	}
	return v, nil
}

// Parameter returns the registry entry for id
func (s *State) Parameter(id models.ParameterID) (models.Parameter, bool) {
	p, ok := s.registry[id]
	return p, ok
}

// ParameterIDs returns registry ids in ascending order
func (s *State) ParameterIDs() []models.ParameterID {
	out := make([]models.ParameterID, len(s.order))
	copy(out, s.order)
	return out
}

// Snapshot returns an independent copy of current values
func (s *State) Snapshot() models.Values {
	return s.values.Clone()
}

// Classify compares the current value of id against its registry ranges
func (s *State) Classify(id models.ParameterID) (models.Classification, error) {
	p, ok := s.registry[id]
	if !ok {
		return "", simerr.New(simerr.KindUnknownParameter, "parameter %d", id)
	}
	return p.Classify(s.values[id]), nil
}

// Readings returns every parameter with its value and classification
func (s *State) Readings() []models.Reading {
	out := make([]models.Reading, 0, len(s.order))
	for _, id := range s.order {
		p := s.registry[id]
		v := s.values[id]
		out = append(out, models.Reading{
			ParameterID:    id,
			Name:           p.Name,
			Unit:           p.Unit,
			Value:          v,
			Classification: p.Classify(v),
		})
	}
	return out
}

// --- History ---

// Record appends a snapshot to history. It is a no-op once history is frozen.
func (s *State) Record(tick int, at time.Time) bool {
	if s.frozen {
		return false
	}
	s.history = append(s.history, models.HistoryEntry{
		Tick:      tick,
		Timestamp: at.UnixMilli(),
		HP:        s.hp,
		Values:    s.Snapshot(),
	})
	return true
}

// Freeze makes history immutable
func (s *State) Freeze() {
	s.frozen = true
}

// Frozen reports whether history has been frozen
func (s *State) Frozen() bool {
	return s.frozen
}

// History returns a copy of the recorded snapshots in chronological order
func (s *State) History() []models.HistoryEntry {
	out := make([]models.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// HistoryLen returns the number of recorded snapshots
func (s *State) HistoryLen() int {
	return len(s.history)
}

// --- Active effects ---

// SetEffect installs an active effect. An effect from the same treatment on the
// same parameter is replaced rather than stacked.
func (s *State) SetEffect(treatmentID string, effect models.TreatmentEffect) {
	for _, e := range s.effects {
		if e.TreatmentID == treatmentID && e.Effect.ParameterID == effect.ParameterID {
			e.Effect = effect
			e.Remaining = effect.DurationTicks
			return
		}
	}
	s.effects = append(s.effects, &ActiveEffect{
		TreatmentID: treatmentID,
		Effect:      effect,
		Remaining:   effect.DurationTicks,
	})
}

// EachEffect calls fn for every active effect with remaining duration, in insertion order
func (s *State) EachEffect(fn func(e *ActiveEffect)) {
	for _, e := range s.effects {
		if e.Remaining > 0 {
			fn(e)
		}
	}
}

// PruneEffects drops effects whose duration has run out
func (s *State) PruneEffects() {
	kept := s.effects[:0]
	for _, e := range s.effects {
		if e.Remaining > 0 {
			kept = append(kept, e)
		}
	}
	for i := len(kept); i < len(s.effects); i++ {
		s.effects[i] = nil
	}
	s.effects = kept
}

// ActiveEffects returns a copy of in-progress effects
func (s *State) ActiveEffects() []ActiveEffect {
	out := make([]ActiveEffect, 0, len(s.effects))
	for _, e := range s.effects {
		out = append(out, *e)
	}
	return out
}

// DriftSuppressed reports whether an active effect suppresses drift for id
func (s *State) DriftSuppressed(id models.ParameterID) bool {
	for _, e := range s.effects {
		if e.Remaining > 0 && e.Effect.ParameterID == id && e.Effect.SuppressesDrift {
			return true
		}
	}
	return false
}

func clampHP(v float64) float64 {
	if v < MinHP {
		return MinHP
	}
	if v > MaxHP {
		return MaxHP
	}
	return v
}
