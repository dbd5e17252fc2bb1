// Package clock advances patient state one fixed tick at a time.
package clock

import (
	"math"
	"time"

	"github.com/terra-clan/clinical-sim/internal/models"
	"github.com/terra-clan/clinical-sim/internal/patient"
)

// DefaultInterval is the tick period used when none is configured
const DefaultInterval = time.Second

// TickReport summarizes one tick
type TickReport struct {
	Tick     int     `json:"tick"`
	HP       float64 `json:"hp"`
	Depleted bool    `json:"depleted"`
	Recorded bool    `json:"recorded"`
}

// Clock applies drift, active effects and HP pressure to a patient state
type Clock struct {
	state           *patient.State
	drift           []models.DriftRule
	hpDecay         float64
	criticalPenalty float64
	now             func() time.Time
}

// New creates a clock for state using the case's progression rules
func New(state *patient.State, c *models.Case) *Clock {
	drift := make([]models.DriftRule, len(c.Drift))
	copy(drift, c.Drift)
	return &Clock{
		state:           state,
		drift:           drift,
		hpDecay:         c.HPDecayPerTick,
		criticalPenalty: c.CriticalHPPenalty,
		now:             time.Now,
	}
}

// SetNow overrides the timestamp source
func (c *Clock) SetNow(fn func() time.Time) {
	c.now = fn
}

// Step advances the state by one tick:
//  1. baseline drift toward each rule's target, unless an active effect suppresses it
//  2. active effect deltas and their per-tick share of HP change
//  3. HP decay and penalties for critical parameters
//  4. history snapshot
//
// Drift and effect deltas on the same parameter are summed.
func (c *Clock) Step(tick int) TickReport {
	for _, d := range c.drift {
		if c.state.DriftSuppressed(d.ParameterID) {
			continue
		}
		v, err := c.state.Value(d.ParameterID)
		if err != nil {
			continue
		}
		_ = c.state.ApplyDelta(d.ParameterID, driftStep(v, d.Target, d.Rate))
	}

	c.state.EachEffect(func(e *patient.ActiveEffect) {
		_ = c.state.ApplyDelta(e.Effect.ParameterID, e.Effect.DeltaPerTick)
		if e.Effect.HPDelta != 0 && e.Effect.DurationTicks > 0 {
			c.state.ApplyHPDelta(e.Effect.HPDelta / float64(e.Effect.DurationTicks))
		}
		e.Remaining--
	})
	c.state.PruneEffects()

	if pressure := c.hpPressure(); pressure != 0 {
		c.state.ApplyHPDelta(-pressure)
	}

	recorded := c.state.Record(tick, c.now())

	return TickReport{
		Tick:     tick,
		HP:       c.state.HP(),
		Depleted: c.state.Depleted(),
		Recorded: recorded,
	}
}

func (c *Clock) hpPressure() float64 {
	pressure := c.hpDecay
	if c.criticalPenalty == 0 {
		return pressure
	}
	for _, r := range c.state.Readings() {
		if r.Classification == models.ClassCritical {
			pressure += c.criticalPenalty
		}
	}
	return pressure
}

// driftStep moves v toward target by at most rate
func driftStep(v, target, rate float64) float64 {
	diff := target - v
	if math.Abs(diff) <= rate {
		return diff
	}
	if diff > 0 {
		return rate
	}
	return -rate
}
