package clock

import (
	"context"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/terra-clan/clinical-sim/internal/models"
	"github.com/terra-clan/clinical-sim/internal/patient"
)

const paramPH models.ParameterID = 1

func phCase() *models.Case {
	return &models.Case{
		ID: "acidosis",
		Parameters: []models.Parameter{{
			ID:            paramPH,
			Name:          "pH",
			NormalRange:   models.Range{Min: 7.35, Max: 7.45},
			CriticalRange: models.Range{Min: 7.20, Max: 7.60},
		}},
		InitialValues: models.Values{paramPH: 7.30},
		InitialHP:     100,
	}
}

func newState(t *testing.T, c *models.Case) *patient.State {
	t.Helper()
	s, err := patient.Initialize(c.Parameters, c.InitialValues, c.InitialHP)
	if err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return s
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestStepAppliesEffectOverDuration(t *testing.T) {
	c := phCase()
	s := newState(t, c)
	clk := New(s, c)

	s.SetEffect("bicarbonate", models.TreatmentEffect{ParameterID: paramPH, DeltaPerTick: 0.02, DurationTicks: 3})

	clk.Step(1)
	v, _ := s.Value(paramPH)
	if !approx(v, 7.32) {
		t.Fatalf("expected pH 7.32 after tick 1, got %v", v)
	}
	if class, _ := s.Classify(paramPH); class != models.ClassWarning {
		t.Errorf("expected warning after tick 1, got %s", class)
	}

	clk.Step(2)
	clk.Step(3)
	v, _ = s.Value(paramPH)
	if !approx(v, 7.36) {
		t.Fatalf("expected pH 7.36 after tick 3, got %v", v)
	}
	if class, _ := s.Classify(paramPH); class != models.ClassNormal {
		t.Errorf("expected normal after tick 3, got %s", class)
	}

	clk.Step(4)
	v, _ = s.Value(paramPH)
	if !approx(v, 7.36) {
		t.Errorf("expected effect exhausted after 3 ticks, pH moved to %v", v)
	}
	if len(s.ActiveEffects()) != 0 {
		t.Error("expected no active effects after duration elapsed")
	}
}

func TestStepDriftMovesTowardTargetWithoutOvershoot(t *testing.T) {
	c := phCase()
	c.Drift = []models.DriftRule{{ParameterID: paramPH, Target: 7.25, Rate: 0.02}}
	s := newState(t, c)
	clk := New(s, c)

	clk.Step(1)
	v, _ := s.Value(paramPH)
	if !approx(v, 7.28) {
		t.Fatalf("expected 7.28 after one drift step, got %v", v)
	}

	clk.Step(2)
	clk.Step(3)
	v, _ = s.Value(paramPH)
	if !approx(v, 7.25) {
		t.Fatalf("expected drift to settle at target 7.25, got %v", v)
	}
}

func TestStepSumsDriftAndEffect(t *testing.T) {
	c := phCase()
	c.Drift = []models.DriftRule{{ParameterID: paramPH, Target: 7.0, Rate: 0.01}}
	s := newState(t, c)
	clk := New(s, c)

	s.SetEffect("bicarbonate", models.TreatmentEffect{ParameterID: paramPH, DeltaPerTick: 0.03, DurationTicks: 2})
	clk.Step(1)

	v, _ := s.Value(paramPH)
	if !approx(v, 7.32) {
		t.Fatalf("expected 7.30 - 0.01 + 0.03 = 7.32, got %v", v)
	}
}

func TestStepSuppressedDrift(t *testing.T) {
	c := phCase()
	c.Drift = []models.DriftRule{{ParameterID: paramPH, Target: 7.0, Rate: 0.01}}
	s := newState(t, c)
	clk := New(s, c)

	s.SetEffect("ventilation", models.TreatmentEffect{ParameterID: paramPH, DeltaPerTick: 0.03, DurationTicks: 1, SuppressesDrift: true})
	clk.Step(1)

	v, _ := s.Value(paramPH)
	if !approx(v, 7.33) {
		t.Fatalf("expected drift suppressed, pH 7.33, got %v", v)
	}

	clk.Step(2)
	v, _ = s.Value(paramPH)
	if !approx(v, 7.32) {
		t.Fatalf("expected drift to resume after effect ends, got %v", v)
	}
}

func TestStepSpreadsHPDeltaAcrossDuration(t *testing.T) {
	c := phCase()
	c.InitialHP = 50
	s := newState(t, c)
	clk := New(s, c)

	s.SetEffect("transfusion", models.TreatmentEffect{ParameterID: paramPH, HPDelta: 30, DurationTicks: 3})
	report := clk.Step(1)

	if !approx(report.HP, 60) {
		t.Fatalf("expected hp 60 after first tick, got %v", report.HP)
	}
}

func TestStepCriticalPenaltyDepletesHP(t *testing.T) {
	c := phCase()
	c.InitialValues = models.Values{paramPH: 7.0}
	c.InitialHP = 10
	c.CriticalHPPenalty = 6
	s := newState(t, c)
	clk := New(s, c)

	first := clk.Step(1)
	if first.Depleted {
		t.Fatal("expected patient alive after first tick")
	}
	second := clk.Step(2)
	if !second.Depleted || second.HP != 0 {
		t.Fatalf("expected depletion at tick 2, got %+v", second)
	}
}

func TestStepAppendsOneSnapshotPerTick(t *testing.T) {
	c := phCase()
	s := newState(t, c)
	clk := New(s, c)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk.SetNow(func() time.Time { return fixed })

	for i := 1; i <= 10; i++ {
		clk.Step(i)
	}

	if s.HistoryLen() != 10 {
		t.Fatalf("expected 10 snapshots, got %d", s.HistoryLen())
	}
	if h := s.History(); h[9].Tick != 10 || h[9].Timestamp != fixed.UnixMilli() {
		t.Errorf("unexpected last entry: %+v", h[9])
	}
}

func TestRunnerStopsWhenTickReturnsFalse(t *testing.T) {
	var count int32
	r := NewRunner(time.Millisecond, func(ctx context.Context) bool {
		return atomic.AddInt32(&count, 1) < 3
	})

	r.Start(context.Background())

	deadline := time.After(2 * time.Second)
	for r.Running() {
		select {
		case <-deadline:
			t.Fatal("runner did not stop on its own")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if got := atomic.LoadInt32(&count); got != 3 {
		t.Errorf("expected 3 ticks, got %d", got)
	}
}

func TestRunnerStopHaltsTicks(t *testing.T) {
	var count int32
	r := NewRunner(time.Millisecond, func(ctx context.Context) bool {
		atomic.AddInt32(&count, 1)
		return true
	})

	r.Start(context.Background())
	r.Start(context.Background())
	time.Sleep(20 * time.Millisecond)
	r.Stop()

	stopped := atomic.LoadInt32(&count)
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&count) != stopped {
		t.Error("expected no ticks after Stop")
	}
	if r.Running() {
		t.Error("expected runner not running after Stop")
	}
}
