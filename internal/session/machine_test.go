package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/terra-clan/clinical-sim/internal/models"
	"github.com/terra-clan/clinical-sim/internal/simerr"
	"github.com/terra-clan/clinical-sim/internal/treatment"
)

const pH models.ParameterID = 1

func acidosisCase() *models.Case {
	return &models.Case{
		ID:          "dka",
		Title:       "Diabetic ketoacidosis",
		ConditionID: "dka",
		Parameters: []models.Parameter{
			{
				ID:            pH,
				Name:          "pH",
				NormalRange:   models.Range{Min: 7.35, Max: 7.45},
				CriticalRange: models.Range{Min: 7.20, Max: 7.60},
			},
		},
		InitialValues: models.Values{pH: 7.30},
		InitialHP:     100,
		Treatments: []models.Treatment{
			{
				ID:       "bicarbonate",
				Name:     "Sodium bicarbonate",
				Adequacy: models.AdequacyAdequate,
				Effects: []models.TreatmentEffect{
					{ParameterID: pH, DeltaPerTick: 0.02, DurationTicks: 3},
				},
			},
			{
				ID:       "toxin",
				Name:     "Wrong drug",
				Adequacy: models.AdequacyAdequate,
				Effects: []models.TreatmentEffect{
					{ParameterID: pH, HPDelta: -40},
				},
			},
		},
		Goals: []models.Goal{
			{ID: "ph", Description: "Bring pH into the normal range", Kind: models.GoalParameterNormal, ParameterID: pH},
		},
		Challenge: &models.DiagnosticChallengeDef{
			Prompt:             "What is the underlying condition?",
			CorrectConditionID: "dka",
			Options: []models.DiagnosisOption{
				{ID: "dka", Label: "Diabetic ketoacidosis", RelatedParameters: []models.ParameterID{pH}},
				{ID: "sepsis", Label: "Sepsis"},
			},
		},
	}
}

func newMachine(c *models.Case, opts Options) (*Machine, *[]models.SessionOutcome) {
	m := New("s-1", "u-1", c, nil, opts)
	var outcomes []models.SessionOutcome
	m.OnOutcome(func(o models.SessionOutcome) {
		// the handler runs outside the lock
		_ = m.View()
		outcomes = append(outcomes, o)
	})
	return m, &outcomes
}

func tickN(t *testing.T, m *Machine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := m.Tick(context.Background()); err != nil {
			t.Fatalf("tick %d failed: %v", i+1, err)
		}
	}
}

func TestStartRequiresIdle(t *testing.T) {
	m, _ := newMachine(acidosisCase(), Options{})

	if err := m.Start("arcade"); !errors.Is(err, simerr.ErrSessionStateConflict) {
		t.Fatalf("expected SessionStateConflict for unknown mode, got %v", err)
	}
	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := m.Start(models.ModePractice); !errors.Is(err, simerr.ErrSessionStateConflict) {
		t.Fatalf("expected SessionStateConflict on second start, got %v", err)
	}

	v := m.View()
	if v.Status != models.StatusRunning {
		t.Errorf("expected running, got %s", v.Status)
	}
	if v.HP != 100 || v.MinHPObserved != 100 {
		t.Errorf("expected HP 100, got %v (min %v)", v.HP, v.MinHPObserved)
	}
	if len(m.History()) != 1 {
		t.Errorf("expected initial snapshot, got %d entries", len(m.History()))
	}
}

func TestTreatmentReachesGoalAndWins(t *testing.T) {
	m, outcomes := newMachine(acidosisCase(), Options{})
	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	fb, err := m.RecordTreatment(context.Background(), "bicarbonate")
	if err != nil {
		t.Fatalf("RecordTreatment failed: %v", err)
	}
	if fb.SessionID != "s-1" {
		t.Errorf("expected feedback for s-1, got %q", fb.SessionID)
	}

	tickN(t, m, 2)
	if m.Status() != models.StatusRunning {
		t.Fatalf("expected running after 2 ticks, got %s", m.Status())
	}

	tickN(t, m, 1)
	v := m.View()
	if v.Status != models.StatusWon || v.Reason != models.ReasonGoalsReached {
		t.Fatalf("expected won/goals_reached, got %s/%s", v.Status, v.Reason)
	}
	if v.GoalsAchieved != 1 || v.GoalsTotal != 1 {
		t.Errorf("expected 1/1 goals, got %d/%d", v.GoalsAchieved, v.GoalsTotal)
	}

	if len(*outcomes) != 1 {
		t.Fatalf("expected one outcome, got %d", len(*outcomes))
	}
	out := (*outcomes)[0]
	if out.DurationTicks != 3 || out.Status != models.StatusWon || out.HintsUsed {
		t.Errorf("unexpected outcome: %+v", out)
	}

	if got := len(m.History()); got != 4 {
		t.Errorf("expected 4 history entries, got %d", got)
	}

	if _, err := m.Tick(context.Background()); !errors.Is(err, simerr.ErrSessionStateConflict) {
		t.Errorf("expected no ticks after win, got %v", err)
	}
	if _, err := m.RecordTreatment(context.Background(), "bicarbonate"); !errors.Is(err, simerr.ErrTreatmentNotApplicableNow) {
		t.Errorf("expected TreatmentNotApplicableNow after win, got %v", err)
	}
	if len(m.History()) != 4 {
		t.Error("expected history to stay frozen")
	}
	if len(*outcomes) != 1 {
		t.Errorf("expected outcome to be emitted once, got %d", len(*outcomes))
	}
}

func TestEvaluationTimeout(t *testing.T) {
	c := acidosisCase()
	m, outcomes := newMachine(c, Options{EvaluationTickLimit: 5})
	if err := m.Start(models.ModeEvaluation); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	tickN(t, m, 4)
	if m.Status() != models.StatusRunning {
		t.Fatalf("expected running before the limit, got %s", m.Status())
	}

	tickN(t, m, 1)
	v := m.View()
	if v.Status != models.StatusLost || v.Reason != models.ReasonTimeout {
		t.Fatalf("expected lost/timeout, got %s/%s", v.Status, v.Reason)
	}
	if v.HP <= 0 {
		t.Errorf("expected HP above zero, got %v", v.HP)
	}
	if len(*outcomes) != 1 || (*outcomes)[0].Reason != models.ReasonTimeout {
		t.Errorf("expected timeout outcome, got %+v", *outcomes)
	}
}

func TestCaseTickLimitOverridesDefault(t *testing.T) {
	c := acidosisCase()
	c.EvaluationTickLimit = 2
	m, _ := newMachine(c, Options{EvaluationTickLimit: 300})
	if err := m.Start(models.ModeEvaluation); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	tickN(t, m, 2)
	if v := m.View(); v.Reason != models.ReasonTimeout || v.TickLimit != 2 {
		t.Errorf("expected timeout at case limit 2, got %s (limit %d)", v.Reason, v.TickLimit)
	}
}

func TestPracticeModeHasNoTimeout(t *testing.T) {
	m, _ := newMachine(acidosisCase(), Options{EvaluationTickLimit: 3})
	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	tickN(t, m, 10)
	if m.Status() != models.StatusRunning {
		t.Errorf("expected practice session to keep running, got %s", m.Status())
	}
}

func TestHarmfulTreatmentLosesImmediately(t *testing.T) {
	c := acidosisCase()
	c.InitialHP = 30
	m, outcomes := newMachine(c, Options{})
	if err := m.Start(models.ModeEvaluation); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	fb, err := m.RecordTreatment(context.Background(), "toxin")
	if err != nil {
		t.Fatalf("RecordTreatment failed: %v", err)
	}
	if fb.HPBefore != 30 || fb.HPAfter != 0 {
		t.Errorf("expected HP 30 -> 0, got %v -> %v", fb.HPBefore, fb.HPAfter)
	}

	v := m.View()
	if v.Status != models.StatusLost || v.Reason != models.ReasonHPZero {
		t.Fatalf("expected lost/hp_zero, got %s/%s", v.Status, v.Reason)
	}
	if v.ElapsedTicks != 0 {
		t.Errorf("expected loss before any tick, got %d ticks", v.ElapsedTicks)
	}
	if len(*outcomes) != 1 || (*outcomes)[0].MinHPObserved != 0 {
		t.Errorf("expected outcome with min HP 0, got %+v", *outcomes)
	}
}

func TestToggle(t *testing.T) {
	m, _ := newMachine(acidosisCase(), Options{})

	if _, err := m.Toggle(); !errors.Is(err, simerr.ErrSessionStateConflict) {
		t.Fatalf("expected conflict toggling idle session, got %v", err)
	}
	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	status, err := m.Toggle()
	if err != nil || status != models.StatusPaused {
		t.Fatalf("expected paused, got %s (%v)", status, err)
	}
	if _, err := m.Tick(context.Background()); !errors.Is(err, simerr.ErrSessionStateConflict) {
		t.Errorf("expected no ticks while paused, got %v", err)
	}
	if _, err := m.RecordTreatment(context.Background(), "bicarbonate"); !errors.Is(err, simerr.ErrTreatmentNotApplicableNow) {
		t.Errorf("expected TreatmentNotApplicableNow while paused, got %v", err)
	}

	status, err = m.Toggle()
	if err != nil || status != models.StatusRunning {
		t.Fatalf("expected running, got %s (%v)", status, err)
	}
}

func TestResetDiscardsState(t *testing.T) {
	m, outcomes := newMachine(acidosisCase(), Options{})
	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	tickN(t, m, 2)

	m.Reset()
	if m.Status() != models.StatusIdle {
		t.Fatalf("expected idle, got %s", m.Status())
	}
	if m.History() != nil {
		t.Error("expected history to be discarded")
	}
	if len(*outcomes) != 0 {
		t.Errorf("expected no outcome for an abandoned run, got %d", len(*outcomes))
	}

	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if v := m.View(); v.ElapsedTicks != 0 || len(m.History()) != 1 {
		t.Errorf("expected fresh session, got %d ticks and %d entries", v.ElapsedTicks, len(m.History()))
	}
}

func TestHintMarksOutcome(t *testing.T) {
	m, outcomes := newMachine(acidosisCase(), Options{})

	if _, err := m.RecordHintUsed(); !errors.Is(err, simerr.ErrSessionStateConflict) {
		t.Fatalf("expected conflict for hint on idle session, got %v", err)
	}
	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	hint, err := m.RecordHintUsed()
	if err != nil {
		t.Fatalf("RecordHintUsed failed: %v", err)
	}
	if hint != "Bring pH into the normal range" {
		t.Errorf("unexpected hint %q", hint)
	}

	if _, err := m.RecordTreatment(context.Background(), "bicarbonate"); err != nil {
		t.Fatalf("RecordTreatment failed: %v", err)
	}
	tickN(t, m, 3)

	if len(*outcomes) != 1 || !(*outcomes)[0].HintsUsed {
		t.Errorf("expected won outcome with hints used, got %+v", *outcomes)
	}
}

func TestDiagnosisGoal(t *testing.T) {
	c := acidosisCase()
	c.Goals = []models.Goal{
		{ID: "dx", Description: "Name the condition", Kind: models.GoalDiagnosisCorrect},
		{ID: "bicarb", Description: "Give bicarbonate", Kind: models.GoalTreatmentGiven, TreatmentID: "bicarbonate"},
	}
	m, outcomes := newMachine(c, Options{})

	if _, err := m.Challenge(); !errors.Is(err, simerr.ErrSessionStateConflict) {
		t.Fatalf("expected conflict before start, got %v", err)
	}
	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	board, err := m.Challenge()
	if err != nil {
		t.Fatalf("Challenge failed: %v", err)
	}
	if len(board.Candidates) != 2 || len(board.Candidates[0].Readings) != 1 {
		t.Fatalf("unexpected board: %+v", board)
	}

	res, err := m.Diagnose("dka")
	if err != nil || !res.Correct {
		t.Fatalf("expected correct diagnosis, got %+v (%v)", res, err)
	}
	if _, err := m.Diagnose("sepsis"); !errors.Is(err, simerr.ErrChallengeAlreadyResolved) {
		t.Fatalf("expected ChallengeAlreadyResolved, got %v", err)
	}
	if got := m.CheckGoals(); got != 1 {
		t.Fatalf("expected 1 goal achieved, got %d", got)
	}

	if _, err := m.RecordTreatment(context.Background(), "bicarbonate"); err != nil {
		t.Fatalf("RecordTreatment failed: %v", err)
	}
	if m.Status() != models.StatusWon {
		t.Fatalf("expected won after final goal, got %s", m.Status())
	}
	if len(*outcomes) != 1 || (*outcomes)[0].GoalsAchieved != 2 {
		t.Errorf("expected outcome with 2 goals, got %+v", *outcomes)
	}
}

func TestIncorrectDiagnosis(t *testing.T) {
	m, _ := newMachine(acidosisCase(), Options{})
	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	res, err := m.Diagnose("not-an-option")
	if err != nil {
		t.Fatalf("Diagnose failed: %v", err)
	}
	if res.Correct {
		t.Error("expected non-candidate option to be incorrect")
	}

	board, _ := m.Challenge()
	if !board.Resolved || board.Correct == nil || *board.Correct {
		t.Errorf("expected resolved incorrect board, got %+v", board)
	}
}

func TestGoalsAreMonotonic(t *testing.T) {
	c := acidosisCase()
	c.Goals = []models.Goal{
		{ID: "window", Kind: models.GoalParameterRange, ParameterID: pH, Range: &models.Range{Min: 7.31, Max: 7.33}},
		{ID: "never", Kind: models.GoalTreatmentGiven, TreatmentID: "toxin"},
	}
	m, _ := newMachine(c, Options{})
	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := m.RecordTreatment(context.Background(), "bicarbonate"); err != nil {
		t.Fatalf("RecordTreatment failed: %v", err)
	}

	tickN(t, m, 1)
	if got := m.View().GoalsAchieved; got != 1 {
		t.Fatalf("expected window goal after tick 1, got %d", got)
	}

	tickN(t, m, 2)
	v := m.View()
	if v.GoalsAchieved != 1 || !v.Goals[0].Achieved || v.Goals[0].AchievedAt != 1 {
		t.Errorf("expected goal to stay achieved at tick 1, got %+v", v.Goals)
	}
	if v.Status != models.StatusRunning {
		t.Errorf("expected running, got %s", v.Status)
	}
}

func TestCaseWithoutGoalsNeverWins(t *testing.T) {
	c := acidosisCase()
	c.Goals = nil
	m, _ := newMachine(c, Options{})
	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := m.RecordTreatment(context.Background(), "bicarbonate"); err != nil {
		t.Fatalf("RecordTreatment failed: %v", err)
	}

	tickN(t, m, 5)
	if m.Status() != models.StatusRunning {
		t.Errorf("expected running, got %s", m.Status())
	}
}

func TestUnknownTreatment(t *testing.T) {
	m, _ := newMachine(acidosisCase(), Options{})
	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if _, err := m.RecordTreatment(context.Background(), "aspirin"); !errors.Is(err, simerr.ErrUnknownTreatment) {
		t.Errorf("expected UnknownTreatment, got %v", err)
	}
	if len(m.Treatments()) != 0 {
		t.Error("expected failed treatment not to be logged")
	}
}

func TestEachStartGetsFreshRunID(t *testing.T) {
	c := acidosisCase()
	c.InitialHP = 30
	n := 0
	m, outcomes := newMachine(c, Options{NewRunID: func() string {
		n++
		return fmt.Sprintf("run-%d", n)
	}})

	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if got := m.View().RunID; got != "run-1" {
		t.Errorf("expected run-1, got %q", got)
	}

	m.Reset()
	if got := m.View().RunID; got != "" {
		t.Errorf("expected no run after reset, got %q", got)
	}

	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("restart failed: %v", err)
	}
	if _, err := m.RecordTreatment(context.Background(), "toxin"); err != nil {
		t.Fatalf("RecordTreatment failed: %v", err)
	}
	if _, err := m.RecordTreatment(context.Background(), "toxin"); !errors.Is(err, simerr.ErrTreatmentNotApplicableNow) {
		t.Fatalf("expected TreatmentNotApplicableNow after loss, got %v", err)
	}
	if len(*outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(*outcomes))
	}
	if got := (*outcomes)[0]; got.RunID != "run-2" || got.SessionID != "s-1" {
		t.Errorf("expected outcome of run-2 on s-1, got %s on %s", got.RunID, got.SessionID)
	}
}

func TestStartWinsWhenGoalsAlreadyMet(t *testing.T) {
	c := acidosisCase()
	c.InitialValues = models.Values{pH: 7.40}
	m, outcomes := newMachine(c, Options{})

	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	v := m.View()
	if v.Status != models.StatusWon || v.Reason != models.ReasonGoalsReached {
		t.Fatalf("expected won/goals_reached at start, got %s/%s", v.Status, v.Reason)
	}
	if len(*outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(*outcomes))
	}
	if got := (*outcomes)[0]; got.DurationTicks != 0 || got.GoalsAchieved != 1 {
		t.Errorf("expected a zero-tick win with 1 goal, got %+v", got)
	}
	if _, err := m.Tick(context.Background()); !errors.Is(err, simerr.ErrSessionStateConflict) {
		t.Errorf("expected no ticks after the win, got %v", err)
	}
}

// gatedAdvisor blocks each evaluation until released
type gatedAdvisor struct {
	entered chan struct{}
	release chan struct{}
}

func newGatedAdvisor() *gatedAdvisor {
	return &gatedAdvisor{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (a *gatedAdvisor) Evaluate(ctx context.Context, req treatment.AdequacyRequest) (treatment.Verdict, error) {
	a.entered <- struct{}{}
	<-a.release
	return treatment.Verdict{Multiplier: 1}, nil
}

func advisedCase() *models.Case {
	c := acidosisCase()
	c.Treatments = append(c.Treatments, models.Treatment{
		ID:      "insulin",
		Name:    "Insulin drip",
		Effects: []models.TreatmentEffect{{ParameterID: pH, ImmediateDelta: 0.01}},
	})
	return c
}

type treatmentResult struct {
	fb  *models.TreatmentFeedback
	err error
}

func recordAsync(m *Machine, treatmentID string) <-chan treatmentResult {
	done := make(chan treatmentResult, 1)
	go func() {
		fb, err := m.RecordTreatment(context.Background(), treatmentID)
		done <- treatmentResult{fb: fb, err: err}
	}()
	return done
}

func TestAdvisorDoesNotBlockTicks(t *testing.T) {
	advisor := newGatedAdvisor()
	m := New("s-1", "u-1", advisedCase(), treatment.NewResolver(advisor, treatment.DefaultPartialEfficacy), Options{})
	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := recordAsync(m, "insulin")
	<-advisor.entered

	tickN(t, m, 2)
	if v := m.View(); v.ElapsedTicks != 2 {
		t.Fatalf("expected 2 ticks while the advisor was pending, got %d", v.ElapsedTicks)
	}

	close(advisor.release)
	res := <-done
	if res.err != nil {
		t.Fatalf("RecordTreatment failed: %v", res.err)
	}
	if res.fb.Tick != 2 {
		t.Errorf("expected treatment committed at tick 2, got %d", res.fb.Tick)
	}
	if len(m.Treatments()) != 1 {
		t.Errorf("expected 1 logged treatment, got %d", len(m.Treatments()))
	}
}

func TestTreatmentDroppedWhenRunChangesDuringAdvice(t *testing.T) {
	advisor := newGatedAdvisor()
	m := New("s-1", "u-1", advisedCase(), treatment.NewResolver(advisor, treatment.DefaultPartialEfficacy), Options{})
	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := recordAsync(m, "insulin")
	<-advisor.entered

	m.Reset()
	if err := m.Start(models.ModePractice); err != nil {
		t.Fatalf("restart failed: %v", err)
	}

	close(advisor.release)
	res := <-done
	if !errors.Is(res.err, simerr.ErrTreatmentNotApplicableNow) {
		t.Fatalf("expected TreatmentNotApplicableNow, got %v", res.err)
	}
	if len(m.Treatments()) != 0 {
		t.Errorf("expected the new run to have no treatments, got %d", len(m.Treatments()))
	}
}
