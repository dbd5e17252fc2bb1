// Package session implements the per-learner session state machine.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/clinical-sim/internal/clock"
	"github.com/terra-clan/clinical-sim/internal/diagnosis"
	"github.com/terra-clan/clinical-sim/internal/models"
	"github.com/terra-clan/clinical-sim/internal/patient"
	"github.com/terra-clan/clinical-sim/internal/simerr"
	"github.com/terra-clan/clinical-sim/internal/treatment"
)

// DefaultEvaluationTickLimit applies when neither the case nor the options set one
const DefaultEvaluationTickLimit = 300

// OutcomeHandler receives the outcome of a session exactly once, after the machine lock is released
type OutcomeHandler func(outcome models.SessionOutcome)

// Options configures a machine
type Options struct {
	EvaluationTickLimit int
	Now                 func() time.Time
	// NewRunID names each started run. Outcomes are keyed by run, so a session
	// replayed after Reset reports a distinct outcome.
	NewRunID            func() string
}

// Machine drives one learner through one case.
//
// States: idle -> running <-> paused; running -> won | lost; any -> idle on Reset.
// Won and lost are terminal until Reset.
type Machine struct {
	mu sync.Mutex

	id       string
	userID   string
	c        *models.Case
	resolver *treatment.Resolver
	limit    int
	now      func() time.Time
	newRunID func() string

	runID  string
	mode   models.Mode
	status models.SessionStatus
	reason models.TerminalReason

	state     *patient.State
	clock     *clock.Clock
	challenge *models.DiagnosticChallenge

	elapsed     int
	hintsUsed   bool
	minHP       float64
	hpExhausted bool
	goals       []models.GoalProgress
	achieved    int
	given       map[string]bool
	treatments  []models.TreatmentFeedback

	outcome   *models.SessionOutcome
	pending   *models.SessionOutcome
	onOutcome OutcomeHandler

	createdAt time.Time
	updatedAt time.Time
}

// New creates an idle machine for a validated case
func New(id, userID string, c *models.Case, resolver *treatment.Resolver, opts Options) *Machine {
	limit := opts.EvaluationTickLimit
	if limit <= 0 {
		limit = DefaultEvaluationTickLimit
	}
	if c.EvaluationTickLimit > 0 {
		limit = c.EvaluationTickLimit
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if resolver == nil {
		resolver = treatment.NewResolver(nil, treatment.DefaultPartialEfficacy)
	}
	newRunID := opts.NewRunID
	if newRunID == nil {
		newRunID = uuid.NewString
	}

	t := now()
	return &Machine{
		id:        id,
		userID:    userID,
		c:         c,
		resolver:  resolver,
		limit:     limit,
		now:       now,
		newRunID:  newRunID,
		status:    models.StatusIdle,
		createdAt: t,
		updatedAt: t,
	}
}

// OnOutcome registers the handler called when the session reaches won or lost
func (m *Machine) OnOutcome(fn OutcomeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onOutcome = fn
}

// unlockAndEmit releases the lock and hands over any outcome produced while it was held
func (m *Machine) unlockAndEmit() {
	out := m.pending
	m.pending = nil
	handler := m.onOutcome
	m.mu.Unlock()

	if out != nil && handler != nil {
		handler(*out)
	}
}

// ID returns the session id
func (m *Machine) ID() string { return m.id }

// UserID returns the owning learner
func (m *Machine) UserID() string { return m.userID }

// CaseID returns the case being played
func (m *Machine) CaseID() string { return m.c.ID }

// Status returns the current status
func (m *Machine) Status() models.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// LastActivity returns the time of the last state change
func (m *Machine) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updatedAt
}

// Start initializes patient state and goals and enters running
func (m *Machine) Start(mode models.Mode) error {
	m.mu.Lock()
	defer m.unlockAndEmit()

	if !mode.Valid() {
		return simerr.New(simerr.KindSessionStateConflict, "unknown mode %q", mode)
	}
	if m.status != models.StatusIdle {
		return simerr.New(simerr.KindSessionStateConflict, "cannot start a %s session", m.status)
	}

	state, err := patient.Initialize(m.c.Parameters, m.c.InitialValues, m.c.InitialHP)
	if err != nil {
		return err
	}
	state.OnDepleted(func() {
		m.hpExhausted = true
	})

	m.state = state
	m.clock = clock.New(state, m.c)
	m.clock.SetNow(m.now)
	m.challenge = nil
	if m.c.Challenge != nil {
		m.challenge = m.c.Challenge.NewChallenge()
	}

	m.runID = m.newRunID()
	m.mode = mode
	m.reason = models.ReasonNone
	m.elapsed = 0
	m.hintsUsed = false
	m.minHP = state.HP()
	m.hpExhausted = state.Depleted()
	m.achieved = 0
	m.given = make(map[string]bool)
	m.treatments = nil
	m.outcome = nil
	m.goals = make([]models.GoalProgress, len(m.c.Goals))
	for i, g := range m.c.Goals {
		m.goals[i] = models.GoalProgress{ID: g.ID, Description: g.Description}
	}

	state.Record(0, m.now())
	m.status = models.StatusRunning
	m.touch()

	slog.Info("session started",
		"session_id", m.id,
		"run_id", m.runID,
		"case_id", m.c.ID,
		"mode", mode,
	)

	m.settle()
	return nil
}

// Toggle pauses a running session or resumes a paused one
func (m *Machine) Toggle() (models.SessionStatus, error) {
	m.mu.Lock()
	defer m.unlockAndEmit()

	switch m.status {
	case models.StatusRunning:
		m.status = models.StatusPaused
	case models.StatusPaused:
		m.status = models.StatusRunning
	default:
		return m.status, simerr.New(simerr.KindSessionStateConflict, "cannot toggle a %s session", m.status)
	}
	m.touch()
	return m.status, nil
}

// Reset discards patient state and history and returns to idle.
// An outcome already emitted is not affected.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.unlockAndEmit()

	m.status = models.StatusIdle
	m.runID = ""
	m.mode = ""
	m.reason = models.ReasonNone
	m.state = nil
	m.clock = nil
	m.challenge = nil
	m.elapsed = 0
	m.hintsUsed = false
	m.minHP = 0
	m.hpExhausted = false
	m.goals = nil
	m.achieved = 0
	m.given = nil
	m.treatments = nil
	m.outcome = nil
	m.touch()

	slog.Info("session reset", "session_id", m.id)
}

// Tick advances a running session by one tick and evaluates terminal conditions:
// HP exhaustion first, then goals, then the evaluation tick limit.
func (m *Machine) Tick(ctx context.Context) (clock.TickReport, error) {
	m.mu.Lock()
	defer m.unlockAndEmit()

	if m.status != models.StatusRunning {
		return clock.TickReport{}, simerr.New(simerr.KindSessionStateConflict, "cannot tick a %s session", m.status)
	}

	m.elapsed++
	report := m.clock.Step(m.elapsed)
	m.observeHP()
	m.touch()

	slog.Debug("tick",
		"session_id", m.id,
		"tick", m.elapsed,
		"hp", report.HP,
	)

	m.settle()
	if m.status == models.StatusRunning && m.mode == models.ModeEvaluation && m.elapsed >= m.limit {
		m.finish(models.StatusLost, models.ReasonTimeout)
	}

	return report, nil
}

// RecordTreatment applies a treatment to a running session. HP exhaustion caused
// by the treatment ends the session at once.
//
// The treatment is resolved outside the lock since resolution may consult a
// remote advisor. It is committed only if the same run is still running.
func (m *Machine) RecordTreatment(ctx context.Context, treatmentID string) (*models.TreatmentFeedback, error) {
	m.mu.Lock()
	cc := treatment.CaseContext{Case: m.c, Status: m.status, Tick: m.elapsed}
	if m.state != nil {
		cc.Readings = m.state.Readings()
	}
	runID := m.runID
	m.mu.Unlock()

	res, err := m.resolver.Resolve(ctx, treatmentID, cc)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.unlockAndEmit()

	if m.status != models.StatusRunning || m.runID != runID {
		return nil, simerr.New(simerr.KindTreatmentNotApplicableNow, "session is %s", m.status)
	}

	fb, err := m.resolver.Commit(res, m.state, m.elapsed)
	if err != nil {
		return nil, err
	}
	fb.SessionID = m.id

	m.given[treatmentID] = true
	m.treatments = append(m.treatments, *fb)
	m.observeHP()
	m.touch()

	slog.Info("treatment applied",
		"session_id", m.id,
		"treatment_id", treatmentID,
		"multiplier", fb.Multiplier,
		"hp", fb.HPAfter,
	)

	m.settle()
	return fb, nil
}

// RecordHintUsed marks the session as assisted and returns the next unmet goal as a hint.
// Callers keep hints away from evaluation sessions; the flag is honored regardless.
func (m *Machine) RecordHintUsed() (string, error) {
	m.mu.Lock()
	defer m.unlockAndEmit()

	if m.status == models.StatusIdle || m.status.IsTerminal() {
		return "", simerr.New(simerr.KindSessionStateConflict, "no hints for a %s session", m.status)
	}

	m.hintsUsed = true
	m.touch()

	for _, g := range m.goals {
		if !g.Achieved {
			return g.Description, nil
		}
	}
	return "", nil
}

// Diagnose submits the learner's diagnosis. The challenge resolves exactly once.
func (m *Machine) Diagnose(optionID string) (diagnosis.Result, error) {
	m.mu.Lock()
	defer m.unlockAndEmit()

	if m.c.Challenge == nil {
		return diagnosis.Result{}, simerr.New(simerr.KindInvalidCaseData, "case %s has no diagnostic challenge", m.c.ID)
	}
	if m.status != models.StatusRunning {
		return diagnosis.Result{}, simerr.New(simerr.KindSessionStateConflict, "cannot diagnose in a %s session", m.status)
	}

	res, err := diagnosis.Evaluate(m.challenge, optionID)
	if err != nil {
		return res, err
	}
	m.touch()

	slog.Info("diagnosis submitted",
		"session_id", m.id,
		"option_id", optionID,
		"correct", res.Correct,
	)

	m.settle()
	return res, nil
}

// Challenge returns the diagnostic board with current readings
func (m *Machine) Challenge() (diagnosis.Board, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.c.Challenge == nil {
		return diagnosis.Board{}, simerr.New(simerr.KindInvalidCaseData, "case %s has no diagnostic challenge", m.c.ID)
	}
	if m.challenge == nil {
		return diagnosis.Board{}, simerr.New(simerr.KindSessionStateConflict, "session has not started")
	}
	return diagnosis.Present(m.challenge, m.state), nil
}

// CheckGoals re-evaluates goal predicates and returns the number achieved
func (m *Machine) CheckGoals() int {
	m.mu.Lock()
	defer m.unlockAndEmit()

	if m.status == models.StatusRunning {
		m.settle()
	}
	return m.achieved
}

// View returns a read-only picture of the session
func (m *Machine) View() models.SessionView {
	m.mu.Lock()
	defer m.mu.Unlock()

	v := models.SessionView{
		ID:            m.id,
		RunID:         m.runID,
		UserID:        m.userID,
		CaseID:        m.c.ID,
		Mode:          m.mode,
		Status:        m.status,
		Reason:        m.reason,
		ElapsedTicks:  m.elapsed,
		MinHPObserved: m.minHP,
		HintsUsed:     m.hintsUsed,
		GoalsAchieved: m.achieved,
		GoalsTotal:    len(m.c.Goals),
		Goals:         append([]models.GoalProgress(nil), m.goals...),
		CreatedAt:     m.createdAt,
		UpdatedAt:     m.updatedAt,
	}
	if m.mode == models.ModeEvaluation {
		v.TickLimit = m.limit
	}
	if m.state != nil {
		v.HP = m.state.HP()
		v.Readings = m.state.Readings()
	}
	return v
}

// History returns the recorded snapshots, or nil for an idle session
func (m *Machine) History() []models.HistoryEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == nil {
		return nil
	}
	return m.state.History()
}

// Treatments returns the feedback log of applied treatments
func (m *Machine) Treatments() []models.TreatmentFeedback {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TreatmentFeedback(nil), m.treatments...)
}

// Outcome returns the outcome once the session has ended
func (m *Machine) Outcome() (models.SessionOutcome, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.outcome == nil {
		return models.SessionOutcome{}, false
	}
	return *m.outcome, true
}

// settle ends the session on HP exhaustion or when every goal is met
func (m *Machine) settle() {
	if m.status != models.StatusRunning {
		return
	}
	if m.hpExhausted {
		m.finish(models.StatusLost, models.ReasonHPZero)
		return
	}
	if m.checkGoals() {
		m.finish(models.StatusWon, models.ReasonGoalsReached)
	}
}

// checkGoals marks newly satisfied goals and reports whether all are met.
// A case without goals is never won this way.
func (m *Machine) checkGoals() bool {
	for i, g := range m.c.Goals {
		if m.goals[i].Achieved {
			continue
		}
		if m.satisfied(g) {
			m.goals[i].Achieved = true
			m.goals[i].AchievedAt = m.elapsed
			m.achieved++
			slog.Debug("goal achieved", "session_id", m.id, "goal_id", g.ID)
		}
	}
	return len(m.goals) > 0 && m.achieved == len(m.goals)
}

func (m *Machine) satisfied(g models.Goal) bool {
	switch g.Kind {
	case models.GoalParameterNormal:
		class, err := m.state.Classify(g.ParameterID)
		return err == nil && class == models.ClassNormal
	case models.GoalParameterRange:
		v, err := m.state.Value(g.ParameterID)
		return err == nil && g.Range != nil && g.Range.Contains(v)
	case models.GoalDiagnosisCorrect:
		return m.challenge != nil && m.challenge.Resolved && m.challenge.Correct
	case models.GoalTreatmentGiven:
		return m.given[g.TreatmentID]
	}
	return false
}

func (m *Machine) finish(status models.SessionStatus, reason models.TerminalReason) {
	m.status = status
	m.reason = reason
	m.state.Freeze()
	m.touch()

	out := models.SessionOutcome{
		RunID:         m.runID,
		SessionID:     m.id,
		UserID:        m.userID,
		CaseID:        m.c.ID,
		Mode:          m.mode,
		Status:        status,
		Reason:        reason,
		DurationTicks: m.elapsed,
		MinHPObserved: m.minHP,
		HintsUsed:     m.hintsUsed,
		GoalsAchieved: m.achieved,
		GoalsTotal:    len(m.c.Goals),
		EndedAt:       m.updatedAt,
	}
	m.outcome = &out
	m.pending = &out

	slog.Info("session ended",
		"session_id", m.id,
		"run_id", m.runID,
		"case_id", m.c.ID,
		"status", status,
		"reason", reason,
		"ticks", m.elapsed,
	)
}

func (m *Machine) observeHP() {
	if hp := m.state.HP(); hp < m.minHP {
		m.minHP = hp
	}
}

func (m *Machine) touch() {
	m.updatedAt = m.now()
}
