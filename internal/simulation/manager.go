// Package simulation owns live sessions: one state machine and tick runner per
// session, plus the post-session pipeline that persists outcomes and awards badges.
package simulation

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/clinical-sim/internal/achievement"
	"github.com/terra-clan/clinical-sim/internal/cases"
	"github.com/terra-clan/clinical-sim/internal/clock"
	"github.com/terra-clan/clinical-sim/internal/diagnosis"
	"github.com/terra-clan/clinical-sim/internal/models"
	"github.com/terra-clan/clinical-sim/internal/presenter"
	"github.com/terra-clan/clinical-sim/internal/session"
	"github.com/terra-clan/clinical-sim/internal/simerr"
	"github.com/terra-clan/clinical-sim/internal/treatment"
)

const pipelineTimeout = 15 * time.Second

// Manager defines the interface for session management
type Manager interface {
	Create(ctx context.Context, caseID, userID string) (models.SessionView, error)
	Get(ctx context.Context, id, userID string) (models.SessionView, error)
	List(ctx context.Context, userID string) []models.SessionView
	Start(ctx context.Context, id, userID string, mode models.Mode) (models.SessionView, error)
	Toggle(ctx context.Context, id, userID string) (models.SessionView, error)
	Reset(ctx context.Context, id, userID string) (models.SessionView, error)
	ApplyTreatment(ctx context.Context, id, userID, treatmentID string) (*models.TreatmentFeedback, error)
	UseHint(ctx context.Context, id, userID string) (string, error)
	Diagnose(ctx context.Context, id, userID, optionID string) (diagnosis.Result, error)
	Challenge(ctx context.Context, id, userID string) (diagnosis.Board, error)
	History(ctx context.Context, id, userID string) ([]models.HistoryEntry, error)
	Treatments(ctx context.Context, id, userID string) ([]models.TreatmentFeedback, error)
	Delete(ctx context.Context, id, userID string) error
	Remove(ctx context.Context, id string) error
	GetAbandoned(ctx context.Context, idle time.Duration) []models.SessionView
	Ping(ctx context.Context) error
	Close() error
}

// OutcomeStore is the part of the persistence sink the pipeline writes to
type OutcomeStore interface {
	SaveOutcome(ctx context.Context, out models.SessionOutcome) (bool, error)
	Ping(ctx context.Context) error
}

// Options holds simulation tuning
type Options struct {
	TickInterval        time.Duration
	EvaluationTickLimit int
}

type entry struct {
	machine *session.Machine
	runner  *clock.Runner

	mu        sync.Mutex
	lastSeen  time.Time
	newBadges []models.Badge
}

func (e *entry) seen(t time.Time) {
	e.mu.Lock()
	e.lastSeen = t
	e.mu.Unlock()
}

func (e *entry) idleSince() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeen
}

// SimulationManager implements Manager with in-memory sessions
type SimulationManager struct {
	cases    cases.Provider
	resolver *treatment.Resolver
	store    OutcomeStore
	engine   *achievement.Engine
	sink     presenter.Sink
	opts     Options
	now      func() time.Time

	baseCtx context.Context
	cancel  context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewManager creates a session manager. engine and sink may be nil.
func NewManager(
	provider cases.Provider,
	resolver *treatment.Resolver,
	store OutcomeStore,
	engine *achievement.Engine,
	sink presenter.Sink,
	opts Options,
) *SimulationManager {
	if opts.TickInterval <= 0 {
		opts.TickInterval = clock.DefaultInterval
	}
	if opts.EvaluationTickLimit <= 0 {
		opts.EvaluationTickLimit = session.DefaultEvaluationTickLimit
	}
	if resolver == nil {
		resolver = treatment.NewResolver(nil, treatment.DefaultPartialEfficacy)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SimulationManager{
		cases:    provider,
		resolver: resolver,
		store:    store,
		engine:   engine,
		sink:     sink,
		opts:     opts,
		now:      time.Now,
		baseCtx:  ctx,
		cancel:   cancel,
		sessions: make(map[string]*entry),
	}
}

// Ping checks if the manager is operational
func (m *SimulationManager) Ping(ctx context.Context) error {
	if err := m.store.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	if m.sink != nil {
		if err := m.sink.HealthCheck(ctx); err != nil {
			return fmt.Errorf("presentation sink unhealthy: %w", err)
		}
	}

	return nil
}

// Create opens an idle session on a case
func (m *SimulationManager) Create(ctx context.Context, caseID, userID string) (models.SessionView, error) {
	c, err := m.cases.Get(ctx, caseID)
	if err != nil {
		return models.SessionView{}, err
	}

	id := uuid.New().String()
	machine := session.New(id, userID, c, m.resolver, session.Options{
		EvaluationTickLimit: m.opts.EvaluationTickLimit,
		Now:                 m.now,
	})

	e := &entry{machine: machine, lastSeen: m.now()}
	e.runner = clock.NewRunner(m.opts.TickInterval, m.tickFunc(e))
	machine.OnOutcome(func(out models.SessionOutcome) {
		m.completeSession(e, out)
	})

	m.mu.Lock()
	m.sessions[id] = e
	m.mu.Unlock()

	slog.Info("session created",
		"session_id", id,
		"case_id", caseID,
		"user_id", userID,
	)

	return m.view(e), nil
}

// Get returns the current view of a session
func (m *SimulationManager) Get(ctx context.Context, id, userID string) (models.SessionView, error) {
	e, err := m.lookup(id, userID)
	if err != nil {
		return models.SessionView{}, err
	}
	return m.view(e), nil
}

// List returns a user's live sessions, newest first
func (m *SimulationManager) List(ctx context.Context, userID string) []models.SessionView {
	m.mu.RLock()
	var owned []*entry
	for _, e := range m.sessions {
		if e.machine.UserID() == userID {
			owned = append(owned, e)
		}
	}
	m.mu.RUnlock()

	views := make([]models.SessionView, 0, len(owned))
	for _, e := range owned {
		views = append(views, m.view(e))
	}
	sort.Slice(views, func(i, j int) bool { return views[i].CreatedAt.After(views[j].CreatedAt) })
	return views
}

// Start begins the simulation and schedules ticks
func (m *SimulationManager) Start(ctx context.Context, id, userID string, mode models.Mode) (models.SessionView, error) {
	e, err := m.lookup(id, userID)
	if err != nil {
		return models.SessionView{}, err
	}

	e.mu.Lock()
	e.newBadges = nil
	e.mu.Unlock()

	if err := e.machine.Start(mode); err != nil {
		return models.SessionView{}, err
	}
	m.syncRunner(e)

	return m.publishSnapshot(ctx, e), nil
}

// Toggle pauses or resumes tick scheduling
func (m *SimulationManager) Toggle(ctx context.Context, id, userID string) (models.SessionView, error) {
	e, err := m.lookup(id, userID)
	if err != nil {
		return models.SessionView{}, err
	}

	if _, err := e.machine.Toggle(); err != nil {
		return models.SessionView{}, err
	}
	m.syncRunner(e)

	return m.publishSnapshot(ctx, e), nil
}

// Reset stops ticking and returns the session to idle
func (m *SimulationManager) Reset(ctx context.Context, id, userID string) (models.SessionView, error) {
	e, err := m.lookup(id, userID)
	if err != nil {
		return models.SessionView{}, err
	}

	e.runner.Stop()
	e.machine.Reset()

	e.mu.Lock()
	e.newBadges = nil
	e.mu.Unlock()

	return m.publishSnapshot(ctx, e), nil
}

// ApplyTreatment applies a treatment and publishes its feedback
func (m *SimulationManager) ApplyTreatment(ctx context.Context, id, userID, treatmentID string) (*models.TreatmentFeedback, error) {
	e, err := m.lookup(id, userID)
	if err != nil {
		return nil, err
	}

	fb, err := e.machine.RecordTreatment(ctx, treatmentID)
	if err != nil {
		return nil, err
	}
	m.syncRunner(e)

	if m.sink != nil {
		m.sink.PublishFeedback(ctx, *fb)
	}
	m.publishSnapshot(ctx, e)

	return fb, nil
}

// UseHint returns a hint for a practice session. Evaluation sessions get none.
func (m *SimulationManager) UseHint(ctx context.Context, id, userID string) (string, error) {
	e, err := m.lookup(id, userID)
	if err != nil {
		return "", err
	}

	if e.machine.View().Mode == models.ModeEvaluation {
		return "", simerr.New(simerr.KindSessionStateConflict, "hints are unavailable in evaluation mode")
	}

	hint, err := e.machine.RecordHintUsed()
	if err != nil {
		return "", err
	}
	m.publishSnapshot(ctx, e)

	return hint, nil
}

// Diagnose submits a diagnosis for the session's challenge
func (m *SimulationManager) Diagnose(ctx context.Context, id, userID, optionID string) (diagnosis.Result, error) {
	e, err := m.lookup(id, userID)
	if err != nil {
		return diagnosis.Result{}, err
	}

	res, err := e.machine.Diagnose(optionID)
	if err != nil {
		return res, err
	}
	m.syncRunner(e)
	m.publishSnapshot(ctx, e)

	return res, nil
}

// Challenge returns the diagnostic board
func (m *SimulationManager) Challenge(ctx context.Context, id, userID string) (diagnosis.Board, error) {
	e, err := m.lookup(id, userID)
	if err != nil {
		return diagnosis.Board{}, err
	}
	return e.machine.Challenge()
}

// History returns the time series of the session
func (m *SimulationManager) History(ctx context.Context, id, userID string) ([]models.HistoryEntry, error) {
	e, err := m.lookup(id, userID)
	if err != nil {
		return nil, err
	}
	return e.machine.History(), nil
}

// Treatments returns the treatment feedback log
func (m *SimulationManager) Treatments(ctx context.Context, id, userID string) ([]models.TreatmentFeedback, error) {
	e, err := m.lookup(id, userID)
	if err != nil {
		return nil, err
	}
	return e.machine.Treatments(), nil
}

// Delete discards a session owned by userID
func (m *SimulationManager) Delete(ctx context.Context, id, userID string) error {
	if _, err := m.lookup(id, userID); err != nil {
		return err
	}
	return m.Remove(ctx, id)
}

// Remove discards a session regardless of owner. Nothing is persisted.
func (m *SimulationManager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return simerr.New(simerr.KindSessionNotFound, "session %s", id)
	}

	e.runner.Stop()

	slog.Info("session deleted", "session_id", id)
	return nil
}

// GetAbandoned returns sessions nobody has interacted with for idle
func (m *SimulationManager) GetAbandoned(ctx context.Context, idle time.Duration) []models.SessionView {
	cutoff := m.now().Add(-idle)

	m.mu.RLock()
	var stale []*entry
	for _, e := range m.sessions {
		if e.idleSince().Before(cutoff) {
			stale = append(stale, e)
		}
	}
	m.mu.RUnlock()

	views := make([]models.SessionView, 0, len(stale))
	for _, e := range stale {
		views = append(views, e.machine.View())
	}
	return views
}

// Close stops every runner
func (m *SimulationManager) Close() error {
	m.cancel()

	m.mu.Lock()
	entries := make([]*entry, 0, len(m.sessions))
	for _, e := range m.sessions {
		entries = append(entries, e)
	}
	m.mu.Unlock()

	for _, e := range entries {
		e.runner.Stop()
	}

	slog.Info("simulation manager closed", "sessions", len(entries))
	return nil
}

// lookup finds a session and records the interaction. Sessions of other users are reported as not found.
func (m *SimulationManager) lookup(id, userID string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()

	if !ok || e.machine.UserID() != userID {
		return nil, simerr.New(simerr.KindSessionNotFound, "session %s", id)
	}

	e.seen(m.now())
	return e, nil
}

// syncRunner schedules ticks only while the machine is running.
// It must be called outside the machine lock.
func (m *SimulationManager) syncRunner(e *entry) {
	if e.machine.Status() == models.StatusRunning {
		e.runner.Start(m.baseCtx)
		return
	}
	e.runner.Stop()
}

func (m *SimulationManager) tickFunc(e *entry) clock.TickFunc {
	return func(ctx context.Context) bool {
		if _, err := e.machine.Tick(ctx); err != nil {
			slog.Debug("tick skipped", "session_id", e.machine.ID(), "error", err)
			return false
		}
		m.publishSnapshot(ctx, e)
		return e.machine.Status() == models.StatusRunning
	}
}

func (m *SimulationManager) view(e *entry) models.SessionView {
	v := e.machine.View()
	e.mu.Lock()
	v.NewBadges = append([]models.Badge(nil), e.newBadges...)
	e.mu.Unlock()
	return v
}

func (m *SimulationManager) publishSnapshot(ctx context.Context, e *entry) models.SessionView {
	v := m.view(e)
	if m.sink != nil {
		m.sink.PublishSnapshot(ctx, v)
	}
	return v
}

// completeSession persists the outcome, runs the achievement engine and
// publishes the result. It runs once per ended session, outside the machine lock.
func (m *SimulationManager) completeSession(e *entry, out models.SessionOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), pipelineTimeout)
	defer cancel()

	inserted, err := m.store.SaveOutcome(ctx, out)
	if err != nil {
		slog.Error("failed to save outcome", "session_id", out.SessionID, "run_id", out.RunID, "error", err)
		return
	}
	if !inserted {
		slog.Info("outcome already recorded", "session_id", out.SessionID, "run_id", out.RunID)
	}

	var badges []models.Badge
	if m.engine != nil {
		badges, err = m.engine.Process(ctx, out)
		if err != nil {
			slog.Error("failed to process achievements", "session_id", out.SessionID, "error", err)
		}
	}

	e.mu.Lock()
	e.newBadges = badges
	e.mu.Unlock()

	slog.Info("session outcome recorded",
		"session_id", out.SessionID,
		"run_id", out.RunID,
		"user_id", out.UserID,
		"status", out.Status,
		"reason", out.Reason,
		"badges", len(badges),
	)

	if m.sink != nil {
		m.sink.PublishOutcome(ctx, presenter.OutcomeReport{Outcome: out, Badges: badges})
	}
}
