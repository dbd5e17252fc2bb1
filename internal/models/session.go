package models

import (
	"time"
)

// Mode selects practice or evaluation rules for a session
type Mode string

const (
	ModePractice   Mode = "practice"
	ModeEvaluation Mode = "evaluation"
)

// Valid reports whether m is a known mode
func (m Mode) Valid() bool {
	return m == ModePractice || m == ModeEvaluation
}

// SessionStatus represents the current state of a simulation session
type SessionStatus string

const (
	StatusIdle    SessionStatus = "idle"
	StatusRunning SessionStatus = "running"
	StatusPaused  SessionStatus = "paused"
	StatusWon     SessionStatus = "won"
	StatusLost    SessionStatus = "lost"
)

// IsTerminal returns true if the status is a terminal state
func (s SessionStatus) IsTerminal() bool {
	return s == StatusWon || s == StatusLost
}

// TerminalReason explains why a session ended
type TerminalReason string

const (
	ReasonNone         TerminalReason = ""
	ReasonGoalsReached TerminalReason = "goals_reached"
	ReasonHPZero       TerminalReason = "hp_zero"
	ReasonTimeout      TerminalReason = "timeout"
)

// SessionOutcome is the single record handed to persistence and the achievement engine
type SessionOutcome struct {
	RunID         string         `json:"run_id"`
	SessionID     string         `json:"session_id"`
	UserID        string         `json:"user_id"`
	CaseID        string         `json:"case_id"`
	Mode          Mode           `json:"mode"`
	Status        SessionStatus  `json:"status"`
	Reason        TerminalReason `json:"reason"`
	DurationTicks int            `json:"duration_ticks"`
	MinHPObserved float64        `json:"min_hp_observed"`
	HintsUsed     bool           `json:"hints_used"`
	GoalsAchieved int            `json:"goals_achieved"`
	GoalsTotal    int            `json:"goals_total"`
	EndedAt       time.Time      `json:"ended_at"`
}

// GoalProgress reports whether a goal has been reached
type GoalProgress struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Achieved    bool   `json:"achieved"`
	AchievedAt  int    `json:"achieved_at_tick,omitempty"`
}

// SessionView is a read-only picture of a session for presentation
type SessionView struct {
	ID            string         `json:"id"`
	RunID         string         `json:"run_id,omitempty"`
	UserID        string         `json:"user_id"`
	CaseID        string         `json:"case_id"`
	Mode          Mode           `json:"mode,omitempty"`
	Status        SessionStatus  `json:"status"`
	Reason        TerminalReason `json:"reason,omitempty"`
	ElapsedTicks  int            `json:"elapsed_ticks"`
	TickLimit     int            `json:"tick_limit,omitempty"`
	HP            float64        `json:"hp"`
	MinHPObserved float64        `json:"min_hp_observed"`
	HintsUsed     bool           `json:"hints_used"`
	GoalsAchieved int            `json:"goals_achieved"`
	GoalsTotal    int            `json:"goals_total"`
	Goals         []GoalProgress `json:"goals"`
	Readings      []Reading      `json:"readings"`
	NewBadges     []Badge        `json:"new_badges,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// ParameterChange is a before/after pair reported for treatment feedback
type ParameterChange struct {
	ParameterID ParameterID `json:"parameter_id"`
	Name        string      `json:"name"`
	Before      float64     `json:"before"`
	After       float64     `json:"after"`
	Gradual     bool        `json:"gradual"`
	Note        string      `json:"note,omitempty"`
}

// TreatmentFeedback reports what applying a treatment did
type TreatmentFeedback struct {
	SessionID   string            `json:"session_id"`
	TreatmentID string            `json:"treatment_id"`
	Name        string            `json:"name"`
	Tick        int               `json:"tick"`
	Multiplier  float64           `json:"multiplier"`
	Rationale   string            `json:"rationale,omitempty"`
	Changes     []ParameterChange `json:"changes"`
	HPBefore    float64           `json:"hp_before"`
	HPAfter     float64           `json:"hp_after"`
}
