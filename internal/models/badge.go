package models

import (
	"time"
)

// CriterionKind is the closed set of badge rules
type CriterionKind string

const (
	CriterionFirstVictory  CriterionKind = "first_victory"
	CriterionNoHints       CriterionKind = "no_hints"
	CriterionSpeedRecord   CriterionKind = "speed_record"
	CriterionAllGoals      CriterionKind = "all_goals"
	CriterionSessionCount  CriterionKind = "session_count"
	CriterionHighHP        CriterionKind = "high_hp"
	CriterionDistinctCases CriterionKind = "distinct_cases"
)

// Criterion is the tagged rule attached to a badge
type Criterion struct {
	Kind      CriterionKind `yaml:"kind" json:"kind"`
	Threshold float64       `yaml:"threshold" json:"threshold,omitempty"`
}

// Badge is an immutable catalog entry
type Badge struct {
	ID          string    `yaml:"id" json:"id"`
	Name        string    `yaml:"name" json:"name"`
	Description string    `yaml:"description" json:"description,omitempty"`
	Criterion   Criterion `yaml:"criterion" json:"criterion"`
}

// UserBadgeAward records a badge granted to a user, unique per (UserID, BadgeID)
type UserBadgeAward struct {
	UserID    string    `json:"user_id"`
	BadgeID   string    `json:"badge_id"`
	SessionID string    `json:"session_id"`
	AwardedAt time.Time `json:"awarded_at"`
}

// HistoricalStats are aggregates over a user's completed sessions
type HistoricalStats struct {
	TotalSessions     int `json:"total_sessions"`
	VictorySessions   int `json:"victory_sessions"`
	UniqueCasesPlayed int `json:"unique_cases_played"`
}
