package storage

import (
	"context"

	"github.com/terra-clan/clinical-sim/internal/models"
)

// OutcomeFilters narrows an outcome listing
type OutcomeFilters struct {
	CaseID string
	Status models.SessionStatus
	Limit  int
	Offset int
}

// Repository is the persistence sink for completed sessions and badge awards
type Repository interface {
	// Outcomes
	SaveOutcome(ctx context.Context, out models.SessionOutcome) (bool, error)
	GetOutcome(ctx context.Context, runID string) (*models.SessionOutcome, error)
	ListOutcomes(ctx context.Context, userID string, filters OutcomeFilters) ([]models.SessionOutcome, error)
	UserStats(ctx context.Context, userID string) (models.HistoricalStats, error)

	// Badges
	HeldBadges(ctx context.Context, userID string) (map[string]bool, error)
	AwardBadge(ctx context.Context, award models.UserBadgeAward) (bool, error)
	ListAwards(ctx context.Context, userID string) ([]models.UserBadgeAward, error)

	// Health
	Ping(ctx context.Context) error
	Close() error
}
