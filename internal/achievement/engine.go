// Package achievement decides which badges a completed session earns.
package achievement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/terra-clan/clinical-sim/internal/models"
	"github.com/terra-clan/clinical-sim/internal/simerr"
)

// Input is everything a criterion may look at
type Input struct {
	Outcome models.SessionOutcome
	Stats   models.HistoricalStats
}

type evaluator func(c models.Criterion, in Input) bool

func won(in Input) bool {
	return in.Outcome.Status == models.StatusWon
}

// evaluators holds one rule per criterion kind. A new badge type needs one entry here.
var evaluators = map[models.CriterionKind]evaluator{
	models.CriterionFirstVictory: func(c models.Criterion, in Input) bool {
		return won(in) && in.Stats.VictorySessions == 1
	},
	models.CriterionNoHints: func(c models.Criterion, in Input) bool {
		return won(in) && !in.Outcome.HintsUsed
	},
	models.CriterionSpeedRecord: func(c models.Criterion, in Input) bool {
		return won(in) && float64(in.Outcome.DurationTicks) <= c.Threshold
	},
	models.CriterionAllGoals: func(c models.Criterion, in Input) bool {
		return won(in) && in.Outcome.GoalsTotal > 0 && in.Outcome.GoalsAchieved == in.Outcome.GoalsTotal
	},
	models.CriterionSessionCount: func(c models.Criterion, in Input) bool {
		return float64(in.Stats.TotalSessions) >= c.Threshold
	},
	models.CriterionHighHP: func(c models.Criterion, in Input) bool {
		return won(in) && in.Outcome.MinHPObserved >= c.Threshold
	},
	models.CriterionDistinctCases: func(c models.Criterion, in Input) bool {
		return float64(in.Stats.UniqueCasesPlayed) >= c.Threshold
	},
}

// Supported reports whether kind has an evaluator
func Supported(kind models.CriterionKind) bool {
	_, ok := evaluators[kind]
	return ok
}

// ValidateCatalog rejects badges with unknown criteria or duplicate ids
func ValidateCatalog(badges []models.Badge) error {
	seen := make(map[string]bool, len(badges))
	for _, b := range badges {
		if b.ID == "" {
			return simerr.New(simerr.KindInvalidCaseData, "badge id is required")
		}
		if seen[b.ID] {
			return simerr.New(simerr.KindInvalidCaseData, "duplicate badge id %q", b.ID)
		}
		seen[b.ID] = true
		if !Supported(b.Criterion.Kind) {
			return simerr.New(simerr.KindInvalidCaseData, "badge %q has unknown criterion %q", b.ID, b.Criterion.Kind)
		}
	}
	return nil
}

// Evaluate returns the badges not in held whose criterion is satisfied.
// Every badge is judged against the same input, independent of the others.
func Evaluate(catalog []models.Badge, held map[string]bool, in Input) []models.Badge {
	var out []models.Badge
	for _, b := range catalog {
		if held[b.ID] {
			continue
		}
		eval, ok := evaluators[b.Criterion.Kind]
		if !ok {
			continue
		}
		if eval(b.Criterion, in) {
			out = append(out, b)
		}
	}
	return out
}

// Store is the persistence boundary the engine reads from and awards through.
// AwardBadge must be at-most-once per (user, badge) and report whether it inserted.
type Store interface {
	UserStats(ctx context.Context, userID string) (models.HistoricalStats, error)
	HeldBadges(ctx context.Context, userID string) (map[string]bool, error)
	AwardBadge(ctx context.Context, award models.UserBadgeAward) (bool, error)
}

// Engine evaluates and awards badges after a session completes
type Engine struct {
	catalog []models.Badge
	store   Store
	now     func() time.Time
}

// NewEngine creates an engine over a validated badge catalog
func NewEngine(catalog []models.Badge, store Store) (*Engine, error) {
	if err := ValidateCatalog(catalog); err != nil {
		return nil, err
	}
	c := make([]models.Badge, len(catalog))
	copy(c, catalog)
	return &Engine{catalog: c, store: store, now: time.Now}, nil
}

// Catalog returns the badge catalog
func (e *Engine) Catalog() []models.Badge {
	out := make([]models.Badge, len(e.catalog))
	copy(out, e.catalog)
	return out
}

// Process evaluates a completed session and returns the badges newly awarded.
// Stats are read after the outcome has been persisted, so they include this session.
// Badges already held, or inserted concurrently by another completion, are skipped silently.
func (e *Engine) Process(ctx context.Context, outcome models.SessionOutcome) ([]models.Badge, error) {
	stats, err := e.store.UserStats(ctx, outcome.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user stats: %w", err)
	}

	held, err := e.store.HeldBadges(ctx, outcome.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load held badges: %w", err)
	}

	candidates := Evaluate(e.catalog, held, Input{Outcome: outcome, Stats: stats})

	var awarded []models.Badge
	for _, b := range candidates {
		inserted, err := e.store.AwardBadge(ctx, models.UserBadgeAward{
			UserID:    outcome.UserID,
			BadgeID:   b.ID,
			SessionID: outcome.SessionID,
			AwardedAt: e.now(),
		})
		if err != nil {
			return awarded, fmt.Errorf("failed to award badge %s: %w", b.ID, err)
		}
		if !inserted {
			slog.Debug("badge already held", "user_id", outcome.UserID, "badge_id", b.ID)
			continue
		}
		awarded = append(awarded, b)
	}

	if len(awarded) > 0 {
		slog.Info("badges awarded",
			"user_id", outcome.UserID,
			"session_id", outcome.SessionID,
			"count", len(awarded),
		)
	}

	return awarded, nil
}
