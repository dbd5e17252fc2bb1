package storage

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/clinical-sim/internal/models"
)

// setupRepository connects to TEST_DATABASE_DSN and applies migrations
func setupRepository(t *testing.T) *PostgresRepository {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN not set, skipping")
	}

	ctx := context.Background()
	repo, err := NewPostgresRepository(ctx, PostgresConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	require.NoError(t, RunMigrationsFromDir(ctx, repo.Pool(), "../../migrations"))
	return repo
}

func outcome(userID, caseID string, status models.SessionStatus) models.SessionOutcome {
	return models.SessionOutcome{
		RunID:         uuid.NewString(),
		SessionID:     uuid.NewString(),
		UserID:        userID,
		CaseID:        caseID,
		Mode:          models.ModePractice,
		Status:        status,
		DurationTicks: 42,
		MinHPObserved: 61.5,
		GoalsAchieved: 2,
		GoalsTotal:    3,
		EndedAt:       time.Now().UTC().Truncate(time.Millisecond),
	}
}

func TestSaveOutcomeIsIdempotent(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	userID := uuid.NewString()

	out := outcome(userID, "dka", models.StatusWon)
	out.Reason = models.ReasonGoalsReached

	inserted, err := repo.SaveOutcome(ctx, out)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = repo.SaveOutcome(ctx, out)
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := repo.GetOutcome(ctx, out.RunID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.ReasonGoalsReached, got.Reason)
	assert.Equal(t, 61.5, got.MinHPObserved)

	missing, err := repo.GetOutcome(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestReplayedSessionStoresEachRun(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	userID := uuid.NewString()

	first := outcome(userID, "dka", models.StatusLost)
	second := outcome(userID, "dka", models.StatusWon)
	second.SessionID = first.SessionID

	for _, o := range []models.SessionOutcome{first, second} {
		inserted, err := repo.SaveOutcome(ctx, o)
		require.NoError(t, err)
		assert.True(t, inserted)
	}

	stats, err := repo.UserStats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 1, stats.VictorySessions)
}

func TestUserStatsIncludeEverySession(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	userID := uuid.NewString()

	for _, o := range []models.SessionOutcome{
		outcome(userID, "dka", models.StatusWon),
		outcome(userID, "dka", models.StatusLost),
		outcome(userID, "septic-hypotension", models.StatusWon),
	} {
		_, err := repo.SaveOutcome(ctx, o)
		require.NoError(t, err)
	}

	stats, err := repo.UserStats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.HistoricalStats{TotalSessions: 3, VictorySessions: 2, UniqueCasesPlayed: 2}, stats)

	won, err := repo.ListOutcomes(ctx, userID, OutcomeFilters{Status: models.StatusWon})
	require.NoError(t, err)
	assert.Len(t, won, 2)
}

func TestAwardBadgeAtMostOnceUnderConcurrency(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	userID := uuid.NewString()

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.AwardBadge(ctx, models.UserBadgeAward{
				UserID:    userID,
				BadgeID:   "unassisted",
				SessionID: uuid.NewString(),
				AwardedAt: time.Now(),
			})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)

	held, err := repo.HeldBadges(ctx, userID)
	require.NoError(t, err)
	assert.True(t, held["unassisted"])

	awards, err := repo.ListAwards(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, awards, 1)
}
