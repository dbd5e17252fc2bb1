package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/terra-clan/clinical-sim/internal/models"
)

// Sessions is the part of the simulation manager the cleaner needs
type Sessions interface {
	GetAbandoned(ctx context.Context, idle time.Duration) []models.SessionView
	Remove(ctx context.Context, id string) error
}

// Cleaner periodically discards sessions nobody interacts with anymore
type Cleaner struct {
	sessions     Sessions
	interval     time.Duration
	abandonAfter time.Duration
}

// NewCleaner creates a new cleanup worker
func NewCleaner(sessions Sessions, interval, abandonAfter time.Duration) *Cleaner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if abandonAfter <= 0 {
		abandonAfter = 30 * time.Minute
	}

	return &Cleaner{
		sessions:     sessions,
		interval:     interval,
		abandonAfter: abandonAfter,
	}
}

// Start begins the cleanup worker in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Cleaner) run(ctx context.Context) {
	slog.Info("cleanup worker started", "interval", c.interval, "abandon_after", c.abandonAfter)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.cleanup(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup worker stopped")
			return
		case <-ticker.C:
			c.cleanup(ctx)
		}
	}
}

// cleanup removes abandoned sessions and returns how many were removed
func (c *Cleaner) cleanup(ctx context.Context) int {
	slog.Debug("running cleanup cycle")

	abandoned := c.sessions.GetAbandoned(ctx, c.abandonAfter)
	if len(abandoned) == 0 {
		slog.Debug("no abandoned sessions found")
		return 0
	}

	slog.Info("found abandoned sessions", "count", len(abandoned))

	removed := 0
	for _, s := range abandoned {
		if err := c.sessions.Remove(ctx, s.ID); err != nil {
			slog.Error("failed to remove abandoned session",
				"error", err,
				"session_id", s.ID,
			)
			continue
		}

		slog.Info("abandoned session removed",
			"session_id", s.ID,
			"user_id", s.UserID,
			"case_id", s.CaseID,
			"status", s.Status,
			"last_update", s.UpdatedAt,
		)
		removed++
	}
	return removed
}
