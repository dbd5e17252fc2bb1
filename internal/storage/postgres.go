package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/clinical-sim/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	} else {
		poolConfig.MaxConns = 25
	}

	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	} else {
		poolConfig.MinConns = 2
	}

	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	} else {
		poolConfig.MaxConnLifetime = 30 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// Pool exposes the connection pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// SaveOutcome stores the outcome of one run. A second save for the same run is
// ignored and reported as not inserted.
func (r *PostgresRepository) SaveOutcome(ctx context.Context, out models.SessionOutcome) (bool, error) {
	query := `
		INSERT INTO session_outcomes (run_id, session_id, user_id, case_id, mode, status, reason, duration_ticks, min_hp_observed, hints_used, goals_achieved, goals_total, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (run_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		out.RunID,
		out.SessionID,
		out.UserID,
		out.CaseID,
		string(out.Mode),
		string(out.Status),
		nullString(string(out.Reason)),
		out.DurationTicks,
		out.MinHPObserved,
		out.HintsUsed,
		out.GoalsAchieved,
		out.GoalsTotal,
		out.EndedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to save outcome: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

const outcomeColumns = `run_id, session_id, user_id, case_id, mode, status, reason, duration_ticks, min_hp_observed, hints_used, goals_achieved, goals_total, ended_at`

// GetOutcome retrieves the outcome of one run
func (r *PostgresRepository) GetOutcome(ctx context.Context, runID string) (*models.SessionOutcome, error) {
	query := `SELECT ` + outcomeColumns + ` FROM session_outcomes WHERE run_id = $1`

	out, err := scanOutcome(r.pool.QueryRow(ctx, query, runID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get outcome: %w", err)
	}
	return out, nil
}

// ListOutcomes returns a user's outcomes, newest first
func (r *PostgresRepository) ListOutcomes(ctx context.Context, userID string, filters OutcomeFilters) ([]models.SessionOutcome, error) {
	query := `SELECT ` + outcomeColumns + ` FROM session_outcomes WHERE user_id = $1`
	args := []interface{}{userID}
	argNum := 2

	if filters.CaseID != "" {
		query += fmt.Sprintf(" AND case_id = $%d", argNum)
		args = append(args, filters.CaseID)
		argNum++
	}

	if filters.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, string(filters.Status))
		argNum++
	}

	query += " ORDER BY ended_at DESC"

	if filters.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filters.Limit)
		argNum++
	}

	if filters.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, filters.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []models.SessionOutcome
	for rows.Next() {
		out, err := scanOutcome(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		outcomes = append(outcomes, *out)
	}

	return outcomes, rows.Err()
}

// UserStats aggregates a user's completed sessions
func (r *PostgresRepository) UserStats(ctx context.Context, userID string) (models.HistoricalStats, error) {
	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'won'),
			COUNT(DISTINCT case_id)
		FROM session_outcomes
		WHERE user_id = $1
	`

	var stats models.HistoricalStats
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&stats.TotalSessions,
		&stats.VictorySessions,
		&stats.UniqueCasesPlayed,
	)
	if err != nil {
		return models.HistoricalStats{}, fmt.Errorf("failed to get user stats: %w", err)
	}

	return stats, nil
}

// HeldBadges returns the ids of badges the user already holds
func (r *PostgresRepository) HeldBadges(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := r.pool.Query(ctx, `SELECT badge_id FROM user_badges WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get held badges: %w", err)
	}
	defer rows.Close()

	held := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		held[id] = true
	}

	return held, rows.Err()
}

// AwardBadge inserts an award. The (user_id, badge_id) constraint makes this
// at-most-once under concurrent completions; a duplicate reports false.
func (r *PostgresRepository) AwardBadge(ctx context.Context, award models.UserBadgeAward) (bool, error) {
	query := `
		INSERT INTO user_badges (user_id, badge_id, session_id, awarded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, query,
		award.UserID,
		award.BadgeID,
		nullString(award.SessionID),
		award.AwardedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to award badge: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ListAwards returns a user's badges in the order they were earned
func (r *PostgresRepository) ListAwards(ctx context.Context, userID string) ([]models.UserBadgeAward, error) {
	query := `
		SELECT user_id, badge_id, session_id, awarded_at
		FROM user_badges
		WHERE user_id = $1
		ORDER BY awarded_at
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list awards: %w", err)
	}
	defer rows.Close()

	var awards []models.UserBadgeAward
	for rows.Next() {
		var a models.UserBadgeAward
		var sessionID sql.NullString
		if err := rows.Scan(&a.UserID, &a.BadgeID, &sessionID, &a.AwardedAt); err != nil {
			return nil, fmt.Errorf("failed to scan award: %w", err)
		}
		a.SessionID = sessionID.String
		awards = append(awards, a)
	}

	return awards, rows.Err()
}

func scanOutcome(row pgx.Row) (*models.SessionOutcome, error) {
	var out models.SessionOutcome
	var mode, status string
	var reason sql.NullString

	err := row.Scan(
		&out.RunID,
		&out.SessionID,
		&out.UserID,
		&out.CaseID,
		&mode,
		&status,
		&reason,
		&out.DurationTicks,
		&out.MinHPObserved,
		&out.HintsUsed,
		&out.GoalsAchieved,
		&out.GoalsTotal,
		&out.EndedAt,
	)
	if err != nil {
		return nil, err
	}

	out.Mode = models.Mode(mode)
	out.Status = models.SessionStatus(status)
	out.Reason = models.TerminalReason(reason.String)
	return &out, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
