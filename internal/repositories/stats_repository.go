package repositories

import (
	"context"
	"fmt"
	"time"

	"modrota/internal/database"
	"modrota/internal/models"

	"go.uber.org/zap"
)

// statsRepository owns the daily per-scope aggregates.
type statsRepository struct {
	*BaseRepository
}

// NewStatsRepository creates a new stats repository.
func NewStatsRepository(db *database.Manager, logger *zap.Logger) StatsRepository {
	return &statsRepository{BaseRepository: NewBaseRepository(db, logger)}
}

// AggregateDay rolls the day's settled badges into scope_stats rows and
// returns how many scopes were touched. Re-running the same day upserts, so
// the daily job is idempotent.
func (r *statsRepository) AggregateDay(ctx context.Context, day time.Time) (int, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `
		INSERT INTO scope_stats (
			scope_kind, scope_id, day, badges_completed, badges_abandoned,
			actions_taken, completion_rate
		)
		SELECT
			h.scope_kind, h.scope_id, $1::date,
			COUNT(*) FILTER (WHERE h.outcome = 'completed'),
			COUNT(*) FILTER (WHERE h.outcome = 'abandoned'),
			COALESCE(SUM(b.actions_taken), 0),
			COUNT(*) FILTER (WHERE h.outcome = 'completed')::float / COUNT(*)
		FROM badge_history h
		INNER JOIN badges b ON b.id = h.badge_id
		WHERE h.completed_at >= $1 AND h.completed_at < $2
			AND h.outcome IN ('completed', 'abandoned')
		GROUP BY h.scope_kind, h.scope_id
		ON CONFLICT (scope_kind, scope_id, day) DO UPDATE SET
			badges_completed = EXCLUDED.badges_completed,
			badges_abandoned = EXCLUDED.badges_abandoned,
			actions_taken = EXCLUDED.actions_taken,
			completion_rate = EXCLUDED.completion_rate`

	result, err := r.GetDB().ExecContext(ctx, query, dayStart, dayEnd)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate daily stats: %w", err)
	}
	rows, _ := result.RowsAffected()

	r.GetLogger().Info("Daily stats aggregated",
		zap.Time("day", dayStart),
		zap.Int64("scopes", rows),
	)
	return int(rows), nil
}

// GetScopeStats returns the scope's most recent daily aggregates.
func (r *statsRepository) GetScopeStats(ctx context.Context, scope models.Scope, days int) ([]*models.ScopeStats, error) {
	query := `
		SELECT id, scope_kind, scope_id, day, badges_completed, badges_abandoned,
		       actions_taken, completion_rate, created_at
		FROM scope_stats
		WHERE scope_kind = $1 AND scope_id = $2
		ORDER BY day DESC
		LIMIT $3`

	rows, err := r.GetDB().QueryContext(ctx, query, scope.Kind, scope.ID, days)
	if err != nil {
		return nil, fmt.Errorf("failed to get scope stats: %w", err)
	}
	defer rows.Close()

	var stats []*models.ScopeStats
	for rows.Next() {
		var s models.ScopeStats
		var kind string
		if err := rows.Scan(
			&s.ID, &kind, &s.Scope.ID, &s.Day, &s.BadgesCompleted,
			&s.BadgesAbandoned, &s.ActionsTaken, &s.CompletionRate, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scope stats: %w", err)
		}
		s.Scope.Kind = models.ScopeKind(kind)
		stats = append(stats, &s)
	}
	return stats, rows.Err()
}
