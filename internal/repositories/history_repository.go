package repositories

import (
	"context"
	"fmt"
	"time"

	"modrota/internal/database"
	"modrota/internal/models"

	"go.uber.org/zap"
)

// historyRepository implements HistoryRepository over postgres.
type historyRepository struct {
	*BaseRepository
}

// NewHistoryRepository creates a new history repository.
func NewHistoryRepository(db *database.Manager, logger *zap.Logger) HistoryRepository {
	return &historyRepository{BaseRepository: NewBaseRepository(db, logger)}
}

// InCooldown reports whether the user has any badge resolution in the scope
// since the cutoff. Every outcome counts, declines and timeouts included, so
// a user who turns down an offer is not re-offered the same scope until the
// cooldown lapses.
func (r *historyRepository) InCooldown(ctx context.Context, userID int64, scope models.Scope, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM badge_history
			WHERE user_id = $1 AND scope_kind = $2 AND scope_id = $3
				AND completed_at >= $4)`

	var cooling bool
	err := r.GetDB().QueryRowContext(ctx, query, userID, scope.Kind, scope.ID, since).Scan(&cooling)
	if err != nil {
		return false, fmt.Errorf("failed to check cooldown: %w", err)
	}
	return cooling, nil
}

// Leaderboard ranks users by completed duties, total actions breaking ties.
func (r *historyRepository) Leaderboard(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	query := `
		SELECT h.user_id,
		       COUNT(*) FILTER (WHERE h.outcome = 'completed') AS completed_duties,
		       COALESCE(SUM(b.actions_taken), 0) AS actions_taken
		FROM badge_history h
		INNER JOIN badges b ON b.id = h.badge_id
		GROUP BY h.user_id
		HAVING COUNT(*) FILTER (WHERE h.outcome = 'completed') > 0
		ORDER BY completed_duties DESC, actions_taken DESC
		LIMIT $1`

	rows, err := r.GetDB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []*models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.UserID, &e.CompletedDuties, &e.ActionsTaken); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
