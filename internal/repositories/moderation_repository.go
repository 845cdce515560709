package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"modrota/internal/database"
	"modrota/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// moderationRepository implements ModerationRepository over postgres.
type moderationRepository struct {
	*BaseRepository
}

// NewModerationRepository creates a new moderation repository.
func NewModerationRepository(db *database.Manager, logger *zap.Logger) ModerationRepository {
	return &moderationRepository{BaseRepository: NewBaseRepository(db, logger)}
}

// QueueForScope assembles the review queue: unresolved flagged content in the
// scope (direct group match, or any group under the topic for topic badges),
// most-flagged first, oldest-flagged breaking ties. Resolution status is the
// sole exclusion criterion; content other badges already decided on stays in
// the queue as long as new flags remain unresolved.
func (r *moderationRepository) QueueForScope(ctx context.Context, scope models.Scope, limit int) ([]*models.QueueItem, error) {
	query := `
		SELECT
			f.content_type, f.content_id, c.author_id,
			COUNT(*) AS flag_count,
			ARRAY_AGG(f.reason ORDER BY f.created_at) AS reasons,
			MIN(f.created_at) AS first_flagged
		FROM content_flags f
		INNER JOIN contents c
			ON c.content_type = f.content_type AND c.content_id = f.content_id
		INNER JOIN groups g ON g.id = c.group_id
		WHERE f.resolved = false
			AND c.hidden = false
			AND (
				($1 = 'group' AND c.group_id = $2) OR
				($1 = 'topic' AND g.topic_id = $2)
			)
		GROUP BY f.content_type, f.content_id, c.author_id
		ORDER BY flag_count DESC, first_flagged ASC
		LIMIT $3`

	rows, err := r.GetDB().QueryContext(ctx, query, scope.Kind, scope.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble review queue: %w", err)
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		var item models.QueueItem
		var reasons pq.StringArray
		if err := rows.Scan(
			&item.Content.Type, &item.Content.ID, &item.AuthorID,
			&item.FlagCount, &reasons, &item.FirstFlagged,
		); err != nil {
			return nil, fmt.Errorf("failed to scan queue item: %w", err)
		}
		item.FlagReasons = reasons
		items = append(items, &item)
	}
	return items, rows.Err()
}

// PriorActions returns decisions by other badges on the same content, newest
// first, for reviewer continuity.
func (r *moderationRepository) PriorActions(ctx context.Context, content models.ContentRef, excludeBadgeID int64) ([]models.ModerationAction, error) {
	query := `
		SELECT id, badge_id, content_type, content_id, decision, reason,
		       flag_count, ledger_ref, created_at
		FROM moderation_actions
		WHERE content_type = $1 AND content_id = $2 AND badge_id != $3
		ORDER BY created_at DESC
		LIMIT 20`

	rows, err := r.GetDB().QueryContext(ctx, query, content.Type, content.ID, excludeBadgeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list prior actions: %w", err)
	}
	defer rows.Close()

	var actions []models.ModerationAction
	for rows.Next() {
		var a models.ModerationAction
		if err := rows.Scan(
			&a.ID, &a.BadgeID, &a.Content.Type, &a.Content.ID, &a.Decision,
			&a.Reason, &a.FlagCount, &a.LedgerRef, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan prior action: %w", err)
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}

// SubmitDecision is the atomic decision unit of work. The badge row lock
// guards holder/status preconditions; the content row lock serializes
// concurrent decisions on the same content so exactly one flag resolution
// wins and the loser observes ErrAlreadyResolved.
func (r *moderationRepository) SubmitDecision(ctx context.Context, d *DecisionInput) (*models.ModerationAction, error) {
	var action *models.ModerationAction

	err := r.WithTransaction(ctx, func(tx *sql.Tx) error {
		badge, err := scanBadge(tx.QueryRowContext(ctx,
			`SELECT `+badgeColumns+` FROM badges WHERE id = $1 FOR UPDATE`, d.BadgeID))
		if err != nil {
			if r.IsNotFound(err) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock badge: %w", err)
		}
		if badge.Status != models.BadgeActive || badge.HolderID != d.HolderID {
			return ErrStaleState
		}

		var authorID int64
		var hidden bool
		err = tx.QueryRowContext(ctx,
			`SELECT author_id, hidden FROM contents
			 WHERE content_type = $1 AND content_id = $2
			 FOR UPDATE`,
			d.Content.Type, d.Content.ID,
		).Scan(&authorID, &hidden)
		if err != nil {
			if r.IsNotFound(err) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock content: %w", err)
		}

		var flagCount int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM content_flags
			 WHERE content_type = $1 AND content_id = $2 AND resolved = false`,
			d.Content.Type, d.Content.ID,
		).Scan(&flagCount); err != nil {
			return fmt.Errorf("failed to count unresolved flags: %w", err)
		}
		if flagCount == 0 {
			return ErrAlreadyResolved
		}

		a := &models.ModerationAction{
			BadgeID:   d.BadgeID,
			Content:   d.Content,
			Decision:  d.Decision,
			Reason:    d.Reason,
			FlagCount: flagCount,
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO moderation_actions (badge_id, content_type, content_id, decision, reason, flag_count)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING id, created_at`,
			a.BadgeID, a.Content.Type, a.Content.ID, a.Decision, a.Reason, a.FlagCount,
		).Scan(&a.ID, &a.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to record moderation action: %w", err)
		}

		if d.Decision == models.DecisionRemove {
			if _, err := tx.ExecContext(ctx,
				`UPDATE contents SET hidden = true
				 WHERE content_type = $1 AND content_id = $2`,
				d.Content.Type, d.Content.ID,
			); err != nil {
				return fmt.Errorf("failed to hide content: %w", err)
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE users SET reputation = reputation - $2 WHERE id = $1`,
				authorID, d.RemovalRepDebit,
			); err != nil {
				return fmt.Errorf("failed to debit author reputation: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE content_flags SET resolved = true
			 WHERE content_type = $1 AND content_id = $2 AND resolved = false`,
			d.Content.Type, d.Content.ID,
		); err != nil {
			return fmt.Errorf("failed to resolve flags: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE badges SET actions_taken = actions_taken + 1, updated_at = NOW()
			 WHERE id = $1`,
			d.BadgeID,
		); err != nil {
			return fmt.Errorf("failed to increment actions taken: %w", err)
		}

		action = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.GetLogger().Info("Decision recorded",
		zap.Int64("badge_id", action.BadgeID),
		zap.String("content_type", action.Content.Type),
		zap.Int64("content_id", action.Content.ID),
		zap.String("decision", string(action.Decision)),
		zap.Int("flag_count", action.FlagCount),
	)
	return action, nil
}

// AttachLedgerRef stores the best-effort ledger reference after the decision
// transaction has committed.
func (r *moderationRepository) AttachLedgerRef(ctx context.Context, actionID int64, ref string) error {
	_, err := r.GetDB().ExecContext(ctx,
		`UPDATE moderation_actions SET ledger_ref = $2 WHERE id = $1`, actionID, ref)
	if err != nil {
		return fmt.Errorf("failed to attach ledger ref: %w", err)
	}
	return nil
}
