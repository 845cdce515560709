package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"modrota/internal/database"
	"modrota/internal/models"

	"go.uber.org/zap"
)

// badgeRepository implements BadgeRepository over postgres.
type badgeRepository struct {
	*BaseRepository
}

// NewBadgeRepository creates a new badge repository.
func NewBadgeRepository(db *database.Manager, logger *zap.Logger) BadgeRepository {
	return &badgeRepository{BaseRepository: NewBaseRepository(db, logger)}
}

const badgeColumns = `
	id, scope_kind, scope_id, holder_id, status, duty_days,
	start_date, end_date, actions_taken, min_actions_required,
	ledger_ref, created_at, updated_at`

func scanBadge(scanner interface{ Scan(...interface{}) error }) (*models.Badge, error) {
	var b models.Badge
	var kind string
	err := scanner.Scan(
		&b.ID, &kind, &b.Scope.ID, &b.HolderID, &b.Status, &b.DutyDays,
		&b.StartDate, &b.EndDate, &b.ActionsTaken, &b.MinActionsRequired,
		&b.LedgerRef, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	b.Scope.Kind = models.ScopeKind(kind)
	return &b, nil
}

// GetByID retrieves a badge by ID.
func (r *badgeRepository) GetByID(ctx context.Context, id int64) (*models.Badge, error) {
	query := `SELECT ` + badgeColumns + ` FROM badges WHERE id = $1`

	badge, err := scanBadge(r.GetDB().QueryRowContext(ctx, query, id))
	if err != nil {
		if r.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get badge: %w", err)
	}
	return badge, nil
}

// GetOpenForUser returns the user's offered or active badge, if any. The
// partial unique index guarantees at most one across all scopes.
func (r *badgeRepository) GetOpenForUser(ctx context.Context, userID int64) (*models.Badge, error) {
	query := `
		SELECT ` + badgeColumns + `
		FROM badges
		WHERE holder_id = $1 AND status IN ('offered', 'active')`

	badge, err := scanBadge(r.GetDB().QueryRowContext(ctx, query, userID))
	if err != nil {
		if r.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get open badge for user: %w", err)
	}
	return badge, nil
}

// CountOpenForScope counts badges holding capacity in the scope.
func (r *badgeRepository) CountOpenForScope(ctx context.Context, scope models.Scope) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM badges
		WHERE scope_kind = $1 AND scope_id = $2 AND status IN ('offered', 'active')`

	var count int
	if err := r.GetDB().QueryRowContext(ctx, query, scope.Kind, scope.ID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count open badges: %w", err)
	}
	return count, nil
}

// CreateOffer inserts an offered badge plus its invitation after re-checking
// capacity and the single-open-badge invariant. The advisory lock serializes
// deficit checks per scope so two concurrent sweeps cannot both fill the same
// deficit unit.
func (r *badgeRepository) CreateOffer(ctx context.Context, desired int, badge *models.Badge, inv *models.Invitation) error {
	return r.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`SELECT pg_advisory_xact_lock($1)`,
			scopeLockKey(string(badge.Scope.Kind), badge.Scope.ID),
		); err != nil {
			return fmt.Errorf("failed to acquire scope lock: %w", err)
		}

		var current int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM badges
			 WHERE scope_kind = $1 AND scope_id = $2 AND status IN ('offered', 'active')`,
			badge.Scope.Kind, badge.Scope.ID,
		).Scan(&current); err != nil {
			return fmt.Errorf("failed to recount open badges: %w", err)
		}
		if current >= desired {
			return ErrCapacityRestored
		}

		var holderBusy bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (
				SELECT 1 FROM badges
				WHERE holder_id = $1 AND status IN ('offered', 'active'))`,
			badge.HolderID,
		).Scan(&holderBusy); err != nil {
			return fmt.Errorf("failed to check holder badges: %w", err)
		}
		if holderBusy {
			return ErrDuplicateOpenBadge
		}

		err := tx.QueryRowContext(ctx,
			`INSERT INTO badges (
				scope_kind, scope_id, holder_id, status, duty_days, min_actions_required
			) VALUES ($1, $2, $3, 'offered', $4, $5)
			RETURNING id, created_at, updated_at`,
			badge.Scope.Kind, badge.Scope.ID, badge.HolderID,
			badge.DutyDays, badge.MinActionsRequired,
		).Scan(&badge.ID, &badge.CreatedAt, &badge.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert badge: %w", err)
		}
		badge.Status = models.BadgeOffered

		inv.BadgeID = badge.ID
		err = tx.QueryRowContext(ctx,
			`INSERT INTO invitations (badge_id, user_id, expires_at)
			 VALUES ($1, $2, $3)
			 RETURNING id, invited_at`,
			inv.BadgeID, inv.UserID, inv.ExpiresAt,
		).Scan(&inv.ID, &inv.InvitedAt)
		if err != nil {
			return fmt.Errorf("failed to insert invitation: %w", err)
		}
		inv.Scope = badge.Scope

		r.GetLogger().Info("Badge offered",
			zap.Int64("badge_id", badge.ID),
			zap.String("scope", badge.Scope.String()),
			zap.Int64("holder_id", badge.HolderID),
			zap.Int("duty_days", badge.DutyDays),
		)
		return nil
	})
}

// DueForSettlement lists active badges whose duty window has closed.
func (r *badgeRepository) DueForSettlement(ctx context.Context, now time.Time) ([]*models.Badge, error) {
	query := `
		SELECT ` + badgeColumns + `
		FROM badges
		WHERE status = 'active' AND end_date <= $1
		ORDER BY end_date ASC
		LIMIT 1000`

	rows, err := r.GetDB().QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due badges: %w", err)
	}
	defer rows.Close()

	var badges []*models.Badge
	for rows.Next() {
		badge, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due badge: %w", err)
		}
		badges = append(badges, badge)
	}
	return badges, rows.Err()
}

// Settle terminates one due badge under row lock in its own transaction.
// A badge that is no longer active, or not yet due, surfaces ErrStaleState
// so concurrent sweeps settle each badge exactly once.
func (r *badgeRepository) Settle(ctx context.Context, badgeID int64, now time.Time) (*SettlementResult, error) {
	var result *SettlementResult

	err := r.WithTransaction(ctx, func(tx *sql.Tx) error {
		badge, err := scanBadge(tx.QueryRowContext(ctx,
			`SELECT `+badgeColumns+` FROM badges WHERE id = $1 FOR UPDATE`, badgeID))
		if err != nil {
			if r.IsNotFound(err) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock badge: %w", err)
		}

		if !badge.IsDue(now) {
			return ErrStaleState
		}

		outcome := models.OutcomeAbandoned
		if badge.QuotaMet() {
			outcome = models.OutcomeCompleted
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE badges SET status = 'expired', updated_at = $2 WHERE id = $1`,
			badge.ID, now,
		); err != nil {
			return fmt.Errorf("failed to expire badge: %w", err)
		}
		badge.Status = models.BadgeExpired

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO badge_history (user_id, badge_id, scope_kind, scope_id, outcome, completed_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			badge.HolderID, badge.ID, badge.Scope.Kind, badge.Scope.ID, outcome, now,
		); err != nil {
			return fmt.Errorf("failed to archive badge history: %w", err)
		}

		result = &SettlementResult{Badge: badge, Outcome: outcome}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.GetLogger().Info("Badge settled",
		zap.Int64("badge_id", result.Badge.ID),
		zap.String("scope", result.Badge.Scope.String()),
		zap.String("outcome", string(result.Outcome)),
		zap.Int("actions_taken", result.Badge.ActionsTaken),
		zap.Int("min_actions_required", result.Badge.MinActionsRequired),
	)
	return result, nil
}

// AttachLedgerRef stores the reward transfer reference after settlement has
// committed.
func (r *badgeRepository) AttachLedgerRef(ctx context.Context, badgeID int64, ref string) error {
	_, err := r.GetDB().ExecContext(ctx,
		`UPDATE badges SET ledger_ref = $2 WHERE id = $1`, badgeID, ref)
	if err != nil {
		return fmt.Errorf("failed to attach ledger ref: %w", err)
	}
	return nil
}

// Pass terminates an active badge early with an abandoned outcome. The
// reputation penalty debits in the same transaction so a failed pass never
// leaves a half-applied penalty.
func (r *badgeRepository) Pass(ctx context.Context, badgeID, holderID int64, reason string, penalty int, now time.Time) (*models.Badge, error) {
	var passed *models.Badge

	err := r.WithTransaction(ctx, func(tx *sql.Tx) error {
		badge, err := scanBadge(tx.QueryRowContext(ctx,
			`SELECT `+badgeColumns+` FROM badges WHERE id = $1 FOR UPDATE`, badgeID))
		if err != nil {
			if r.IsNotFound(err) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to lock badge: %w", err)
		}

		if badge.Status != models.BadgeActive || badge.HolderID != holderID {
			return ErrStaleState
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE badges SET status = 'abandoned', updated_at = $2 WHERE id = $1`,
			badge.ID, now,
		); err != nil {
			return fmt.Errorf("failed to abandon badge: %w", err)
		}
		badge.Status = models.BadgeAbandoned

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO badge_history (user_id, badge_id, scope_kind, scope_id, outcome, reason, completed_at)
			 VALUES ($1, $2, $3, $4, 'abandoned', $5, $6)`,
			badge.HolderID, badge.ID, badge.Scope.Kind, badge.Scope.ID, reason, now,
		); err != nil {
			return fmt.Errorf("failed to archive badge history: %w", err)
		}

		if penalty > 0 {
			if _, err := tx.ExecContext(ctx,
				`UPDATE users SET reputation = reputation - $2 WHERE id = $1`,
				badge.HolderID, penalty,
			); err != nil {
				return fmt.Errorf("failed to apply pass penalty: %w", err)
			}
		}

		passed = badge
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.GetLogger().Info("Badge passed",
		zap.Int64("badge_id", passed.ID),
		zap.Int64("holder_id", passed.HolderID),
		zap.String("scope", passed.Scope.String()),
	)
	return passed, nil
}
