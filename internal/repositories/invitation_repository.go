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

// invitationRepository implements InvitationRepository over postgres.
type invitationRepository struct {
	*BaseRepository
}

// NewInvitationRepository creates a new invitation repository.
func NewInvitationRepository(db *database.Manager, logger *zap.Logger) InvitationRepository {
	return &invitationRepository{BaseRepository: NewBaseRepository(db, logger)}
}

const invitationColumns = `
	i.id, i.badge_id, i.user_id, i.invited_at, i.expires_at, i.response,
	b.scope_kind, b.scope_id`

func scanInvitation(scanner interface{ Scan(...interface{}) error }) (*models.Invitation, error) {
	var inv models.Invitation
	var kind string
	var response sql.NullString
	err := scanner.Scan(
		&inv.ID, &inv.BadgeID, &inv.UserID, &inv.InvitedAt, &inv.ExpiresAt, &response,
		&kind, &inv.Scope.ID,
	)
	if err != nil {
		return nil, err
	}
	if response.Valid {
		resp := models.InvitationResponse(response.String)
		inv.Response = &resp
	}
	inv.Scope.Kind = models.ScopeKind(kind)
	return &inv, nil
}

// GetByID retrieves an invitation with its badge's scope.
func (r *invitationRepository) GetByID(ctx context.Context, id int64) (*models.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations i
		INNER JOIN badges b ON i.badge_id = b.id
		WHERE i.id = $1`

	inv, err := scanInvitation(r.GetDB().QueryRowContext(ctx, query, id))
	if err != nil {
		if r.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return inv, nil
}

// GetPendingForUser returns the user's unanswered, unexpired invitation.
func (r *invitationRepository) GetPendingForUser(ctx context.Context, userID int64, now time.Time) (*models.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations i
		INNER JOIN badges b ON i.badge_id = b.id
		WHERE i.user_id = $1 AND i.response IS NULL AND i.expires_at > $2
		ORDER BY i.invited_at DESC
		LIMIT 1`

	inv, err := scanInvitation(r.GetDB().QueryRowContext(ctx, query, userID, now))
	if err != nil {
		if r.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get pending invitation: %w", err)
	}
	return inv, nil
}

// Accept activates the badge behind an invitation. The invitation and badge
// rows are locked together; whichever of accept and the timeout sweep commits
// first wins, and the loser's precondition check fails with ErrStaleState.
func (r *invitationRepository) Accept(ctx context.Context, invitationID, userID int64, now time.Time) (*models.Badge, error) {
	var accepted *models.Badge

	err := r.WithTransaction(ctx, func(tx *sql.Tx) error {
		inv, err := r.lockInvitation(ctx, tx, invitationID)
		if err != nil {
			return err
		}

		if inv.UserID != userID {
			return ErrStaleState
		}
		if !inv.IsPending(now) {
			return ErrStaleState
		}

		badge, err := scanBadge(tx.QueryRowContext(ctx,
			`SELECT `+badgeColumns+` FROM badges WHERE id = $1 FOR UPDATE`, inv.BadgeID))
		if err != nil {
			return fmt.Errorf("failed to lock badge: %w", err)
		}
		if badge.Status != models.BadgeOffered {
			return ErrStaleState
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE invitations SET response = 'accepted' WHERE id = $1`, inv.ID,
		); err != nil {
			return fmt.Errorf("failed to mark invitation accepted: %w", err)
		}

		endDate := now.Add(time.Duration(badge.DutyDays) * 24 * time.Hour)
		if _, err := tx.ExecContext(ctx,
			`UPDATE badges
			 SET status = 'active', start_date = $2, end_date = $3, updated_at = $2
			 WHERE id = $1`,
			badge.ID, now, endDate,
		); err != nil {
			return fmt.Errorf("failed to activate badge: %w", err)
		}

		badge.Status = models.BadgeActive
		badge.StartDate = &now
		badge.EndDate = &endDate
		accepted = badge
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.GetLogger().Info("Invitation accepted",
		zap.Int64("invitation_id", invitationID),
		zap.Int64("badge_id", accepted.ID),
		zap.Int64("user_id", userID),
		zap.Timep("end_date", accepted.EndDate),
	)
	return accepted, nil
}

// Decline resolves an invitation with "declined" or "timeout" and declines
// its badge. userID 0 skips the candidate check (timeout sweep path).
func (r *invitationRepository) Decline(ctx context.Context, invitationID, userID int64, response models.InvitationResponse, now time.Time) (*models.Badge, error) {
	var declined *models.Badge

	err := r.WithTransaction(ctx, func(tx *sql.Tx) error {
		inv, err := r.lockInvitation(ctx, tx, invitationID)
		if err != nil {
			return err
		}

		if userID != 0 && inv.UserID != userID {
			return ErrStaleState
		}
		if inv.Response != nil {
			return ErrStaleState
		}
		// A user declining after expiry is folded into the timeout outcome
		// by the sweep; the explicit decline path requires a live window.
		if response == models.InvitationDeclined && !inv.ExpiresAt.After(now) {
			return ErrStaleState
		}

		badge, err := scanBadge(tx.QueryRowContext(ctx,
			`SELECT `+badgeColumns+` FROM badges WHERE id = $1 FOR UPDATE`, inv.BadgeID))
		if err != nil {
			return fmt.Errorf("failed to lock badge: %w", err)
		}
		if badge.Status != models.BadgeOffered {
			return ErrStaleState
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE invitations SET response = $2 WHERE id = $1`, inv.ID, response,
		); err != nil {
			return fmt.Errorf("failed to mark invitation %s: %w", response, err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE badges SET status = 'declined', updated_at = $2 WHERE id = $1`,
			badge.ID, now,
		); err != nil {
			return fmt.Errorf("failed to decline badge: %w", err)
		}

		// Turning down an offer holds the same-scope cooldown, so the
		// backfill cannot hand the slot straight back to the same user.
		outcome := models.OutcomeDeclined
		if response == models.InvitationTimeout {
			outcome = models.OutcomeTimeout
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO badge_history (user_id, badge_id, scope_kind, scope_id, outcome, completed_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			inv.UserID, badge.ID, badge.Scope.Kind, badge.Scope.ID, outcome, now,
		); err != nil {
			return fmt.Errorf("failed to archive badge history: %w", err)
		}

		badge.Status = models.BadgeDeclined
		declined = badge
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.GetLogger().Info("Invitation resolved",
		zap.Int64("invitation_id", invitationID),
		zap.Int64("badge_id", declined.ID),
		zap.String("response", string(response)),
	)
	return declined, nil
}

// ExpiredPending lists unanswered invitations past their expiry.
func (r *invitationRepository) ExpiredPending(ctx context.Context, now time.Time) ([]*models.Invitation, error) {
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations i
		INNER JOIN badges b ON i.badge_id = b.id
		WHERE i.response IS NULL AND i.expires_at <= $1 AND b.status = 'offered'
		ORDER BY i.expires_at ASC
		LIMIT 1000`

	rows, err := r.GetDB().QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

func (r *invitationRepository) lockInvitation(ctx context.Context, tx *sql.Tx, id int64) (*models.Invitation, error) {
	// Lock ordering is invitation first, then badge, on every path that
	// touches both rows.
	query := `
		SELECT ` + invitationColumns + `
		FROM invitations i
		INNER JOIN badges b ON i.badge_id = b.id
		WHERE i.id = $1
		FOR UPDATE OF i`

	inv, err := scanInvitation(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if r.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock invitation: %w", err)
	}
	return inv, nil
}
