package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"modrota/internal/events"
	"modrota/internal/models"
	"modrota/internal/repositories"

	"go.uber.org/zap"
)

// invitationService drives the holder-facing invitation lifecycle and the
// timeout sweep. Every negative resolution frees a slot and triggers a
// replacement offer in the same scope.
type invitationService struct {
	repos      *repositories.Collection
	config     ConfigService
	assignment AssignmentService
	bus        events.EventBus
	logger     *zap.Logger
}

// NewInvitationService creates the invitation service.
func NewInvitationService(
	repos *repositories.Collection,
	config ConfigService,
	assignment AssignmentService,
	bus events.EventBus,
	logger *zap.Logger,
) InvitationService {
	return &invitationService{
		repos:      repos,
		config:     config,
		assignment: assignment,
		bus:        bus,
		logger:     logger,
	}
}

// GetStatus returns the user's open badge or pending invitation, whichever
// exists. Badge wins when both queries race across an accept.
func (s *invitationService) GetStatus(ctx context.Context, userID int64) (*BadgeStatusView, error) {
	view := &BadgeStatusView{}

	badge, err := s.repos.Badge.GetOpenForUser(ctx, userID)
	switch {
	case err == nil:
		view.Badge = badge
		if badge.Status == models.BadgeActive {
			view.Deadline = badge.EndDate
		}
		if badge.Status == models.BadgeOffered {
			inv, err := s.repos.Invitation.GetPendingForUser(ctx, userID, time.Now())
			if err == nil {
				view.Invitation = inv
				view.Deadline = &inv.ExpiresAt
			}
		}
		return view, nil
	case errors.Is(err, repositories.ErrNotFound):
		return view, nil
	default:
		return nil, mapRepositoryError(err, "badge")
	}
}

// Accept activates the badge behind the invitation.
func (s *invitationService) Accept(ctx context.Context, invitationID, userID int64) (*models.Badge, error) {
	badge, err := s.repos.Invitation.Accept(ctx, invitationID, userID, time.Now())
	if err != nil {
		return nil, mapRepositoryError(err, "invitation")
	}

	s.publish(ctx, events.NewBadgeEvent(events.TypeBadgeAccepted, badge.ID, badge.Scope, userID))
	return badge, nil
}

// Decline resolves the invitation negatively and backfills the freed slot.
// Declining costs no reputation, but it starts the same-scope cooldown so
// the replacement offer goes to somebody else.
func (s *invitationService) Decline(ctx context.Context, invitationID, userID int64) error {
	badge, err := s.repos.Invitation.Decline(ctx, invitationID, userID, models.InvitationDeclined, time.Now())
	if err != nil {
		return mapRepositoryError(err, "invitation")
	}

	s.publish(ctx, events.NewBadgeEvent(events.TypeBadgeDeclined, badge.ID, badge.Scope, userID))
	s.backfill(ctx, badge.Scope)
	return nil
}

// PassBadge lets an active holder abandon duty early. The abandonment
// penalty settles inside the same transaction as the status change, since
// the badge never reaches the settlement sweep.
func (s *invitationService) PassBadge(ctx context.Context, badgeID, holderID int64, reason string) error {
	reason = strings.TrimSpace(reason)
	if len(reason) < MinPassReasonLength {
		return NewValidationError("a reason of at least 10 characters is required to pass a badge", nil)
	}

	current, err := s.repos.Badge.GetByID(ctx, badgeID)
	if err != nil {
		return mapRepositoryError(err, "badge")
	}

	cfg, err := s.config.GetConfig(ctx, current.Scope)
	if err != nil {
		return err
	}

	badge, err := s.repos.Badge.Pass(ctx, badgeID, holderID, reason, cfg.PenaltyReputation, time.Now())
	if err != nil {
		return mapRepositoryError(err, "badge")
	}

	s.publish(ctx, events.NewBadgeEvent(events.TypeBadgePassed, badge.ID, badge.Scope, holderID))
	s.backfill(ctx, badge.Scope)
	return nil
}

// SweepTimeouts expires unanswered invitations past their TTL. Each
// expiration is its own transaction; an invitation answered mid-sweep loses
// the race in the repository and is simply skipped.
func (s *invitationService) SweepTimeouts(ctx context.Context) (*TimeoutSweepReport, error) {
	now := time.Now()
	pending, err := s.repos.Invitation.ExpiredPending(ctx, now)
	if err != nil {
		return nil, mapRepositoryError(err, "invitation sweep")
	}

	report := &TimeoutSweepReport{}
	for _, inv := range pending {
		badge, err := s.repos.Invitation.Decline(ctx, inv.ID, 0, models.InvitationTimeout, now)
		if err != nil {
			if errors.Is(err, repositories.ErrStaleState) {
				// Answered between listing and locking.
				continue
			}
			report.Errors++
			s.logger.Error("Failed to expire invitation",
				zap.Int64("invitation_id", inv.ID),
				zap.Error(err),
			)
			continue
		}

		report.Expired++
		s.publish(ctx, events.NewBadgeEvent(events.TypeBadgeTimeout, badge.ID, badge.Scope, inv.UserID))

		if offered, err := s.assignment.OfferReplacement(ctx, badge.Scope); err != nil {
			report.Errors++
			s.logger.Error("Backfill failed after timeout",
				zap.String("scope", badge.Scope.String()),
				zap.Error(err),
			)
		} else if offered {
			report.Backfill++
		}
	}

	s.logger.Info("Timeout sweep finished",
		zap.Int("expired", report.Expired),
		zap.Int("backfill", report.Backfill),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

func (s *invitationService) backfill(ctx context.Context, scope models.Scope) {
	if _, err := s.assignment.OfferReplacement(ctx, scope); err != nil {
		s.logger.Error("Backfill failed",
			zap.String("scope", scope.String()),
			zap.Error(err),
		)
	}
}

func (s *invitationService) publish(ctx context.Context, event events.Event) {
	if err := s.bus.PublishAsync(ctx, event); err != nil {
		s.logger.Warn("Failed to publish badge event",
			zap.String("event_type", event.GetEventType()),
			zap.Error(err),
		)
	}
}
