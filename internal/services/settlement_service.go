package services

import (
	"context"
	"errors"
	"time"

	"modrota/internal/events"
	"modrota/internal/models"
	"modrota/internal/repositories"

	"go.uber.org/zap"
)

// settlementService closes out badges whose duty window has ended. Each badge
// settles in its own transaction; reputation deltas and the token reward run
// after commit so a collaborator outage can never hold a badge open.
type settlementService struct {
	repos      *repositories.Collection
	config     ConfigService
	assignment AssignmentService
	transfer   TransferService
	bus        events.EventBus
	logger     *zap.Logger
}

// NewSettlementService creates the settlement service.
func NewSettlementService(
	repos *repositories.Collection,
	config ConfigService,
	assignment AssignmentService,
	transfer TransferService,
	bus events.EventBus,
	logger *zap.Logger,
) SettlementService {
	return &settlementService{
		repos:      repos,
		config:     config,
		assignment: assignment,
		transfer:   transfer,
		bus:        bus,
		logger:     logger,
	}
}

// SweepExpired settles every due badge and tops the affected scopes back up.
func (s *settlementService) SweepExpired(ctx context.Context) (*SettlementReport, error) {
	now := time.Now()
	due, err := s.repos.Badge.DueForSettlement(ctx, now)
	if err != nil {
		return nil, mapRepositoryError(err, "settlement sweep")
	}

	report := &SettlementReport{}
	touched := make(map[models.Scope]bool)

	for _, badge := range due {
		result, err := s.repos.Badge.Settle(ctx, badge.ID, now)
		if err != nil {
			if errors.Is(err, repositories.ErrStaleState) {
				// Settled by a concurrent sweep, or passed mid-listing.
				continue
			}
			report.Errors++
			s.logger.Error("Failed to settle badge",
				zap.Int64("badge_id", badge.ID),
				zap.Error(err),
			)
			continue
		}

		report.Settled++
		touched[result.Badge.Scope] = true
		s.apply(ctx, result, report)
	}

	for scope := range touched {
		if _, err := s.assignment.OfferReplacement(ctx, scope); err != nil {
			s.logger.Error("Backfill failed after settlement",
				zap.String("scope", scope.String()),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("Settlement sweep finished",
		zap.Int("settled", report.Settled),
		zap.Int("completed", report.Completed),
		zap.Int("abandoned", report.Abandoned),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

// apply hands out the settled badge's reward or penalty.
func (s *settlementService) apply(ctx context.Context, result *repositories.SettlementResult, report *SettlementReport) {
	badge := result.Badge

	cfg, err := s.config.GetConfig(ctx, badge.Scope)
	if err != nil {
		report.Errors++
		s.logger.Error("Failed to load config for settlement",
			zap.Int64("badge_id", badge.ID),
			zap.Error(err),
		)
		return
	}

	switch result.Outcome {
	case models.OutcomeCompleted:
		report.Completed++
		if cfg.RewardReputation > 0 {
			if err := s.repos.Identity.AdjustReputation(ctx, badge.HolderID, cfg.RewardReputation); err != nil {
				report.Errors++
				s.logger.Error("Failed to apply completion reward",
					zap.Int64("user_id", badge.HolderID),
					zap.Int64("badge_id", badge.ID),
					zap.Error(err),
				)
			}
		}
		s.creditTokens(badge, cfg.RewardTokens)
		s.publish(ctx, events.NewBadgeEvent(events.TypeBadgeExpired, badge.ID, badge.Scope, badge.HolderID))

	case models.OutcomeAbandoned:
		report.Abandoned++
		if cfg.PenaltyReputation > 0 {
			if err := s.repos.Identity.AdjustReputation(ctx, badge.HolderID, -cfg.PenaltyReputation); err != nil {
				report.Errors++
				s.logger.Error("Failed to apply abandonment penalty",
					zap.Int64("user_id", badge.HolderID),
					zap.Int64("badge_id", badge.ID),
					zap.Error(err),
				)
			}
		}
		s.publish(ctx, events.NewBadgeEvent(events.TypeBadgeAbandoned, badge.ID, badge.Scope, badge.HolderID))
	}
}

// creditTokens runs the token transfer off the sweep path. The transfer
// client keys on the badge ID so retries cannot pay twice.
func (s *settlementService) creditTokens(badge *models.Badge, tokens int) {
	if tokens <= 0 {
		return
	}
	go func() {
		ctx := context.Background()
		ref, err := s.transfer.CreditReward(ctx, badge.HolderID, tokens, badge.ID)
		if err != nil || ref == "" {
			return
		}
		if err := s.repos.Badge.AttachLedgerRef(ctx, badge.ID, ref); err != nil {
			s.logger.Warn("Failed to attach transfer ref",
				zap.Int64("badge_id", badge.ID),
				zap.Error(err),
			)
		}
	}()
}

func (s *settlementService) publish(ctx context.Context, event events.Event) {
	if err := s.bus.PublishAsync(ctx, event); err != nil {
		s.logger.Warn("Failed to publish settlement event",
			zap.String("event_type", event.GetEventType()),
			zap.Error(err),
		)
	}
}
