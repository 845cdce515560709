package services

import (
	"context"
	"fmt"

	"modrota/internal/events"
	"modrota/internal/models"
	"modrota/internal/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"
)

const defaultQueueLimit = 25

// queueService serves the review queue and records decisions.
type queueService struct {
	repos    *repositories.Collection
	config   ConfigService
	ledger   LedgerService
	bus      events.EventBus
	validate *validator.Validate
	logger   *zap.Logger
}

// NewQueueService creates the queue service.
func NewQueueService(
	repos *repositories.Collection,
	config ConfigService,
	ledger LedgerService,
	bus events.EventBus,
	logger *zap.Logger,
) QueueService {
	return &queueService{
		repos:    repos,
		config:   config,
		ledger:   ledger,
		bus:      bus,
		validate: validator.New(),
		logger:   logger,
	}
}

// GetQueue returns the flagged-content queue for the badge's scope, with
// prior decisions by other badges attached for reviewer continuity.
func (s *queueService) GetQueue(ctx context.Context, badgeID, holderID int64, limit int) (*QueueView, error) {
	badge, err := s.activeBadge(ctx, badgeID, holderID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 100 {
		limit = defaultQueueLimit
	}
	items, err := s.repos.Moderation.QueueForScope(ctx, badge.Scope, limit)
	if err != nil {
		return nil, mapRepositoryError(err, "review queue")
	}

	for _, item := range items {
		prior, err := s.repos.Moderation.PriorActions(ctx, item.Content, badgeID)
		if err != nil {
			s.logger.Warn("Failed to load prior actions",
				zap.String("content_type", item.Content.Type),
				zap.Int64("content_id", item.Content.ID),
				zap.Error(err),
			)
			continue
		}
		item.PriorActions = prior
	}

	return &QueueView{Badge: badge, Items: items}, nil
}

// SubmitDecision records one keep/remove decision through the atomic unit of
// work, then publishes the event and writes the audit ledger post-commit.
func (s *queueService) SubmitDecision(ctx context.Context, badgeID, holderID int64, req *DecisionRequest) (*models.ModerationAction, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("invalid decision", err)
	}

	badge, err := s.activeBadge(ctx, badgeID, holderID)
	if err != nil {
		return nil, err
	}

	cfg, err := s.config.GetConfig(ctx, badge.Scope)
	if err != nil {
		return nil, err
	}

	action, err := s.repos.Moderation.SubmitDecision(ctx, &repositories.DecisionInput{
		BadgeID:         badgeID,
		HolderID:        holderID,
		Content:         models.ContentRef{Type: req.ContentType, ID: req.ContentID},
		Decision:        models.Decision(req.Decision),
		Reason:          req.Reason,
		RemovalRepDebit: cfg.RemovalReputation,
	})
	if err != nil {
		return nil, mapRepositoryError(err, "decision")
	}

	event := events.NewModerationEvent(badgeID, holderID, action.Content, action.Decision, action.FlagCount)
	if err := s.bus.PublishAsync(ctx, event); err != nil {
		s.logger.Warn("Failed to publish decision event",
			zap.Int64("action_id", action.ID),
			zap.Error(err),
		)
	}

	s.recordLedger(action)
	return action, nil
}

// SubmitBatch records up to MaxBatchDecisions decisions. Per-item failures
// are collected so one already-resolved item never blocks the rest; the call
// only errors when every item failed.
func (s *queueService) SubmitBatch(ctx context.Context, badgeID, holderID int64, req *BatchDecisionRequest) (*BatchDecisionResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("invalid batch", err)
	}

	result := &BatchDecisionResult{}
	var batchErr *multierror.Error

	for i := range req.Decisions {
		item := &req.Decisions[i]
		action, err := s.SubmitDecision(ctx, badgeID, holderID, item)
		if err != nil {
			batchErr = multierror.Append(batchErr, fmt.Errorf("item %d: %w", i, err))
			result.Failed = append(result.Failed, BatchDecisionFailure{
				Index:   i,
				Content: fmt.Sprintf("%s:%d", item.ContentType, item.ContentID),
				Error:   GetServiceError(err).Message,
			})
			continue
		}
		result.Submitted = append(result.Submitted, action)
	}

	if len(result.Submitted) == 0 && batchErr.ErrorOrNil() != nil {
		return nil, NewBusinessError(
			fmt.Sprintf("all %d batch items failed: %v", len(req.Decisions), batchErr),
			"BATCH_FAILED",
		)
	}

	s.logger.Info("Batch decisions submitted",
		zap.Int64("badge_id", badgeID),
		zap.Int("submitted", len(result.Submitted)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

func (s *queueService) activeBadge(ctx context.Context, badgeID, holderID int64) (*models.Badge, error) {
	badge, err := s.repos.Badge.GetByID(ctx, badgeID)
	if err != nil {
		return nil, mapRepositoryError(err, "badge")
	}
	if badge.HolderID != holderID {
		return nil, NewForbiddenError("badge belongs to another user")
	}
	if badge.Status != models.BadgeActive {
		return nil, NewPreconditionError("badge is not active", "BADGE_INACTIVE")
	}
	return badge, nil
}

// recordLedger writes the action to the audit ledger off the request path.
// The ledger client retries internally; on eventual success the ref lands on
// the action row.
func (s *queueService) recordLedger(action *models.ModerationAction) {
	go func() {
		ctx := context.Background()
		ref, err := s.ledger.RecordAction(ctx, action)
		if err != nil || ref == "" {
			return
		}
		if err := s.repos.Moderation.AttachLedgerRef(ctx, action.ID, ref); err != nil {
			s.logger.Warn("Failed to attach ledger ref",
				zap.Int64("action_id", action.ID),
				zap.Error(err),
			)
		}
	}()
}
