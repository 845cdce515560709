package services

import (
	"context"
	"fmt"
	"time"

	"modrota/internal/cache"
	"modrota/internal/models"
	"modrota/internal/repositories"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const configCacheTTL = 5 * time.Minute

// configService fronts the per-scope tunables with a short-lived cache.
// Sweeps read configs for every scope they visit, so a cold read per scope
// per sweep would dominate config table traffic.
type configService struct {
	repo     repositories.ModerationConfigRepository
	cache    cache.Cache
	validate *validator.Validate
	logger   *zap.Logger
}

// NewConfigService creates the config service.
func NewConfigService(repo repositories.ModerationConfigRepository, c cache.Cache, logger *zap.Logger) ConfigService {
	return &configService{
		repo:     repo,
		cache:    c,
		validate: validator.New(),
		logger:   logger,
	}
}

func configCacheKey(scope models.Scope) string {
	return fmt.Sprintf("modconfig:%s", scope.String())
}

// GetConfig returns the scope's tunables, creating defaults on first touch.
func (s *configService) GetConfig(ctx context.Context, scope models.Scope) (*models.ModerationConfig, error) {
	if !scope.Valid() {
		return nil, NewValidationError("invalid scope", nil)
	}

	var cached models.ModerationConfig
	if hit, err := s.cache.Get(ctx, configCacheKey(scope), &cached); err == nil && hit {
		return &cached, nil
	}

	cfg, err := s.repo.GetOrCreate(ctx, scope)
	if err != nil {
		return nil, mapRepositoryError(err, "moderation config")
	}

	if err := s.cache.Set(ctx, configCacheKey(scope), cfg, configCacheTTL); err != nil {
		s.logger.Warn("Failed to cache moderation config",
			zap.String("scope", scope.String()),
			zap.Error(err),
		)
	}
	return cfg, nil
}

// UpdateConfig applies operator changes, validating the merged result so a
// partial update cannot leave min_duty_days above max_duty_days.
func (s *configService) UpdateConfig(ctx context.Context, scope models.Scope, req *UpdateConfigRequest) (*models.ModerationConfig, error) {
	if !scope.Valid() {
		return nil, NewValidationError("invalid scope", nil)
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, NewValidationError("invalid config update", err)
	}

	cfg, err := s.repo.GetOrCreate(ctx, scope)
	if err != nil {
		return nil, mapRepositoryError(err, "moderation config")
	}

	applyConfigUpdate(cfg, req)
	if cfg.MinDutyDays > cfg.MaxDutyDays {
		return nil, NewValidationError("min_duty_days cannot exceed max_duty_days", nil)
	}
	if err := s.validate.Struct(cfg); err != nil {
		return nil, NewValidationError("invalid config values", err)
	}

	if err := s.repo.Update(ctx, cfg); err != nil {
		return nil, mapRepositoryError(err, "moderation config")
	}

	if err := s.cache.Delete(ctx, configCacheKey(scope)); err != nil {
		s.logger.Warn("Failed to invalidate config cache",
			zap.String("scope", scope.String()),
			zap.Error(err),
		)
	}
	return cfg, nil
}

func applyConfigUpdate(cfg *models.ModerationConfig, req *UpdateConfigRequest) {
	if req.BadgeRatio != nil {
		cfg.BadgeRatio = *req.BadgeRatio
	}
	if req.MinReputation != nil {
		cfg.MinReputation = *req.MinReputation
	}
	if req.MinAccountAgeDays != nil {
		cfg.MinAccountAgeDays = *req.MinAccountAgeDays
	}
	if req.CooldownDays != nil {
		cfg.CooldownDays = *req.CooldownDays
	}
	if req.MinDutyDays != nil {
		cfg.MinDutyDays = *req.MinDutyDays
	}
	if req.MaxDutyDays != nil {
		cfg.MaxDutyDays = *req.MaxDutyDays
	}
	if req.MinActionsRequired != nil {
		cfg.MinActionsRequired = *req.MinActionsRequired
	}
	if req.RewardTokens != nil {
		cfg.RewardTokens = *req.RewardTokens
	}
	if req.RewardReputation != nil {
		cfg.RewardReputation = *req.RewardReputation
	}
	if req.PenaltyReputation != nil {
		cfg.PenaltyReputation = *req.PenaltyReputation
	}
	if req.RemovalReputation != nil {
		cfg.RemovalReputation = *req.RemovalReputation
	}
}
