package repositories

import (
	"context"
	"fmt"

	"modrota/internal/database"
	"modrota/internal/models"

	"go.uber.org/zap"
)

// moderationConfigRepository implements ModerationConfigRepository over
// postgres.
type moderationConfigRepository struct {
	*BaseRepository
}

// NewModerationConfigRepository creates a new moderation config repository.
func NewModerationConfigRepository(db *database.Manager, logger *zap.Logger) ModerationConfigRepository {
	return &moderationConfigRepository{BaseRepository: NewBaseRepository(db, logger)}
}

const configColumns = `
	id, scope_kind, scope_id, badge_ratio, min_reputation, min_account_age_days,
	cooldown_days, min_duty_days, max_duty_days, min_actions_required,
	reward_tokens, reward_reputation, penalty_reputation, removal_reputation,
	created_at, updated_at`

func scanConfig(scanner interface{ Scan(...interface{}) error }) (*models.ModerationConfig, error) {
	var c models.ModerationConfig
	var kind string
	err := scanner.Scan(
		&c.ID, &kind, &c.Scope.ID, &c.BadgeRatio, &c.MinReputation, &c.MinAccountAgeDays,
		&c.CooldownDays, &c.MinDutyDays, &c.MaxDutyDays, &c.MinActionsRequired,
		&c.RewardTokens, &c.RewardReputation, &c.PenaltyReputation, &c.RemovalReputation,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Scope.Kind = models.ScopeKind(kind)
	return &c, nil
}

// GetOrCreate returns the scope's config, inserting defaults on first touch.
// The upsert makes concurrent first touches converge on a single row.
func (r *moderationConfigRepository) GetOrCreate(ctx context.Context, scope models.Scope) (*models.ModerationConfig, error) {
	d := models.DefaultModerationConfig(scope)
	query := `
		INSERT INTO moderation_configs (
			scope_kind, scope_id, badge_ratio, min_reputation, min_account_age_days,
			cooldown_days, min_duty_days, max_duty_days, min_actions_required,
			reward_tokens, reward_reputation, penalty_reputation, removal_reputation
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (scope_kind, scope_id)
			DO UPDATE SET scope_kind = EXCLUDED.scope_kind
		RETURNING ` + configColumns

	cfg, err := scanConfig(r.GetDB().QueryRowContext(ctx, query,
		scope.Kind, scope.ID, d.BadgeRatio, d.MinReputation, d.MinAccountAgeDays,
		d.CooldownDays, d.MinDutyDays, d.MaxDutyDays, d.MinActionsRequired,
		d.RewardTokens, d.RewardReputation, d.PenaltyReputation, d.RemovalReputation,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to get or create moderation config: %w", err)
	}
	return cfg, nil
}

// Update persists operator changes to a scope's tunables.
func (r *moderationConfigRepository) Update(ctx context.Context, cfg *models.ModerationConfig) error {
	query := `
		UPDATE moderation_configs SET
			badge_ratio = $3, min_reputation = $4, min_account_age_days = $5,
			cooldown_days = $6, min_duty_days = $7, max_duty_days = $8,
			min_actions_required = $9, reward_tokens = $10, reward_reputation = $11,
			penalty_reputation = $12, removal_reputation = $13, updated_at = NOW()
		WHERE scope_kind = $1 AND scope_id = $2
		RETURNING id, updated_at`

	err := r.GetDB().QueryRowContext(ctx, query,
		cfg.Scope.Kind, cfg.Scope.ID, cfg.BadgeRatio, cfg.MinReputation,
		cfg.MinAccountAgeDays, cfg.CooldownDays, cfg.MinDutyDays, cfg.MaxDutyDays,
		cfg.MinActionsRequired, cfg.RewardTokens, cfg.RewardReputation,
		cfg.PenaltyReputation, cfg.RemovalReputation,
	).Scan(&cfg.ID, &cfg.UpdatedAt)
	if err != nil {
		if r.IsNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to update moderation config: %w", err)
	}

	r.GetLogger().Info("Moderation config updated",
		zap.String("scope", cfg.Scope.String()),
		zap.Int("badge_ratio", cfg.BadgeRatio),
		zap.Int("cooldown_days", cfg.CooldownDays),
	)
	return nil
}
