package models

import "time"

// ModerationConfig holds the per-scope tunables driving assignment and
// settlement. Rows are created lazily with defaults on first touch of a scope
// and are operator-mutable afterwards.
type ModerationConfig struct {
	ID    int64 `json:"id" db:"id"`
	Scope Scope `json:"scope" db:"-"`

	// Assignment
	BadgeRatio        int `json:"badge_ratio" db:"badge_ratio" validate:"min=1,max=10000"`
	MinReputation     int `json:"min_reputation" db:"min_reputation" validate:"min=0"`
	MinAccountAgeDays int `json:"min_account_age_days" db:"min_account_age_days" validate:"min=0"`
	CooldownDays      int `json:"cooldown_days" db:"cooldown_days" validate:"min=0,max=365"`

	// Duty window
	MinDutyDays        int `json:"min_duty_days" db:"min_duty_days" validate:"min=1"`
	MaxDutyDays        int `json:"max_duty_days" db:"max_duty_days" validate:"min=1"`
	MinActionsRequired int `json:"min_actions_required" db:"min_actions_required" validate:"min=1"`

	// Settlement
	RewardTokens      int `json:"reward_tokens" db:"reward_tokens" validate:"min=0"`
	RewardReputation  int `json:"reward_reputation" db:"reward_reputation" validate:"min=0"`
	PenaltyReputation int `json:"penalty_reputation" db:"penalty_reputation" validate:"min=0"`
	// Reputation debited from a content author when their content is removed.
	RemovalReputation int `json:"removal_reputation" db:"removal_reputation" validate:"min=0"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Defaults applied on first touch of a scope.
const (
	DefaultBadgeRatio        = 50
	DefaultMinReputation     = 10
	DefaultMinAccountAgeDays = 7
	DefaultCooldownDays      = 14
	DefaultMinDutyDays       = 3
	DefaultMaxDutyDays       = 7
	DefaultMinActions        = 5
	DefaultRewardTokens      = 10
	DefaultRewardReputation  = 5
	DefaultPenaltyReputation = 3
	DefaultRemovalReputation = 2

	// InvitationTTL is how long an offered badge waits for an answer.
	InvitationTTL = 12 * time.Hour

	// ActivityWindowDays is the trailing window defining "active" members.
	ActivityWindowDays = 30
)

// DefaultModerationConfig returns the lazily-created config for a scope.
func DefaultModerationConfig(scope Scope) *ModerationConfig {
	return &ModerationConfig{
		Scope:              scope,
		BadgeRatio:         DefaultBadgeRatio,
		MinReputation:      DefaultMinReputation,
		MinAccountAgeDays:  DefaultMinAccountAgeDays,
		CooldownDays:       DefaultCooldownDays,
		MinDutyDays:        DefaultMinDutyDays,
		MaxDutyDays:        DefaultMaxDutyDays,
		MinActionsRequired: DefaultMinActions,
		RewardTokens:       DefaultRewardTokens,
		RewardReputation:   DefaultRewardReputation,
		PenaltyReputation:  DefaultPenaltyReputation,
		RemovalReputation:  DefaultRemovalReputation,
	}
}
