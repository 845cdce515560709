package services

import (
	"time"

	"modrota/internal/models"
)

// ===============================
// REQUEST TYPES
// ===============================

// DecisionRequest carries one moderation decision from a badge holder.
type DecisionRequest struct {
	ContentType string `json:"content_type" validate:"required,oneof=post comment"`
	ContentID   int64  `json:"content_id" validate:"required,min=1"`
	Decision    string `json:"decision" validate:"required,oneof=keep remove"`
	Reason      string `json:"reason" validate:"max=500"`
}

// BatchDecisionRequest carries up to MaxBatchDecisions decisions.
type BatchDecisionRequest struct {
	Decisions []DecisionRequest `json:"decisions" validate:"required,min=1,max=50,dive"`
}

// MaxBatchDecisions caps one batch submission.
const MaxBatchDecisions = 50

// InvitationAnswer is the accept/decline payload.
type InvitationAnswer struct {
	Accept bool `json:"accept"`
}

// PassRequest carries the mandatory reason for an emergency pass.
type PassRequest struct {
	Reason string `json:"reason" validate:"required,min=10,max=500"`
}

// MinPassReasonLength is the shortest acceptable pass reason.
const MinPassReasonLength = 10

// UpdateConfigRequest carries operator changes to a scope's tunables. Nil
// fields are left unchanged.
type UpdateConfigRequest struct {
	BadgeRatio         *int `json:"badge_ratio" validate:"omitempty,min=1,max=10000"`
	MinReputation      *int `json:"min_reputation" validate:"omitempty,min=0"`
	MinAccountAgeDays  *int `json:"min_account_age_days" validate:"omitempty,min=0"`
	CooldownDays       *int `json:"cooldown_days" validate:"omitempty,min=0,max=365"`
	MinDutyDays        *int `json:"min_duty_days" validate:"omitempty,min=1"`
	MaxDutyDays        *int `json:"max_duty_days" validate:"omitempty,min=1"`
	MinActionsRequired *int `json:"min_actions_required" validate:"omitempty,min=1"`
	RewardTokens       *int `json:"reward_tokens" validate:"omitempty,min=0"`
	RewardReputation   *int `json:"reward_reputation" validate:"omitempty,min=0"`
	PenaltyReputation  *int `json:"penalty_reputation" validate:"omitempty,min=0"`
	RemovalReputation  *int `json:"removal_reputation" validate:"omitempty,min=0"`
}

// ===============================
// RESULT TYPES
// ===============================

// CapacityReport summarizes one scope's balance pass.
type CapacityReport struct {
	Scope         models.Scope `json:"scope"`
	ActiveMembers int          `json:"active_members"`
	Desired       int          `json:"desired"`
	CurrentOpen   int          `json:"current_open"`
	Offered       int          `json:"offered"`
	Skipped       int          `json:"skipped"`
}

// Deficit reports how many offers the scope still needs.
func (r *CapacityReport) Deficit() int {
	d := r.Desired - r.CurrentOpen
	if d < 0 {
		return 0
	}
	return d
}

// BalanceReport summarizes a full balance sweep across scopes.
type BalanceReport struct {
	ScopesVisited int `json:"scopes_visited"`
	TotalOffered  int `json:"total_offered"`
	Errors        int `json:"errors"`
}

// TimeoutSweepReport summarizes one timeout sweep run.
type TimeoutSweepReport struct {
	Expired  int `json:"expired"`
	Backfill int `json:"backfill"`
	Errors   int `json:"errors"`
}

// SettlementReport summarizes one settlement sweep run.
type SettlementReport struct {
	Settled   int `json:"settled"`
	Completed int `json:"completed"`
	Abandoned int `json:"abandoned"`
	Errors    int `json:"errors"`
}

// BatchDecisionResult reports per-item outcomes of a batch submission.
// Submitted and failed items coexist; a failed item never blocks the rest.
type BatchDecisionResult struct {
	Submitted []*models.ModerationAction `json:"submitted"`
	Failed    []BatchDecisionFailure     `json:"failed,omitempty"`
}

// BatchDecisionFailure identifies one rejected batch item.
type BatchDecisionFailure struct {
	Index   int    `json:"index"`
	Content string `json:"content"`
	Error   string `json:"error"`
}

// QueueView is the queue plus the viewing badge's progress.
type QueueView struct {
	Badge *models.Badge       `json:"badge"`
	Items []*models.QueueItem `json:"items"`
}

// EligibilityView explains whether a user can currently be offered a badge in
// a scope. Reasons list every failed criterion, not just the first.
type EligibilityView struct {
	Scope    models.Scope `json:"scope"`
	UserID   int64        `json:"user_id"`
	Eligible bool         `json:"eligible"`
	Reasons  []string     `json:"reasons,omitempty"`
}

// BadgeStatusView is the holder-facing picture of a badge or invitation.
type BadgeStatusView struct {
	Badge      *models.Badge      `json:"badge,omitempty"`
	Invitation *models.Invitation `json:"invitation,omitempty"`
	Deadline   *time.Time         `json:"deadline,omitempty"`
}
