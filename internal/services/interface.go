package services

import (
	"context"

	"modrota/internal/models"
)

// ===============================
// SERVICE INTERFACES
// ===============================

// AssignmentService computes scope deficits and fills them with offers.
type AssignmentService interface {
	// EnsureScopeCapacity brings one scope up to its desired badge count,
	// offering to randomly selected eligible members. Idempotent: the
	// repository re-checks capacity under the scope lock per offer.
	EnsureScopeCapacity(ctx context.Context, scope models.Scope) (*CapacityReport, error)

	// BalanceAllScopes runs EnsureScopeCapacity over every scope with active
	// members. Per-scope failures are counted, not fatal.
	BalanceAllScopes(ctx context.Context) (*BalanceReport, error)

	// OfferReplacement creates a single replacement offer in the scope,
	// used by the decline/timeout/pass backfill paths.
	OfferReplacement(ctx context.Context, scope models.Scope) (bool, error)

	// CheckEligibility reports whether the user could be offered a badge in
	// the scope right now, with every failed criterion listed.
	CheckEligibility(ctx context.Context, userID int64, scope models.Scope) (*EligibilityView, error)
}

// InvitationService handles the holder-facing invitation lifecycle.
type InvitationService interface {
	// GetStatus returns the user's open badge or pending invitation.
	GetStatus(ctx context.Context, userID int64) (*BadgeStatusView, error)

	// Accept activates the badge behind the invitation.
	Accept(ctx context.Context, invitationID, userID int64) (*models.Badge, error)

	// Decline resolves the invitation negatively and backfills the slot.
	Decline(ctx context.Context, invitationID, userID int64) error

	// PassBadge lets an active holder abandon duty early; the slot is
	// backfilled and the abandonment penalty applies at once. The reason is
	// mandatory and archived with the outcome.
	PassBadge(ctx context.Context, badgeID, holderID int64, reason string) error

	// SweepTimeouts expires unanswered invitations past their TTL and
	// backfills each freed slot.
	SweepTimeouts(ctx context.Context) (*TimeoutSweepReport, error)
}

// QueueService serves the review queue and records decisions.
type QueueService interface {
	// GetQueue returns the flagged-content queue visible to the badge.
	GetQueue(ctx context.Context, badgeID, holderID int64, limit int) (*QueueView, error)

	// SubmitDecision records one keep/remove decision.
	SubmitDecision(ctx context.Context, badgeID, holderID int64, req *DecisionRequest) (*models.ModerationAction, error)

	// SubmitBatch records up to MaxBatchDecisions decisions, collecting
	// per-item failures instead of aborting the batch.
	SubmitBatch(ctx context.Context, badgeID, holderID int64, req *BatchDecisionRequest) (*BatchDecisionResult, error)
}

// SettlementService closes out expired badges.
type SettlementService interface {
	// SweepExpired settles every due badge: archives the outcome, applies
	// reputation deltas, and hands completed badges to the token transfer.
	SweepExpired(ctx context.Context) (*SettlementReport, error)
}

// ConfigService reads and mutates per-scope tunables with cache in front.
type ConfigService interface {
	GetConfig(ctx context.Context, scope models.Scope) (*models.ModerationConfig, error)
	UpdateConfig(ctx context.Context, scope models.Scope, req *UpdateConfigRequest) (*models.ModerationConfig, error)
}

// StatsService produces reporting aggregates.
type StatsService interface {
	// AggregateDaily rolls up the previous day's settlements.
	AggregateDaily(ctx context.Context) error
	GetScopeStats(ctx context.Context, scope models.Scope, days int) ([]*models.ScopeStats, error)
	Leaderboard(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error)
}

// ===============================
// COLLABORATOR INTERFACES
// ===============================

// LedgerService records moderation actions in the external audit ledger.
// Best effort: failures are logged and retried, never propagated into the
// decision transaction.
type LedgerService interface {
	RecordAction(ctx context.Context, action *models.ModerationAction) (ref string, err error)
}

// TransferService credits duty rewards through the external token service.
// Same best-effort contract as LedgerService.
type TransferService interface {
	CreditReward(ctx context.Context, userID int64, tokens int, badgeID int64) (ref string, err error)
}
