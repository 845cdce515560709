package repositories

import (
	"context"
	"errors"
	"time"

	"modrota/internal/models"
)

// ===============================
// SENTINEL ERRORS
// ===============================

var (
	// ErrNotFound signals a missing row.
	ErrNotFound = errors.New("not found")

	// ErrStaleState signals a precondition race: the row was mutated by a
	// concurrent transaction between read and write (e.g. an invitation
	// answered while the timeout sweep was expiring it). The loser of the
	// race surfaces this instead of silently corrupting state.
	ErrStaleState = errors.New("stale state")

	// ErrCapacityRestored signals that a scope's deficit was already filled
	// by a concurrent sweep; the caller should skip, not retry.
	ErrCapacityRestored = errors.New("scope capacity already restored")

	// ErrAlreadyResolved signals that all flags on the content were resolved
	// by an earlier decision.
	ErrAlreadyResolved = errors.New("content flags already resolved")

	// ErrDuplicateOpenBadge signals the candidate acquired an open badge
	// concurrently; assignment should pick another candidate.
	ErrDuplicateOpenBadge = errors.New("user already holds an open badge")
)

// ===============================
// REPOSITORY INTERFACES
// ===============================

// BadgeRepository owns badge rows and the capacity-guarded offer creation.
type BadgeRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Badge, error)
	GetOpenForUser(ctx context.Context, userID int64) (*models.Badge, error)
	CountOpenForScope(ctx context.Context, scope models.Scope) (int, error)

	// CreateOffer atomically re-checks scope capacity and the candidate's
	// open-badge invariant under an advisory lock, then inserts the offered
	// badge plus its invitation. Returns ErrCapacityRestored or
	// ErrDuplicateOpenBadge when a concurrent sweep got there first.
	CreateOffer(ctx context.Context, desired int, badge *models.Badge, inv *models.Invitation) error

	// DueForSettlement lists active badges whose duty window has closed.
	DueForSettlement(ctx context.Context, now time.Time) ([]*models.Badge, error)

	// Settle terminates one due badge in its own transaction under row lock,
	// appending the history row. Returns ErrStaleState when the badge is no
	// longer active or not yet due.
	Settle(ctx context.Context, badgeID int64, now time.Time) (*SettlementResult, error)

	// Pass terminates an active badge early (emergency exit) under row lock.
	// The reason is archived alongside the abandoned outcome and the
	// reputation penalty debits in the same transaction.
	Pass(ctx context.Context, badgeID, holderID int64, reason string, penalty int, now time.Time) (*models.Badge, error)

	// AttachLedgerRef stores the reward transfer reference post-settlement.
	AttachLedgerRef(ctx context.Context, badgeID int64, ref string) error
}

// SettlementResult reports the outcome of settling one badge.
type SettlementResult struct {
	Badge   *models.Badge
	Outcome models.HistoryOutcome
}

// InvitationRepository owns invitation rows and their row-locked transitions.
type InvitationRepository interface {
	GetByID(ctx context.Context, id int64) (*models.Invitation, error)
	GetPendingForUser(ctx context.Context, userID int64, now time.Time) (*models.Invitation, error)

	// Accept marks the invitation accepted and activates its badge in one
	// transaction. Returns ErrStaleState when already responded or expired.
	Accept(ctx context.Context, invitationID, userID int64, now time.Time) (*models.Badge, error)

	// Decline marks the invitation with the given response (declined or
	// timeout) and declines its badge. Same transaction, same race rules.
	Decline(ctx context.Context, invitationID, userID int64, response models.InvitationResponse, now time.Time) (*models.Badge, error)

	// ExpiredPending lists unanswered invitations past their expiry.
	ExpiredPending(ctx context.Context, now time.Time) ([]*models.Invitation, error)
}

// ModerationConfigRepository owns per-scope tunables.
type ModerationConfigRepository interface {
	// GetOrCreate returns the scope's config, inserting defaults on first
	// touch.
	GetOrCreate(ctx context.Context, scope models.Scope) (*models.ModerationConfig, error)
	Update(ctx context.Context, cfg *models.ModerationConfig) error
}

// ModerationRepository owns the decision unit of work and queue assembly.
type ModerationRepository interface {
	// QueueForScope returns unresolved flagged content in the scope, ordered
	// by flag count descending then oldest-flagged-first.
	QueueForScope(ctx context.Context, scope models.Scope, limit int) ([]*models.QueueItem, error)

	// PriorActions returns decisions on the content by badges other than
	// excludeBadgeID, for reviewer continuity.
	PriorActions(ctx context.Context, content models.ContentRef, excludeBadgeID int64) ([]models.ModerationAction, error)

	// SubmitDecision runs the atomic decision unit of work: verify the badge
	// is active and held by holderID under row lock, snapshot the observed
	// flag count, record the action, hide content and debit the author on
	// removal, resolve all unresolved flags, and increment actions_taken.
	// Returns ErrStaleState / ErrAlreadyResolved on precondition races.
	SubmitDecision(ctx context.Context, d *DecisionInput) (*models.ModerationAction, error)

	// AttachLedgerRef stores the best-effort ledger reference post-commit.
	AttachLedgerRef(ctx context.Context, actionID int64, ref string) error
}

// DecisionInput carries one decision into the unit of work.
type DecisionInput struct {
	BadgeID         int64
	HolderID        int64
	Content         models.ContentRef
	Decision        models.Decision
	Reason          string
	RemovalRepDebit int
}

// HistoryRepository reads the append-only badge history.
type HistoryRepository interface {
	// InCooldown reports whether the user has a completed or abandoned badge
	// in the scope since the cutoff.
	InCooldown(ctx context.Context, userID int64, scope models.Scope, since time.Time) (bool, error)
	Leaderboard(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error)
}

// IdentityRepository is the SQL-backed face of the external identity store.
type IdentityRepository interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	AdjustReputation(ctx context.Context, id int64, delta int) error
}

// MembershipRepository resolves member sets per scope.
type MembershipRepository interface {
	ActiveMemberIDs(ctx context.Context, scope models.Scope, sinceDays int) ([]int64, error)
	IsActiveMember(ctx context.Context, userID int64, scope models.Scope, sinceDays int) (bool, error)
	// ScopesWithActiveMembers lists every scope the balance sweep must visit.
	ScopesWithActiveMembers(ctx context.Context, sinceDays int) ([]models.Scope, error)
}

// StatsRepository owns the daily aggregates.
type StatsRepository interface {
	AggregateDay(ctx context.Context, day time.Time) (int, error)
	GetScopeStats(ctx context.Context, scope models.Scope, days int) ([]*models.ScopeStats, error)
}
