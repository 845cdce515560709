package models

import "time"

// ===============================
// BADGE LIFECYCLE
// ===============================

// BadgeStatus enumerates the badge state machine.
type BadgeStatus string

const (
	BadgeOffered   BadgeStatus = "offered"
	BadgeActive    BadgeStatus = "active"
	BadgeExpired   BadgeStatus = "expired"
	BadgeDeclined  BadgeStatus = "declined"
	BadgeAbandoned BadgeStatus = "abandoned"
)

// ValidBadgeStatus validates the badge status enum.
func ValidBadgeStatus(status string) bool {
	switch BadgeStatus(status) {
	case BadgeOffered, BadgeActive, BadgeExpired, BadgeDeclined, BadgeAbandoned:
		return true
	}
	return false
}

// Badge is a temporary, scope-bound moderation role instance.
//
// Invariant: at most one badge with status in {offered, active} per
// (holder, scope); the settlement sweep is the only writer of terminal
// statuses for active badges.
type Badge struct {
	ID       int64       `json:"id" db:"id"`
	Scope    Scope       `json:"scope" db:"-"`
	HolderID int64       `json:"holder_id" db:"holder_id"`
	Status   BadgeStatus `json:"status" db:"status"`

	// Duty window
	DutyDays  int        `json:"duty_days" db:"duty_days"`
	StartDate *time.Time `json:"start_date,omitempty" db:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty" db:"end_date"`

	// Completion tracking
	ActionsTaken       int `json:"actions_taken" db:"actions_taken"`
	MinActionsRequired int `json:"min_actions_required" db:"min_actions_required"`

	// Best-effort reference onto the external immutable ledger.
	LedgerRef *string `json:"ledger_ref,omitempty" db:"ledger_ref"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// IsOpen reports whether the badge still counts against scope capacity.
func (b *Badge) IsOpen() bool {
	return b.Status == BadgeOffered || b.Status == BadgeActive
}

// IsDue reports whether an active badge's duty window has closed.
func (b *Badge) IsDue(now time.Time) bool {
	return b.Status == BadgeActive && b.EndDate != nil && !b.EndDate.After(now)
}

// QuotaMet is the completion test applied at settlement.
func (b *Badge) QuotaMet() bool {
	return b.ActionsTaken >= b.MinActionsRequired
}

// ===============================
// INVITATION
// ===============================

// InvitationResponse enumerates how an invitation was resolved.
type InvitationResponse string

const (
	InvitationAccepted InvitationResponse = "accepted"
	InvitationDeclined InvitationResponse = "declined"
	InvitationTimeout  InvitationResponse = "timeout"
)

// Invitation pairs an offered badge with its candidate. A badge has exactly
// one invitation while offered; once responded the row is immutable.
type Invitation struct {
	ID        int64               `json:"id" db:"id"`
	BadgeID   int64               `json:"badge_id" db:"badge_id"`
	UserID    int64               `json:"user_id" db:"user_id"`
	InvitedAt time.Time           `json:"invited_at" db:"invited_at"`
	ExpiresAt time.Time           `json:"expires_at" db:"expires_at"`
	Response  *InvitationResponse `json:"response,omitempty" db:"response"`

	// Joined for queue/API display
	Scope Scope `json:"scope" db:"-"`
}

// IsPending reports whether the invitation can still be answered.
func (i *Invitation) IsPending(now time.Time) bool {
	return i.Response == nil && i.ExpiresAt.After(now)
}

// ===============================
// BADGE HISTORY
// ===============================

// HistoryOutcome is the terminal outcome archived per badge.
type HistoryOutcome string

const (
	OutcomeCompleted HistoryOutcome = "completed"
	OutcomeAbandoned HistoryOutcome = "abandoned"
	OutcomeDeclined  HistoryOutcome = "declined"
	OutcomeTimeout   HistoryOutcome = "timeout"
)

// BadgeHistory is the append-only ledger used to enforce cooldown and compute
// milestones. Every resolution writes a row, including declines and timeouts,
// so turning down an offer holds the same-scope cooldown.
type BadgeHistory struct {
	ID          int64          `json:"id" db:"id"`
	UserID      int64          `json:"user_id" db:"user_id"`
	BadgeID     int64          `json:"badge_id" db:"badge_id"`
	Scope       Scope          `json:"scope" db:"-"`
	Outcome     HistoryOutcome `json:"outcome" db:"outcome"`
	Reason      string         `json:"reason,omitempty" db:"reason"`
	CompletedAt time.Time      `json:"completed_at" db:"completed_at"`
}
