package models

import "time"

// ===============================
// CONTENT REFERENCES
// ===============================

// ContentRef points at a piece of flagged content owned by the content store.
type ContentRef struct {
	Type string `json:"type" db:"content_type" validate:"required,oneof=post comment"`
	ID   int64  `json:"id" db:"content_id" validate:"required,gt=0"`
}

// ===============================
// MODERATION ACTIONS
// ===============================

// Decision is the reviewer's verdict on a queue item.
type Decision string

const (
	DecisionKeep   Decision = "keep"
	DecisionRemove Decision = "remove"
)

// ValidDecision validates the decision enum.
func ValidDecision(d string) bool {
	return Decision(d) == DecisionKeep || Decision(d) == DecisionRemove
}

// ModerationAction is an append-only record of a single review decision.
// FlagCount snapshots the flag count observed at review time.
type ModerationAction struct {
	ID        int64      `json:"id" db:"id"`
	BadgeID   int64      `json:"badge_id" db:"badge_id"`
	Content   ContentRef `json:"content" db:"-"`
	Decision  Decision   `json:"decision" db:"decision"`
	Reason    string     `json:"reason" db:"reason"`
	FlagCount int        `json:"flag_count" db:"flag_count"`
	LedgerRef *string    `json:"ledger_ref,omitempty" db:"ledger_ref"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// ===============================
// CONTENT FLAGS (consumed)
// ===============================

// ContentFlag is owned by the content store; the rotation engine only flips
// Resolved as a side effect of decisions.
type ContentFlag struct {
	ID        int64      `json:"id" db:"id"`
	Content   ContentRef `json:"content" db:"-"`
	FlaggerID int64      `json:"flagger_id" db:"flagger_id"`
	Reason    string     `json:"reason" db:"reason"`
	Resolved  bool       `json:"resolved" db:"resolved"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// ===============================
// REVIEW QUEUE
// ===============================

// QueueItem is one entry in a badge holder's review queue, ordered by flag
// count descending then oldest-flagged-first.
type QueueItem struct {
	Content      ContentRef `json:"content"`
	AuthorID     int64      `json:"author_id"`
	FlagCount    int        `json:"flag_count"`
	FlagReasons  []string   `json:"flag_reasons"`
	FirstFlagged time.Time  `json:"first_flagged"`

	// Prior decisions by other badges on the same content; continuity only,
	// never an exclusion criterion.
	PriorActions []ModerationAction `json:"prior_actions,omitempty"`
}
