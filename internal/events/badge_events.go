package events

import (
	"time"

	"modrota/internal/models"
)

// Lifecycle event types published by the rotation engine.
const (
	TypeBadgeOffered   = "badge:offered"
	TypeBadgeAccepted  = "badge:accepted"
	TypeBadgeDeclined  = "badge:declined"
	TypeBadgeTimeout   = "badge:timeout"
	TypeBadgePassed    = "badge:passed"
	TypeBadgeAbandoned = "badge:abandoned"
	TypeBadgeExpired   = "badge:expired"

	TypeContentRemoved = "moderation:content_removed"
	TypeContentKept    = "moderation:content_kept"
)

// BadgeEvent covers the badge lifecycle transitions.
type BadgeEvent struct {
	BaseEvent
	BadgeID int64        `json:"badge_id"`
	Scope   models.Scope `json:"scope"`
	UserID  int64        `json:"user_id"`
}

// NewBadgeEvent creates a lifecycle event for a badge transition.
func NewBadgeEvent(eventType string, badgeID int64, scope models.Scope, userID int64) *BadgeEvent {
	return &BadgeEvent{
		BaseEvent: BaseEvent{
			EventID:   GenerateEventID(),
			EventType: eventType,
			Timestamp: time.Now(),
			UserID:    &userID,
			Metadata: map[string]interface{}{
				"scope": scope.String(),
			},
		},
		BadgeID: badgeID,
		Scope:   scope,
		UserID:  userID,
	}
}

// ModerationEvent is emitted when a decision resolves flagged content.
type ModerationEvent struct {
	BaseEvent
	BadgeID   int64             `json:"badge_id"`
	Content   models.ContentRef `json:"content"`
	Decision  models.Decision   `json:"decision"`
	FlagCount int               `json:"flag_count"`
}

// NewModerationEvent creates a moderation decision event.
func NewModerationEvent(badgeID int64, holderID int64, content models.ContentRef, decision models.Decision, flagCount int) *ModerationEvent {
	eventType := TypeContentKept
	if decision == models.DecisionRemove {
		eventType = TypeContentRemoved
	}
	return &ModerationEvent{
		BaseEvent: BaseEvent{
			EventID:   GenerateEventID(),
			EventType: eventType,
			Timestamp: time.Now(),
			UserID:    &holderID,
		},
		BadgeID:   badgeID,
		Content:   content,
		Decision:  decision,
		FlagCount: flagCount,
	}
}
