package repositories

import (
	"modrota/internal/database"

	"go.uber.org/zap"
)

// Collection bundles every repository for injection into the service layer.
type Collection struct {
	Badge      BadgeRepository
	Invitation InvitationRepository
	Config     ModerationConfigRepository
	Moderation ModerationRepository
	History    HistoryRepository
	Identity   IdentityRepository
	Membership MembershipRepository
	Stats      StatsRepository
}

// NewCollection wires all repositories against one database manager.
func NewCollection(db *database.Manager, logger *zap.Logger) *Collection {
	return &Collection{
		Badge:      NewBadgeRepository(db, logger),
		Invitation: NewInvitationRepository(db, logger),
		Config:     NewModerationConfigRepository(db, logger),
		Moderation: NewModerationRepository(db, logger),
		History:    NewHistoryRepository(db, logger),
		Identity:   NewIdentityRepository(db, logger),
		Membership: NewMembershipRepository(db, logger),
		Stats:      NewStatsRepository(db, logger),
	}
}
