package services

import (
	"context"
	"testing"
	"time"

	"modrota/internal/models"
	"modrota/internal/repositories"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedOffer plants an offered badge with its invitation directly in the
// store, bypassing assignment.
func seedOffer(env *testEnv, scope models.Scope, userID int64, expiresAt time.Time) (badgeID, invitationID int64) {
	badge := &models.Badge{
		Scope:              scope,
		HolderID:           userID,
		DutyDays:           5,
		MinActionsRequired: models.DefaultMinActions,
	}
	inv := &models.Invitation{UserID: userID, ExpiresAt: expiresAt}
	if err := env.store.CreateOffer(context.Background(), 1000, badge, inv); err != nil {
		panic(err)
	}
	return badge.ID, inv.ID
}

// seedActiveBadge plants an already accepted badge.
func seedActiveBadge(env *testEnv, scope models.Scope, userID int64, endsIn time.Duration, actions, minActions int) int64 {
	now := time.Now()
	end := now.Add(endsIn)
	id := env.store.id()
	env.store.badges[id] = &models.Badge{
		ID:                 id,
		Scope:              scope,
		HolderID:           userID,
		Status:             models.BadgeActive,
		DutyDays:           5,
		StartDate:          &now,
		EndDate:            &end,
		ActionsTaken:       actions,
		MinActionsRequired: minActions,
	}
	return id
}

func TestAcceptActivatesBadge(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	badgeID, invID := seedOffer(env, scope, 1, time.Now().Add(models.InvitationTTL))

	svc := env.invitation(env.assignment(NewRandSource(1)))
	badge, err := svc.Accept(context.Background(), invID, 1)
	require.NoError(t, err)

	assert.Equal(t, badgeID, badge.ID)
	assert.Equal(t, models.BadgeActive, badge.Status)
	require.NotNil(t, badge.EndDate)
	wantEnd := time.Now().Add(5 * 24 * time.Hour)
	assert.WithinDuration(t, wantEnd, *badge.EndDate, time.Minute)
}

func TestAcceptRejectsWrongUser(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	_, invID := seedOffer(env, scope, 1, time.Now().Add(time.Hour))

	svc := env.invitation(env.assignment(NewRandSource(1)))
	_, err := svc.Accept(context.Background(), invID, 2)
	require.Error(t, err)
	assert.True(t, IsPreconditionError(err))
}

func TestAcceptRejectsExpiredInvitation(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	_, invID := seedOffer(env, scope, 1, time.Now().Add(-time.Minute))

	svc := env.invitation(env.assignment(NewRandSource(1)))
	_, err := svc.Accept(context.Background(), invID, 1)
	require.Error(t, err)
	assert.True(t, IsPreconditionError(err))
}

func TestDeclineBackfillsSlot(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	env.store.addUser(2, models.ModeNormal, 50, 30)
	env.store.addMembers(scope, 1, 2)

	cfg := models.DefaultModerationConfig(scope)
	cfg.BadgeRatio = 2 // two members, one badge
	env.store.configs[scope] = cfg

	badgeID, invID := seedOffer(env, scope, 1, time.Now().Add(time.Hour))

	svc := env.invitation(env.assignment(NewRandSource(1)))
	require.NoError(t, svc.Decline(context.Background(), invID, 1))

	declined, err := env.store.GetByID(context.Background(), badgeID)
	require.NoError(t, err)
	assert.Equal(t, models.BadgeDeclined, declined.Status)

	// The freed slot goes to the remaining eligible member.
	replacement, err := env.store.GetOpenForUser(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, models.BadgeOffered, replacement.Status)
}

func TestDeclineStartsCooldownAndBlocksReoffer(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	env.store.addMembers(scope, 1)

	cfg := models.DefaultModerationConfig(scope)
	cfg.BadgeRatio = 1 // one member, one slot
	env.store.configs[scope] = cfg

	_, invID := seedOffer(env, scope, 1, time.Now().Add(time.Hour))

	svc := env.invitation(env.assignment(NewRandSource(1)))
	require.NoError(t, svc.Decline(context.Background(), invID, 1))

	require.Len(t, env.store.history, 1)
	assert.Equal(t, models.OutcomeDeclined, env.store.history[0].Outcome)

	cooling, err := fakeHistoryRepo{env.store}.InCooldown(
		context.Background(), 1, scope, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, cooling, "declining starts the cooldown window")

	// The freed slot must not come straight back to the decliner, even with
	// nobody else eligible in the scope.
	_, err = env.store.GetOpenForUser(context.Background(), 1)
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestSweepTimeoutsExpiresAndBackfills(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	env.store.addUser(2, models.ModeNormal, 50, 30)
	env.store.addMembers(scope, 1, 2)

	cfg := models.DefaultModerationConfig(scope)
	cfg.BadgeRatio = 2
	env.store.configs[scope] = cfg

	badgeID, _ := seedOffer(env, scope, 1, time.Now().Add(-time.Minute))

	svc := env.invitation(env.assignment(NewRandSource(1)))
	report, err := svc.SweepTimeouts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 1, report.Backfill)
	assert.Equal(t, 0, report.Errors)

	expired, err := env.store.GetByID(context.Background(), badgeID)
	require.NoError(t, err)
	assert.Equal(t, models.BadgeDeclined, expired.Status)

	inv := env.store.invitations[badgeID+1]
	require.NotNil(t, inv.Response)
	assert.Equal(t, models.InvitationTimeout, *inv.Response)

	// The timed-out user is cooling down, so the replacement goes to the
	// other member instead of bouncing back.
	require.Len(t, env.store.history, 1)
	assert.Equal(t, models.OutcomeTimeout, env.store.history[0].Outcome)

	_, err = env.store.GetOpenForUser(context.Background(), 1)
	assert.ErrorIs(t, err, repositories.ErrNotFound)

	replacement, err := env.store.GetOpenForUser(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, models.BadgeOffered, replacement.Status)
}

func TestSweepTimeoutsSkipsLiveInvitations(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	seedOffer(env, scope, 1, time.Now().Add(time.Hour))

	svc := env.invitation(env.assignment(NewRandSource(1)))
	report, err := svc.SweepTimeouts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Expired)
}

func TestPassBadgeAppliesPenaltyAndCooldown(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	badgeID := seedActiveBadge(env, scope, 1, 3*24*time.Hour, 0, 5)

	svc := env.invitation(env.assignment(NewRandSource(1)))
	require.NoError(t, svc.PassBadge(context.Background(), badgeID, 1, "family emergency, traveling"))

	badge, err := env.store.GetByID(context.Background(), badgeID)
	require.NoError(t, err)
	assert.Equal(t, models.BadgeAbandoned, badge.Status)
	require.Len(t, env.store.history, 1)
	assert.Equal(t, "family emergency, traveling", env.store.history[0].Reason)

	assert.Equal(t, 50-models.DefaultPenaltyReputation, env.store.users[1].Reputation)

	cooling, err := fakeHistoryRepo{env.store}.InCooldown(
		context.Background(), 1, scope, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, cooling, "passing starts the cooldown window")
}

func TestPassBadgeRejectsNonHolder(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	badgeID := seedActiveBadge(env, scope, 1, 3*24*time.Hour, 0, 5)

	svc := env.invitation(env.assignment(NewRandSource(1)))
	err := svc.PassBadge(context.Background(), badgeID, 99, "no time for this duty")
	require.Error(t, err)
	assert.True(t, IsPreconditionError(err))
	assert.Equal(t, 50, env.store.users[1].Reputation, "a rejected pass debits nobody")
}

func TestPassBadgeRequiresReason(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	badgeID := seedActiveBadge(env, scope, 1, 3*24*time.Hour, 0, 5)

	svc := env.invitation(env.assignment(NewRandSource(1)))
	err := svc.PassBadge(context.Background(), badgeID, 1, "  too busy ")
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", GetServiceError(err).Type)

	badge, err := env.store.GetByID(context.Background(), badgeID)
	require.NoError(t, err)
	assert.Equal(t, models.BadgeActive, badge.Status, "a rejected pass leaves the badge untouched")
}

func TestGetStatusReturnsPendingInvitation(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	expires := time.Now().Add(time.Hour)
	_, invID := seedOffer(env, scope, 1, expires)

	svc := env.invitation(env.assignment(NewRandSource(1)))
	view, err := svc.GetStatus(context.Background(), 1)
	require.NoError(t, err)

	require.NotNil(t, view.Badge)
	assert.Equal(t, models.BadgeOffered, view.Badge.Status)
	require.NotNil(t, view.Invitation)
	assert.Equal(t, invID, view.Invitation.ID)
	require.NotNil(t, view.Deadline)
	assert.WithinDuration(t, expires, *view.Deadline, time.Second)
}

func TestGetStatusEmptyForIdleUser(t *testing.T) {
	env := newTestEnv()
	svc := env.invitation(env.assignment(NewRandSource(1)))

	view, err := svc.GetStatus(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, view.Badge)
	assert.Nil(t, view.Invitation)
}
