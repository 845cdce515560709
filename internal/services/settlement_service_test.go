package services

import (
	"context"
	"testing"
	"time"

	"modrota/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepExpiredCompletedBadge(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	badgeID := seedActiveBadge(env, scope, 1, -time.Hour, 6, 5)

	svc := env.settlement(env.assignment(NewRandSource(1)))
	report, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, 0, report.Abandoned)

	badge, err := env.store.GetByID(context.Background(), badgeID)
	require.NoError(t, err)
	assert.Equal(t, models.BadgeExpired, badge.Status)

	assert.Equal(t, 50+models.DefaultRewardReputation, env.store.users[1].Reputation)

	// The token credit runs off the sweep path.
	require.Eventually(t, func() bool {
		env.transfer.mu.Lock()
		defer env.transfer.mu.Unlock()
		return env.transfer.credits[1] == models.DefaultRewardTokens
	}, time.Second, 10*time.Millisecond, "reward tokens are credited asynchronously")

	require.Len(t, env.store.history, 1)
	assert.Equal(t, models.OutcomeCompleted, env.store.history[0].Outcome)
}

func TestSweepExpiredAbandonedBadge(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	seedActiveBadge(env, scope, 1, -time.Hour, 2, 5)

	svc := env.settlement(env.assignment(NewRandSource(1)))
	report, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Settled)
	assert.Equal(t, 0, report.Completed)
	assert.Equal(t, 1, report.Abandoned)

	// Below quota: penalty applies and no tokens move.
	assert.Equal(t, 50-models.DefaultPenaltyReputation, env.store.users[1].Reputation)
	env.transfer.mu.Lock()
	assert.Empty(t, env.transfer.credits)
	env.transfer.mu.Unlock()

	require.Len(t, env.store.history, 1)
	assert.Equal(t, models.OutcomeAbandoned, env.store.history[0].Outcome)
}

func TestSweepExpiredBoundaryQuota(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	seedActiveBadge(env, scope, 1, -time.Minute, 5, 5)

	svc := env.settlement(env.assignment(NewRandSource(1)))
	report, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)

	// Exactly meeting the quota counts as completed.
	assert.Equal(t, 1, report.Completed)
}

func TestSweepExpiredSkipsNotDue(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	badgeID := seedActiveBadge(env, scope, 1, 24*time.Hour, 6, 5)

	svc := env.settlement(env.assignment(NewRandSource(1)))
	report, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, report.Settled)
	badge, err := env.store.GetByID(context.Background(), badgeID)
	require.NoError(t, err)
	assert.Equal(t, models.BadgeActive, badge.Status)
}

func TestSweepExpiredIsIdempotent(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	seedActiveBadge(env, scope, 1, -time.Hour, 6, 5)

	svc := env.settlement(env.assignment(NewRandSource(1)))
	_, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)

	report, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Settled, "a settled badge never settles twice")
	assert.Equal(t, 50+models.DefaultRewardReputation, env.store.users[1].Reputation)
}
