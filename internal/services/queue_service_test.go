package services

import (
	"context"
	"testing"
	"time"

	"modrota/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetQueueRequiresActiveBadge(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	badgeID, _ := seedOffer(env, scope, 1, time.Now().Add(time.Hour))

	svc := env.queueService()
	_, err := svc.GetQueue(context.Background(), badgeID, 1, 10)
	require.Error(t, err)
	assert.True(t, IsPreconditionError(err))
}

func TestGetQueueReturnsScopeItems(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	badgeID := seedActiveBadge(env, scope, 1, 3*24*time.Hour, 0, 5)

	ref := models.ContentRef{Type: "post", ID: 10}
	env.store.queue[scope] = []*models.QueueItem{
		{Content: ref, AuthorID: 9, FlagCount: 3},
	}

	svc := env.queueService()
	view, err := svc.GetQueue(context.Background(), badgeID, 1, 10)
	require.NoError(t, err)

	assert.Equal(t, badgeID, view.Badge.ID)
	require.Len(t, view.Items, 1)
	assert.Equal(t, ref, view.Items[0].Content)
}

func TestSubmitDecisionRemove(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	env.store.addUser(9, models.ModeNormal, 20, 100) // content author
	badgeID := seedActiveBadge(env, scope, 1, 3*24*time.Hour, 0, 5)

	ref := models.ContentRef{Type: "post", ID: 10}
	env.store.addContent(ref, 9, 3)

	svc := env.queueService()
	action, err := svc.SubmitDecision(context.Background(), badgeID, 1, &DecisionRequest{
		ContentType: "post", ContentID: 10, Decision: "remove", Reason: "spam",
	})
	require.NoError(t, err)

	assert.Equal(t, models.DecisionRemove, action.Decision)
	assert.Equal(t, 3, action.FlagCount, "flag count snapshots review time")

	assert.True(t, env.store.hidden[ref], "removed content is hidden")
	assert.Equal(t, 20-models.DefaultRemovalReputation, env.store.users[9].Reputation)

	badge, err := env.store.GetByID(context.Background(), badgeID)
	require.NoError(t, err)
	assert.Equal(t, 1, badge.ActionsTaken)
}

func TestSubmitDecisionKeepLeavesContent(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	env.store.addUser(9, models.ModeNormal, 20, 100)
	badgeID := seedActiveBadge(env, scope, 1, 3*24*time.Hour, 0, 5)

	ref := models.ContentRef{Type: "comment", ID: 11}
	env.store.addContent(ref, 9, 2)

	svc := env.queueService()
	action, err := svc.SubmitDecision(context.Background(), badgeID, 1, &DecisionRequest{
		ContentType: "comment", ContentID: 11, Decision: "keep",
	})
	require.NoError(t, err)

	assert.Equal(t, models.DecisionKeep, action.Decision)
	assert.False(t, env.store.hidden[ref])
	assert.Equal(t, 20, env.store.users[9].Reputation, "keep never debits the author")
	assert.Equal(t, 0, env.store.flagCounts[ref], "flags are resolved either way")
}

func TestSubmitDecisionAlreadyResolved(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	env.store.addUser(9, models.ModeNormal, 20, 100)
	badgeID := seedActiveBadge(env, scope, 1, 3*24*time.Hour, 0, 5)

	ref := models.ContentRef{Type: "post", ID: 10}
	env.store.addContent(ref, 9, 0) // already resolved

	svc := env.queueService()
	_, err := svc.SubmitDecision(context.Background(), badgeID, 1, &DecisionRequest{
		ContentType: "post", ContentID: 10, Decision: "keep",
	})
	require.Error(t, err)
	assert.True(t, IsPreconditionError(err))
	assert.Equal(t, "ALREADY_RESOLVED", GetServiceError(err).Code)
}

func TestSubmitDecisionWrongHolder(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	badgeID := seedActiveBadge(env, scope, 1, 3*24*time.Hour, 0, 5)

	svc := env.queueService()
	_, err := svc.SubmitDecision(context.Background(), badgeID, 2, &DecisionRequest{
		ContentType: "post", ContentID: 10, Decision: "keep",
	})
	require.Error(t, err)
	assert.Equal(t, "FORBIDDEN", GetServiceError(err).Type)
}

func TestSubmitDecisionValidatesInput(t *testing.T) {
	env := newTestEnv()
	svc := env.queueService()

	_, err := svc.SubmitDecision(context.Background(), 1, 1, &DecisionRequest{
		ContentType: "post", ContentID: 10, Decision: "nuke",
	})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", GetServiceError(err).Type)
}

func TestSubmitBatchPartialFailure(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	env.store.addUser(9, models.ModeNormal, 20, 100)
	badgeID := seedActiveBadge(env, scope, 1, 3*24*time.Hour, 0, 5)

	env.store.addContent(models.ContentRef{Type: "post", ID: 10}, 9, 2)
	env.store.addContent(models.ContentRef{Type: "post", ID: 11}, 9, 0) // resolved

	svc := env.queueService()
	result, err := svc.SubmitBatch(context.Background(), badgeID, 1, &BatchDecisionRequest{
		Decisions: []DecisionRequest{
			{ContentType: "post", ContentID: 10, Decision: "keep"},
			{ContentType: "post", ContentID: 11, Decision: "keep"},
		},
	})
	require.NoError(t, err, "one failed item never sinks the batch")

	assert.Len(t, result.Submitted, 1)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, 1, result.Failed[0].Index)
	assert.Equal(t, "post:11", result.Failed[0].Content)
}

func TestSubmitBatchAllFailed(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}
	env.store.addUser(1, models.ModeNormal, 50, 30)
	env.store.addUser(9, models.ModeNormal, 20, 100)
	badgeID := seedActiveBadge(env, scope, 1, 3*24*time.Hour, 0, 5)

	env.store.addContent(models.ContentRef{Type: "post", ID: 10}, 9, 0)

	svc := env.queueService()
	_, err := svc.SubmitBatch(context.Background(), badgeID, 1, &BatchDecisionRequest{
		Decisions: []DecisionRequest{
			{ContentType: "post", ContentID: 10, Decision: "keep"},
		},
	})
	require.Error(t, err)
	assert.Equal(t, "BATCH_FAILED", GetServiceError(err).Code)
}

func TestSubmitBatchSizeLimit(t *testing.T) {
	env := newTestEnv()
	svc := env.queueService()

	decisions := make([]DecisionRequest, MaxBatchDecisions+1)
	for i := range decisions {
		decisions[i] = DecisionRequest{ContentType: "post", ContentID: int64(i + 1), Decision: "keep"}
	}

	_, err := svc.SubmitBatch(context.Background(), 1, 1, &BatchDecisionRequest{Decisions: decisions})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", GetServiceError(err).Type)
}
