package services

import (
	"context"
	"testing"

	"modrota/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfigCreatesDefaults(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}

	cfg, err := env.config.GetConfig(context.Background(), scope)
	require.NoError(t, err)

	assert.Equal(t, models.DefaultBadgeRatio, cfg.BadgeRatio)
	assert.Equal(t, models.DefaultCooldownDays, cfg.CooldownDays)
	assert.Equal(t, scope, cfg.Scope)

	// Second read returns the same row, not a fresh default.
	again, err := env.config.GetConfig(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, again.ID)
}

func TestUpdateConfigPartialMerge(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}

	ratio := 25
	cfg, err := env.config.UpdateConfig(context.Background(), scope, &UpdateConfigRequest{
		BadgeRatio: &ratio,
	})
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.BadgeRatio)
	assert.Equal(t, models.DefaultCooldownDays, cfg.CooldownDays, "untouched fields keep defaults")
}

func TestUpdateConfigRejectsInvertedDutyWindow(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeGroup, ID: 1}

	minDays := 10
	_, err := env.config.UpdateConfig(context.Background(), scope, &UpdateConfigRequest{
		MinDutyDays: &minDays, // above the default max of 7
	})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", GetServiceError(err).Type)
}

func TestUpdateConfigInvalidatesCache(t *testing.T) {
	env := newTestEnv()
	scope := models.Scope{Kind: models.ScopeTopic, ID: 2}

	_, err := env.config.GetConfig(context.Background(), scope)
	require.NoError(t, err)

	ratio := 10
	_, err = env.config.UpdateConfig(context.Background(), scope, &UpdateConfigRequest{BadgeRatio: &ratio})
	require.NoError(t, err)

	cfg, err := env.config.GetConfig(context.Background(), scope)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.BadgeRatio, "read after update sees the new value")
}

func TestGetConfigRejectsInvalidScope(t *testing.T) {
	env := newTestEnv()

	_, err := env.config.GetConfig(context.Background(), models.Scope{Kind: "channel", ID: 1})
	require.Error(t, err)
	assert.Equal(t, "VALIDATION_ERROR", GetServiceError(err).Type)
}
