package scheduler

import (
	"context"
	"testing"

	"modrota/internal/config"
	"modrota/internal/monitoring"
	"modrota/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testSchedulerConfig() config.SchedulerConfig {
	return config.SchedulerConfig{
		Enabled:          true,
		BalanceCheckSpec: "0 * * * *",
		TimeoutSweepSpec: "20 * * * *",
		SettlementSpec:   "40 * * * *",
		DailyStatsSpec:   "10 2 * * *",
	}
}

func TestStartRegistersAllJobs(t *testing.T) {
	s := New(testSchedulerConfig(), &services.Collection{}, monitoring.NewMetrics(), zap.NewNop())

	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 4)
	require.NoError(t, s.Stop(context.Background()))
}

func TestStartRejectsInvalidSpec(t *testing.T) {
	cfg := testSchedulerConfig()
	cfg.BalanceCheckSpec = "not a cron spec"

	s := New(cfg, &services.Collection{}, monitoring.NewMetrics(), zap.NewNop())
	assert.Error(t, s.Start())
}
