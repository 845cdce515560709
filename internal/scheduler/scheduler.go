package scheduler

import (
	"context"
	"time"

	"modrota/internal/config"
	"modrota/internal/monitoring"
	"modrota/internal/services"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Job names as reported in logs and metrics.
const (
	JobBalance    = "balance"
	JobTimeouts   = "timeouts"
	JobSettlement = "settlement"
	JobDailyStats = "daily_stats"
)

// Scheduler runs the engine's periodic sweeps on cron specs. The three
// hourly jobs are offset twenty minutes apart so their database load never
// stacks; each sweep already tolerates concurrent runs, the offsets only
// smooth the load.
type Scheduler struct {
	cron     *cron.Cron
	cfg      config.SchedulerConfig
	services *services.Collection
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// New creates the scheduler with the configured cron specs.
func New(cfg config.SchedulerConfig, svcs *services.Collection, metrics *monitoring.Metrics, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		cfg:      cfg,
		services: svcs,
		metrics:  metrics,
		logger:   logger,
	}
}

// Start registers the jobs and begins ticking.
func (s *Scheduler) Start() error {
	jobs := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{JobBalance, s.cfg.BalanceCheckSpec, func(ctx context.Context) error {
			_, err := s.services.Assignment.BalanceAllScopes(ctx)
			return err
		}},
		{JobTimeouts, s.cfg.TimeoutSweepSpec, func(ctx context.Context) error {
			_, err := s.services.Invitation.SweepTimeouts(ctx)
			return err
		}},
		{JobSettlement, s.cfg.SettlementSpec, func(ctx context.Context) error {
			_, err := s.services.Settlement.SweepExpired(ctx)
			return err
		}},
		{JobDailyStats, s.cfg.DailyStatsSpec, func(ctx context.Context) error {
			return s.services.Stats.AggregateDaily(ctx)
		}},
	}

	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.spec, func() { s.runJob(job.name, job.run) }); err != nil {
			return err
		}
		s.logger.Info("Scheduled job registered",
			zap.String("job", job.name),
			zap.String("spec", job.spec),
		)
	}

	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for running jobs.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) runJob(name string, run func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	start := time.Now()
	err := run(ctx)
	elapsed := time.Since(start)
	s.metrics.ObserveSweep(name, elapsed, err)

	if err != nil {
		s.logger.Error("Scheduled job failed",
			zap.String("job", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("Scheduled job finished",
		zap.String("job", name),
		zap.Duration("elapsed", elapsed),
	)
}
