package services

import (
	"context"
	"fmt"
	"time"

	"modrota/internal/cache"
	"modrota/internal/models"
	"modrota/internal/repositories"

	"go.uber.org/zap"
)

const (
	leaderboardCacheKey = "stats:leaderboard"
	leaderboardCacheTTL = 10 * time.Minute
)

// statsService produces the reporting aggregates. All reads are cacheable;
// nothing here participates in the engine's correctness core.
type statsService struct {
	repos  *repositories.Collection
	cache  cache.Cache
	logger *zap.Logger
}

// NewStatsService creates the stats service.
func NewStatsService(repos *repositories.Collection, c cache.Cache, logger *zap.Logger) StatsService {
	return &statsService{repos: repos, cache: c, logger: logger}
}

// AggregateDaily rolls up the previous UTC day's settlements.
func (s *statsService) AggregateDaily(ctx context.Context) error {
	yesterday := time.Now().UTC().AddDate(0, 0, -1)
	scopes, err := s.repos.Stats.AggregateDay(ctx, yesterday)
	if err != nil {
		return mapRepositoryError(err, "daily stats")
	}

	if err := s.cache.DeletePattern(ctx, leaderboardCacheKey+":*"); err != nil {
		s.logger.Warn("Failed to invalidate leaderboard cache", zap.Error(err))
	}

	s.logger.Info("Daily aggregation complete",
		zap.String("day", yesterday.Format("2006-01-02")),
		zap.Int("scopes", scopes),
	)
	return nil
}

// GetScopeStats returns the scope's recent daily aggregates.
func (s *statsService) GetScopeStats(ctx context.Context, scope models.Scope, days int) ([]*models.ScopeStats, error) {
	if !scope.Valid() {
		return nil, NewValidationError("invalid scope", nil)
	}
	if days <= 0 || days > 90 {
		days = 30
	}

	stats, err := s.repos.Stats.GetScopeStats(ctx, scope, days)
	if err != nil {
		return nil, mapRepositoryError(err, "scope stats")
	}
	return stats, nil
}

// Leaderboard returns the completed-duty ranking, cached briefly.
func (s *statsService) Leaderboard(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	key := fmt.Sprintf("%s:%d", leaderboardCacheKey, limit)

	var cached []*models.LeaderboardEntry
	if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	entries, err := s.repos.History.Leaderboard(ctx, limit)
	if err != nil {
		return nil, mapRepositoryError(err, "leaderboard")
	}

	if err := s.cache.Set(ctx, key, entries, leaderboardCacheTTL); err != nil {
		s.logger.Warn("Failed to cache leaderboard", zap.Error(err))
	}
	return entries, nil
}
