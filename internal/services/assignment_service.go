package services

import (
	"context"
	"errors"
	"time"

	"modrota/internal/events"
	"modrota/internal/models"
	"modrota/internal/repositories"

	"go.uber.org/zap"
)

// assignmentService computes per-scope badge deficits and fills them with
// offers to randomly selected eligible members.
type assignmentService struct {
	repos  *repositories.Collection
	config ConfigService
	bus    events.EventBus
	rand   RandSource
	logger *zap.Logger
}

// NewAssignmentService creates the assignment service.
func NewAssignmentService(
	repos *repositories.Collection,
	config ConfigService,
	bus events.EventBus,
	rand RandSource,
	logger *zap.Logger,
) AssignmentService {
	return &assignmentService{
		repos:  repos,
		config: config,
		bus:    bus,
		rand:   rand,
		logger: logger,
	}
}

// EnsureScopeCapacity brings the scope up to ceil(activeMembers/ratio) open
// badges. Selection walks a shuffled member list so retries after ineligible
// candidates stay uniform; the repository re-checks capacity under the scope
// advisory lock per offer, which makes concurrent sweeps converge instead of
// over-offering.
func (s *assignmentService) EnsureScopeCapacity(ctx context.Context, scope models.Scope) (*CapacityReport, error) {
	if !scope.Valid() {
		return nil, NewValidationError("invalid scope", nil)
	}

	cfg, err := s.config.GetConfig(ctx, scope)
	if err != nil {
		return nil, err
	}

	members, err := s.repos.Membership.ActiveMemberIDs(ctx, scope, models.ActivityWindowDays)
	if err != nil {
		return nil, mapRepositoryError(err, "scope membership")
	}

	report := &CapacityReport{
		Scope:         scope,
		ActiveMembers: len(members),
		Desired:       ceilDiv(len(members), cfg.BadgeRatio),
	}

	report.CurrentOpen, err = s.repos.Badge.CountOpenForScope(ctx, scope)
	if err != nil {
		return nil, mapRepositoryError(err, "badge count")
	}
	if report.Deficit() == 0 {
		return report, nil
	}

	s.shuffle(members)

	for _, candidateID := range members {
		if report.Offered >= report.Deficit() {
			break
		}

		eligible, err := s.isEligible(ctx, candidateID, scope, cfg)
		if err != nil {
			s.logger.Warn("Eligibility check failed",
				zap.Int64("user_id", candidateID),
				zap.String("scope", scope.String()),
				zap.Error(err),
			)
			report.Skipped++
			continue
		}
		if !eligible {
			report.Skipped++
			continue
		}

		created, err := s.offer(ctx, scope, candidateID, cfg, report.Desired)
		switch {
		case errors.Is(err, repositories.ErrCapacityRestored):
			// Another sweep filled the deficit while we were selecting.
			return report, nil
		case errors.Is(err, repositories.ErrDuplicateOpenBadge):
			report.Skipped++
			continue
		case err != nil:
			return report, mapRepositoryError(err, "badge offer")
		}

		report.Offered++
		s.publishOffer(ctx, created, candidateID)
	}

	s.logger.Info("Scope capacity ensured",
		zap.String("scope", scope.String()),
		zap.Int("active_members", report.ActiveMembers),
		zap.Int("desired", report.Desired),
		zap.Int("offered", report.Offered),
		zap.Int("skipped", report.Skipped),
	)
	return report, nil
}

// BalanceAllScopes visits every scope with active members. One broken scope
// is logged and counted, never fatal to the sweep.
func (s *assignmentService) BalanceAllScopes(ctx context.Context) (*BalanceReport, error) {
	scopes, err := s.repos.Membership.ScopesWithActiveMembers(ctx, models.ActivityWindowDays)
	if err != nil {
		return nil, mapRepositoryError(err, "scope list")
	}

	report := &BalanceReport{ScopesVisited: len(scopes)}
	for _, scope := range scopes {
		cr, err := s.EnsureScopeCapacity(ctx, scope)
		if err != nil {
			report.Errors++
			s.logger.Error("Balance pass failed for scope",
				zap.String("scope", scope.String()),
				zap.Error(err),
			)
			continue
		}
		report.TotalOffered += cr.Offered
	}

	s.logger.Info("Balance sweep finished",
		zap.Int("scopes_visited", report.ScopesVisited),
		zap.Int("total_offered", report.TotalOffered),
		zap.Int("errors", report.Errors),
	)
	return report, nil
}

// OfferReplacement fills at most one freed slot in the scope. Used by the
// decline, timeout, and pass paths; the chain of a replacement being declined
// and backfilled again terminates once the eligible pool runs dry.
func (s *assignmentService) OfferReplacement(ctx context.Context, scope models.Scope) (bool, error) {
	report, err := s.EnsureScopeCapacity(ctx, scope)
	if err != nil {
		return false, err
	}
	return report.Offered > 0, nil
}

// CheckEligibility runs the same criteria as the offer path but keeps going
// after the first failure so callers see everything standing in their way.
func (s *assignmentService) CheckEligibility(ctx context.Context, userID int64, scope models.Scope) (*EligibilityView, error) {
	if !scope.Valid() {
		return nil, NewValidationError("invalid scope", nil)
	}

	cfg, err := s.config.GetConfig(ctx, scope)
	if err != nil {
		return nil, err
	}

	user, err := s.repos.Identity.GetUser(ctx, userID)
	if err != nil {
		return nil, mapRepositoryError(err, "user")
	}

	view := &EligibilityView{Scope: scope, UserID: userID}

	member, err := s.repos.Membership.IsActiveMember(ctx, userID, scope, models.ActivityWindowDays)
	if err != nil {
		return nil, mapRepositoryError(err, "scope membership")
	}
	if !member {
		view.Reasons = append(view.Reasons, "not an active member of this scope")
	}
	if user.Restricted() {
		view.Reasons = append(view.Reasons, "account is restricted")
	}
	if user.Reputation < cfg.MinReputation {
		view.Reasons = append(view.Reasons, "reputation below minimum")
	}
	if user.AccountAgeDays < cfg.MinAccountAgeDays {
		view.Reasons = append(view.Reasons, "account too new")
	}

	if _, err := s.repos.Badge.GetOpenForUser(ctx, userID); err == nil {
		view.Reasons = append(view.Reasons, "already holds an open badge or invitation")
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return nil, mapRepositoryError(err, "open badge")
	}

	cutoff := time.Now().AddDate(0, 0, -cfg.CooldownDays)
	cooling, err := s.repos.History.InCooldown(ctx, userID, scope, cutoff)
	if err != nil {
		return nil, mapRepositoryError(err, "cooldown")
	}
	if cooling {
		view.Reasons = append(view.Reasons, "in post-duty cooldown for this scope")
	}

	view.Eligible = len(view.Reasons) == 0
	return view, nil
}

func (s *assignmentService) isEligible(ctx context.Context, userID int64, scope models.Scope, cfg *models.ModerationConfig) (bool, error) {
	user, err := s.repos.Identity.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if user.Restricted() ||
		user.Reputation < cfg.MinReputation ||
		user.AccountAgeDays < cfg.MinAccountAgeDays {
		return false, nil
	}

	if _, err := s.repos.Badge.GetOpenForUser(ctx, userID); err == nil {
		return false, nil
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return false, err
	}

	cutoff := time.Now().AddDate(0, 0, -cfg.CooldownDays)
	cooling, err := s.repos.History.InCooldown(ctx, userID, scope, cutoff)
	if err != nil {
		return false, err
	}
	return !cooling, nil
}

func (s *assignmentService) offer(ctx context.Context, scope models.Scope, userID int64, cfg *models.ModerationConfig, desired int) (*models.Badge, error) {
	dutyDays := cfg.MinDutyDays
	if spread := cfg.MaxDutyDays - cfg.MinDutyDays; spread > 0 {
		dutyDays += s.rand.Intn(spread + 1)
	}

	badge := &models.Badge{
		Scope:              scope,
		HolderID:           userID,
		DutyDays:           dutyDays,
		MinActionsRequired: cfg.MinActionsRequired,
	}
	inv := &models.Invitation{
		UserID:    userID,
		ExpiresAt: time.Now().Add(models.InvitationTTL),
	}

	if err := s.repos.Badge.CreateOffer(ctx, desired, badge, inv); err != nil {
		return nil, err
	}
	return badge, nil
}

func (s *assignmentService) publishOffer(ctx context.Context, badge *models.Badge, userID int64) {
	event := events.NewBadgeEvent(events.TypeBadgeOffered, badge.ID, badge.Scope, userID)
	if err := s.bus.PublishAsync(ctx, event); err != nil {
		s.logger.Warn("Failed to publish offer event",
			zap.Int64("badge_id", badge.ID),
			zap.Error(err),
		)
	}
}

// shuffle is an in-place Fisher-Yates over the candidate pool.
func (s *assignmentService) shuffle(ids []int64) {
	for i := len(ids) - 1; i > 0; i-- {
		j := s.rand.Intn(i + 1)
		ids[i], ids[j] = ids[j], ids[i]
	}
}

func ceilDiv(a, b int) int {
	if a <= 0 || b <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
