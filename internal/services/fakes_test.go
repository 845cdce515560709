package services

import (
	"context"
	"sync"
	"time"

	"modrota/internal/cache"
	"modrota/internal/config"
	"modrota/internal/events"
	"modrota/internal/models"
	"modrota/internal/repositories"

	"go.uber.org/zap"
)

// fakeStore is a single in-memory backing store implementing every
// repository interface, with the same sentinel-error semantics as the SQL
// implementations.
type fakeStore struct {
	mu sync.Mutex

	nextID      int64
	badges      map[int64]*models.Badge
	invitations map[int64]*models.Invitation
	history     []models.BadgeHistory
	users       map[int64]*models.User
	members     map[models.Scope][]int64
	configs     map[models.Scope]*models.ModerationConfig

	queue         map[models.Scope][]*models.QueueItem
	flagCounts    map[models.ContentRef]int
	actions       []*models.ModerationAction
	contentAuthor map[models.ContentRef]int64
	hidden        map[models.ContentRef]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		badges:        make(map[int64]*models.Badge),
		invitations:   make(map[int64]*models.Invitation),
		users:         make(map[int64]*models.User),
		members:       make(map[models.Scope][]int64),
		configs:       make(map[models.Scope]*models.ModerationConfig),
		queue:         make(map[models.Scope][]*models.QueueItem),
		flagCounts:    make(map[models.ContentRef]int),
		contentAuthor: make(map[models.ContentRef]int64),
		hidden:        make(map[models.ContentRef]bool),
	}
}

func (s *fakeStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *fakeStore) addUser(id int64, mode models.UserMode, reputation, ageDays int) {
	s.users[id] = &models.User{
		ID:             id,
		Mode:           mode,
		Reputation:     reputation,
		AccountAgeDays: ageDays,
		CreatedAt:      time.Now().AddDate(0, 0, -ageDays),
		LastActiveAt:   time.Now(),
	}
}

func (s *fakeStore) addMembers(scope models.Scope, ids ...int64) {
	s.members[scope] = append(s.members[scope], ids...)
}

func (s *fakeStore) addContent(ref models.ContentRef, authorID int64, flags int) {
	s.contentAuthor[ref] = authorID
	s.flagCounts[ref] = flags
}

// ===============================
// BadgeRepository
// ===============================

func (s *fakeStore) GetByID(ctx context.Context, id int64) (*models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.badges[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copy := *b
	return &copy, nil
}

func (s *fakeStore) GetOpenForUser(ctx context.Context, userID int64) (*models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.badges {
		if b.HolderID == userID && b.IsOpen() {
			copy := *b
			return &copy, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s *fakeStore) CountOpenForScope(ctx context.Context, scope models.Scope) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countOpenLocked(scope), nil
}

func (s *fakeStore) countOpenLocked(scope models.Scope) int {
	n := 0
	for _, b := range s.badges {
		if b.Scope == scope && b.IsOpen() {
			n++
		}
	}
	return n
}

func (s *fakeStore) CreateOffer(ctx context.Context, desired int, badge *models.Badge, inv *models.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.countOpenLocked(badge.Scope) >= desired {
		return repositories.ErrCapacityRestored
	}
	for _, b := range s.badges {
		if b.HolderID == badge.HolderID && b.IsOpen() {
			return repositories.ErrDuplicateOpenBadge
		}
	}

	badge.ID = s.id()
	badge.Status = models.BadgeOffered
	badge.CreatedAt = time.Now()
	stored := *badge
	s.badges[badge.ID] = &stored

	inv.ID = s.id()
	inv.BadgeID = badge.ID
	inv.InvitedAt = time.Now()
	inv.Scope = badge.Scope
	storedInv := *inv
	s.invitations[inv.ID] = &storedInv
	return nil
}

func (s *fakeStore) DueForSettlement(ctx context.Context, now time.Time) ([]*models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*models.Badge
	for _, b := range s.badges {
		if b.IsDue(now) {
			copy := *b
			due = append(due, &copy)
		}
	}
	return due, nil
}

func (s *fakeStore) Settle(ctx context.Context, badgeID int64, now time.Time) (*repositories.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.badges[badgeID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if !b.IsDue(now) {
		return nil, repositories.ErrStaleState
	}

	outcome := models.OutcomeAbandoned
	if b.QuotaMet() {
		outcome = models.OutcomeCompleted
	}
	b.Status = models.BadgeExpired
	s.history = append(s.history, models.BadgeHistory{
		UserID: b.HolderID, BadgeID: b.ID, Scope: b.Scope,
		Outcome: outcome, CompletedAt: now,
	})

	copy := *b
	return &repositories.SettlementResult{Badge: &copy, Outcome: outcome}, nil
}

func (s *fakeStore) Pass(ctx context.Context, badgeID, holderID int64, reason string, penalty int, now time.Time) (*models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.badges[badgeID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if b.Status != models.BadgeActive || b.HolderID != holderID {
		return nil, repositories.ErrStaleState
	}
	b.Status = models.BadgeAbandoned
	s.history = append(s.history, models.BadgeHistory{
		UserID: b.HolderID, BadgeID: b.ID, Scope: b.Scope,
		Outcome: models.OutcomeAbandoned, Reason: reason, CompletedAt: now,
	})
	if u, ok := s.users[holderID]; ok && penalty > 0 {
		u.Reputation -= penalty
	}
	copy := *b
	return &copy, nil
}

func (s *fakeStore) AttachLedgerRef(ctx context.Context, badgeID int64, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.badges[badgeID]; ok {
		b.LedgerRef = &ref
	}
	return nil
}

// ===============================
// InvitationRepository
// ===============================

type fakeInvitationRepo struct{ *fakeStore }

func (s fakeInvitationRepo) GetByID(ctx context.Context, id int64) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copy := *inv
	return &copy, nil
}

func (s fakeInvitationRepo) GetPendingForUser(ctx context.Context, userID int64, now time.Time) (*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inv := range s.invitations {
		if inv.UserID == userID && inv.IsPending(now) {
			copy := *inv
			return &copy, nil
		}
	}
	return nil, repositories.ErrNotFound
}

func (s fakeInvitationRepo) Accept(ctx context.Context, invitationID, userID int64, now time.Time) (*models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[invitationID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if inv.UserID != userID || !inv.IsPending(now) {
		return nil, repositories.ErrStaleState
	}
	badge := s.badges[inv.BadgeID]
	if badge == nil || badge.Status != models.BadgeOffered {
		return nil, repositories.ErrStaleState
	}

	accepted := models.InvitationAccepted
	inv.Response = &accepted
	end := now.Add(time.Duration(badge.DutyDays) * 24 * time.Hour)
	badge.Status = models.BadgeActive
	badge.StartDate = &now
	badge.EndDate = &end
	copy := *badge
	return &copy, nil
}

func (s fakeInvitationRepo) Decline(ctx context.Context, invitationID, userID int64, response models.InvitationResponse, now time.Time) (*models.Badge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[invitationID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if userID != 0 && inv.UserID != userID {
		return nil, repositories.ErrStaleState
	}
	if inv.Response != nil {
		return nil, repositories.ErrStaleState
	}
	if response == models.InvitationDeclined && !inv.ExpiresAt.After(now) {
		return nil, repositories.ErrStaleState
	}
	badge := s.badges[inv.BadgeID]
	if badge == nil || badge.Status != models.BadgeOffered {
		return nil, repositories.ErrStaleState
	}

	inv.Response = &response
	badge.Status = models.BadgeDeclined
	outcome := models.OutcomeDeclined
	if response == models.InvitationTimeout {
		outcome = models.OutcomeTimeout
	}
	s.history = append(s.history, models.BadgeHistory{
		UserID: inv.UserID, BadgeID: badge.ID, Scope: badge.Scope,
		Outcome: outcome, CompletedAt: now,
	})
	copy := *badge
	return &copy, nil
}

func (s fakeInvitationRepo) ExpiredPending(ctx context.Context, now time.Time) ([]*models.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []*models.Invitation
	for _, inv := range s.invitations {
		badge := s.badges[inv.BadgeID]
		if inv.Response == nil && !inv.ExpiresAt.After(now) &&
			badge != nil && badge.Status == models.BadgeOffered {
			copy := *inv
			expired = append(expired, &copy)
		}
	}
	return expired, nil
}

// ===============================
// ModerationConfigRepository
// ===============================

type fakeConfigRepo struct{ *fakeStore }

func (s fakeConfigRepo) GetOrCreate(ctx context.Context, scope models.Scope) (*models.ModerationConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cfg, ok := s.configs[scope]; ok {
		copy := *cfg
		return &copy, nil
	}
	cfg := models.DefaultModerationConfig(scope)
	cfg.ID = s.id()
	s.configs[scope] = cfg
	copy := *cfg
	return &copy, nil
}

func (s fakeConfigRepo) Update(ctx context.Context, cfg *models.ModerationConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.configs[cfg.Scope]; !ok {
		return repositories.ErrNotFound
	}
	stored := *cfg
	s.configs[cfg.Scope] = &stored
	return nil
}

// ===============================
// ModerationRepository
// ===============================

type fakeModerationRepo struct{ *fakeStore }

func (s fakeModerationRepo) QueueForScope(ctx context.Context, scope models.Scope, limit int) ([]*models.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.queue[scope]
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (s fakeModerationRepo) PriorActions(ctx context.Context, content models.ContentRef, excludeBadgeID int64) ([]models.ModerationAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var prior []models.ModerationAction
	for _, a := range s.actions {
		if a.Content == content && a.BadgeID != excludeBadgeID {
			prior = append(prior, *a)
		}
	}
	return prior, nil
}

func (s fakeModerationRepo) SubmitDecision(ctx context.Context, d *repositories.DecisionInput) (*models.ModerationAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	badge, ok := s.badges[d.BadgeID]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	if badge.Status != models.BadgeActive || badge.HolderID != d.HolderID {
		return nil, repositories.ErrStaleState
	}
	if _, ok := s.contentAuthor[d.Content]; !ok {
		return nil, repositories.ErrNotFound
	}
	flags := s.flagCounts[d.Content]
	if flags == 0 {
		return nil, repositories.ErrAlreadyResolved
	}

	action := &models.ModerationAction{
		ID:        s.id(),
		BadgeID:   d.BadgeID,
		Content:   d.Content,
		Decision:  d.Decision,
		Reason:    d.Reason,
		FlagCount: flags,
		CreatedAt: time.Now(),
	}
	s.actions = append(s.actions, action)
	s.flagCounts[d.Content] = 0

	if d.Decision == models.DecisionRemove {
		s.hidden[d.Content] = true
		if author := s.users[s.contentAuthor[d.Content]]; author != nil {
			author.Reputation -= d.RemovalRepDebit
		}
	}
	badge.ActionsTaken++

	copy := *action
	return &copy, nil
}

func (s fakeModerationRepo) AttachLedgerRef(ctx context.Context, actionID int64, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.actions {
		if a.ID == actionID {
			a.LedgerRef = &ref
		}
	}
	return nil
}

// ===============================
// HistoryRepository
// ===============================

type fakeHistoryRepo struct{ *fakeStore }

func (s fakeHistoryRepo) InCooldown(ctx context.Context, userID int64, scope models.Scope, since time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.history {
		if h.UserID == userID && h.Scope == scope && !h.CompletedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s fakeHistoryRepo) Leaderboard(ctx context.Context, limit int) ([]*models.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[int64]int)
	for _, h := range s.history {
		if h.Outcome == models.OutcomeCompleted {
			counts[h.UserID]++
		}
	}
	var entries []*models.LeaderboardEntry
	for userID, n := range counts {
		entries = append(entries, &models.LeaderboardEntry{UserID: userID, CompletedDuties: n})
	}
	return entries, nil
}

// ===============================
// IdentityRepository
// ===============================

type fakeIdentityRepo struct{ *fakeStore }

func (s fakeIdentityRepo) GetUser(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	copy := *u
	return &copy, nil
}

func (s fakeIdentityRepo) AdjustReputation(ctx context.Context, id int64, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	u.Reputation += delta
	return nil
}

// ===============================
// MembershipRepository
// ===============================

type fakeMembershipRepo struct{ *fakeStore }

func (s fakeMembershipRepo) ActiveMemberIDs(ctx context.Context, scope models.Scope, sinceDays int) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.members[scope]...), nil
}

func (s fakeMembershipRepo) IsActiveMember(ctx context.Context, userID int64, scope models.Scope, sinceDays int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.members[scope] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (s fakeMembershipRepo) ScopesWithActiveMembers(ctx context.Context, sinceDays int) ([]models.Scope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var scopes []models.Scope
	for scope := range s.members {
		scopes = append(scopes, scope)
	}
	return scopes, nil
}

// ===============================
// StatsRepository
// ===============================

type fakeStatsRepo struct{ *fakeStore }

func (s fakeStatsRepo) AggregateDay(ctx context.Context, day time.Time) (int, error) {
	return 0, nil
}

func (s fakeStatsRepo) GetScopeStats(ctx context.Context, scope models.Scope, days int) ([]*models.ScopeStats, error) {
	return nil, nil
}

// ===============================
// COLLABORATOR FAKES
// ===============================

type fakeLedger struct {
	mu      sync.Mutex
	records []*models.ModerationAction
}

func (f *fakeLedger) RecordAction(ctx context.Context, action *models.ModerationAction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, action)
	return "ledger-ref", nil
}

type fakeTransfer struct {
	mu      sync.Mutex
	credits map[int64]int
}

func (f *fakeTransfer) CreditReward(ctx context.Context, userID int64, tokens int, badgeID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.credits == nil {
		f.credits = make(map[int64]int)
	}
	f.credits[userID] += tokens
	return "transfer-ref", nil
}

// ===============================
// TEST ENVIRONMENT
// ===============================

type testEnv struct {
	store    *fakeStore
	repos    *repositories.Collection
	bus      events.EventBus
	config   ConfigService
	ledger   *fakeLedger
	transfer *fakeTransfer
	logger   *zap.Logger
}

func newTestEnv() *testEnv {
	store := newFakeStore()
	logger := zap.NewNop()

	repos := &repositories.Collection{
		Badge:      store,
		Invitation: fakeInvitationRepo{store},
		Config:     fakeConfigRepo{store},
		Moderation: fakeModerationRepo{store},
		History:    fakeHistoryRepo{store},
		Identity:   fakeIdentityRepo{store},
		Membership: fakeMembershipRepo{store},
		Stats:      fakeStatsRepo{store},
	}

	cacheLayer, _ := cache.New(&config.CacheConfig{Provider: "memory"}, logger)
	bus := events.NewInMemoryEventBus(events.DefaultEventBusConfig(), logger)

	return &testEnv{
		store:    store,
		repos:    repos,
		bus:      bus,
		config:   NewConfigService(repos.Config, cacheLayer, logger),
		ledger:   &fakeLedger{},
		transfer: &fakeTransfer{},
		logger:   logger,
	}
}

func (e *testEnv) assignment(rand RandSource) AssignmentService {
	return NewAssignmentService(e.repos, e.config, e.bus, rand, e.logger)
}

func (e *testEnv) invitation(assignment AssignmentService) InvitationService {
	return NewInvitationService(e.repos, e.config, assignment, e.bus, e.logger)
}

func (e *testEnv) queueService() QueueService {
	return NewQueueService(e.repos, e.config, e.ledger, e.bus, e.logger)
}

func (e *testEnv) settlement(assignment AssignmentService) SettlementService {
	return NewSettlementService(e.repos, e.config, assignment, e.transfer, e.bus, e.logger)
}
