package services

import (
	"time"

	"modrota/internal/cache"
	"modrota/internal/config"
	"modrota/internal/events"
	"modrota/internal/repositories"

	"go.uber.org/zap"
)

// Collection bundles every service for injection into handlers and the
// scheduler.
type Collection struct {
	Config     ConfigService
	Assignment AssignmentService
	Invitation InvitationService
	Queue      QueueService
	Settlement SettlementService
	Stats      StatsService

	Ledger   LedgerService
	Transfer TransferService
}

// NewCollection wires the full service graph.
func NewCollection(
	repos *repositories.Collection,
	c cache.Cache,
	bus events.EventBus,
	cfg *config.Config,
	logger *zap.Logger,
) *Collection {
	ledger := NewLedgerService(cfg.Collaborators, logger)
	transfer := NewTransferService(cfg.Collaborators, logger)
	rand := NewRandSource(time.Now().UnixNano())

	configSvc := NewConfigService(repos.Config, c, logger)
	assignment := NewAssignmentService(repos, configSvc, bus, rand, logger)

	return &Collection{
		Config:     configSvc,
		Assignment: assignment,
		Invitation: NewInvitationService(repos, configSvc, assignment, bus, logger),
		Queue:      NewQueueService(repos, configSvc, ledger, bus, logger),
		Settlement: NewSettlementService(repos, configSvc, assignment, transfer, bus, logger),
		Stats:      NewStatsService(repos, c, logger),
		Ledger:     ledger,
		Transfer:   transfer,
	}
}
