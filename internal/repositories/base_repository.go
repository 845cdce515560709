package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"modrota/internal/database"

	"go.uber.org/zap"
)

// BaseRepository provides shared database plumbing for the concrete
// repositories.
type BaseRepository struct {
	db     *database.Manager
	logger *zap.Logger
}

// NewBaseRepository creates a new base repository.
func NewBaseRepository(db *database.Manager, logger *zap.Logger) *BaseRepository {
	return &BaseRepository{db: db, logger: logger}
}

// WithTransaction executes fn inside a transaction, rolling back on error or
// panic.
func (r *BaseRepository) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("Failed to rollback transaction",
				zap.Error(rbErr),
				zap.NamedError("cause", err),
			)
		}
		return err
	}

	return tx.Commit()
}

// IsNotFound checks for the driver's no-rows error.
func (r *BaseRepository) IsNotFound(err error) bool {
	return err == sql.ErrNoRows
}

// GetDB returns the underlying database manager.
func (r *BaseRepository) GetDB() *database.Manager { return r.db }

// GetLogger returns the logger instance.
func (r *BaseRepository) GetLogger() *zap.Logger { return r.logger }

// scopeLockKey derives the advisory-lock key serializing one scope's deficit
// computation. Kind and id are folded into a single int64 keyspace; group and
// topic scopes use disjoint halves.
func scopeLockKey(kind string, id int64) int64 {
	base := int64(1) << 40
	if kind == "topic" {
		base = int64(2) << 40
	}
	return base + id
}
