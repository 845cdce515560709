package repositories

import (
	"context"
	"fmt"
	"time"

	"modrota/internal/database"
	"modrota/internal/models"

	"go.uber.org/zap"
)

// identityRepository reads the shared users table the identity platform owns.
// The rotation engine only consumes the narrow projection it needs and writes
// nothing but reputation deltas.
type identityRepository struct {
	*BaseRepository
}

// NewIdentityRepository creates a new identity repository.
func NewIdentityRepository(db *database.Manager, logger *zap.Logger) IdentityRepository {
	return &identityRepository{BaseRepository: NewBaseRepository(db, logger)}
}

// GetUser returns the eligibility projection of an account.
func (r *identityRepository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	query := `
		SELECT id, mode, reputation, created_at, last_active_at
		FROM users
		WHERE id = $1`

	var u models.User
	err := r.GetDB().QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Mode, &u.Reputation, &u.CreatedAt, &u.LastActiveAt,
	)
	if err != nil {
		if r.IsNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.AccountAgeDays = int(time.Since(u.CreatedAt).Hours() / 24)
	return &u, nil
}

// AdjustReputation applies a signed reputation delta.
func (r *identityRepository) AdjustReputation(ctx context.Context, id int64, delta int) error {
	result, err := r.GetDB().ExecContext(ctx,
		`UPDATE users SET reputation = reputation + $2 WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("failed to adjust reputation: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}

	r.GetLogger().Debug("Reputation adjusted",
		zap.Int64("user_id", id),
		zap.Int("delta", delta),
	)
	return nil
}
