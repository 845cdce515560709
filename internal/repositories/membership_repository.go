package repositories

import (
	"context"
	"fmt"

	"modrota/internal/database"
	"modrota/internal/models"

	"go.uber.org/zap"
)

// membershipRepository resolves which accounts belong to a scope and are
// recently active. Group scopes read group_members directly; topic scopes
// union the members of every group under the topic.
type membershipRepository struct {
	*BaseRepository
}

// NewMembershipRepository creates a new membership repository.
func NewMembershipRepository(db *database.Manager, logger *zap.Logger) MembershipRepository {
	return &membershipRepository{BaseRepository: NewBaseRepository(db, logger)}
}

// ActiveMemberIDs returns the scope's members active within the trailing
// window, in a stable order so random selection over the slice is the only
// source of nondeterminism.
func (r *membershipRepository) ActiveMemberIDs(ctx context.Context, scope models.Scope, sinceDays int) ([]int64, error) {
	query := `
		SELECT DISTINCT u.id
		FROM group_members gm
		INNER JOIN groups g ON g.id = gm.group_id
		INNER JOIN users u ON u.id = gm.user_id
		WHERE u.last_active_at >= NOW() - ($3 || ' days')::interval
			AND (
				($1 = 'group' AND gm.group_id = $2) OR
				($1 = 'topic' AND g.topic_id = $2)
			)
		ORDER BY u.id ASC`

	rows, err := r.GetDB().QueryContext(ctx, query, scope.Kind, scope.ID, sinceDays)
	if err != nil {
		return nil, fmt.Errorf("failed to list active members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsActiveMember reports whether the user belongs to the scope and was active
// within the trailing window.
func (r *membershipRepository) IsActiveMember(ctx context.Context, userID int64, scope models.Scope, sinceDays int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1
			FROM group_members gm
			INNER JOIN groups g ON g.id = gm.group_id
			INNER JOIN users u ON u.id = gm.user_id
			WHERE gm.user_id = $1
				AND u.last_active_at >= NOW() - ($4 || ' days')::interval
				AND (
					($2 = 'group' AND gm.group_id = $3) OR
					($2 = 'topic' AND g.topic_id = $3)
				)
		)`

	var member bool
	err := r.GetDB().QueryRowContext(ctx, query, userID, scope.Kind, scope.ID, sinceDays).Scan(&member)
	if err != nil {
		return false, fmt.Errorf("failed to check scope membership: %w", err)
	}
	return member, nil
}

// ScopesWithActiveMembers lists every group and topic scope the balance sweep
// must visit. A topic appears once no matter how many of its groups have
// active members.
func (r *membershipRepository) ScopesWithActiveMembers(ctx context.Context, sinceDays int) ([]models.Scope, error) {
	query := `
		SELECT 'group' AS kind, gm.group_id AS id
		FROM group_members gm
		INNER JOIN users u ON u.id = gm.user_id
		WHERE u.last_active_at >= NOW() - ($1 || ' days')::interval
		GROUP BY gm.group_id
		UNION
		SELECT 'topic' AS kind, g.topic_id AS id
		FROM group_members gm
		INNER JOIN groups g ON g.id = gm.group_id
		INNER JOIN users u ON u.id = gm.user_id
		WHERE u.last_active_at >= NOW() - ($1 || ' days')::interval
			AND g.topic_id IS NOT NULL
		GROUP BY g.topic_id
		ORDER BY kind, id`

	rows, err := r.GetDB().QueryContext(ctx, query, sinceDays)
	if err != nil {
		return nil, fmt.Errorf("failed to list scopes: %w", err)
	}
	defer rows.Close()

	var scopes []models.Scope
	for rows.Next() {
		var s models.Scope
		var kind string
		if err := rows.Scan(&kind, &s.ID); err != nil {
			return nil, fmt.Errorf("failed to scan scope: %w", err)
		}
		s.Kind = models.ScopeKind(kind)
		scopes = append(scopes, s)
	}
	return scopes, rows.Err()
}
