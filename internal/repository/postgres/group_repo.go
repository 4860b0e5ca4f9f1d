package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// GroupRepository answers group membership questions for the relay layer.
// Group management itself (join requests, approval) lives in the social service.
type GroupRepository struct {
	pool *pgxpool.Pool
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(pool *pgxpool.Pool) *GroupRepository {
	return &GroupRepository{pool: pool}
}

// IsApprovedMember reports whether the user has approved membership in the group
func (r *GroupRepository) IsApprovedMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM group_members
			WHERE user_id = $1 AND group_id = $2 AND status = 'approved'
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, userID, groupID).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check group membership: %w", err)
	}

	return exists, nil
}
