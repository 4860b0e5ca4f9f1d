package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FollowerRepository resolves a user's followers for status fan-out
type FollowerRepository struct {
	pool *pgxpool.Pool
}

// NewFollowerRepository creates a new follower repository
func NewFollowerRepository(pool *pgxpool.Pool) *FollowerRepository {
	return &FollowerRepository{pool: pool}
}

// GetFollowerIDs returns the ids of users following the given user
func (r *FollowerRepository) GetFollowerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	query := `SELECT follower_id FROM followers WHERE followed_id = $1`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get followers: %w", err)
	}
	defer rows.Close()

	var followerIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan follower: %w", err)
		}
		followerIDs = append(followerIDs, id)
	}

	return followerIDs, nil
}
