package cockroach

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"threadcast-backend/internal/domain"
)

// UserRepository reads user profiles owned by the identity service
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

// GetSummaries loads the public profile of each id. Unknown ids are skipped.
func (r *UserRepository) GetSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.UserSummary, error) {
	out := make(map[uuid.UUID]*domain.UserSummary, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT user_id, username, display_name, avatar_url
		FROM users
		WHERE user_id = ANY($1::UUID[])
	`, uuidStrings(ids))
	if err != nil {
		return nil, wrapErr("load users", err)
	}
	defer rows.Close()

	for rows.Next() {
		u := &domain.UserSummary{}
		if err := rows.Scan(&u.UserID, &u.Username, &u.DisplayName, &u.AvatarURL); err != nil {
			return nil, wrapErr("scan user", err)
		}
		out[u.UserID] = u
	}
	return out, rows.Err()
}
