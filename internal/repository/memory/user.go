package memory

import (
	"context"

	"github.com/google/uuid"

	"threadcast-backend/internal/domain"
)

// UserRepository reads user profiles
type UserRepository struct {
	s *Store
}

// GetSummaries returns the profiles found for ids; unknown ids are skipped
func (r *UserRepository) GetSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.UserSummary, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[uuid.UUID]*domain.UserSummary, len(ids))
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}
