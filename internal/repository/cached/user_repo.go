// Package cached decorates slow repositories with in-process caches
package cached

import (
	"context"
	"time"

	"github.com/google/uuid"

	"threadcast-backend/internal/domain"
	"threadcast-backend/pkg/cache"
)

// UserSource loads user profiles
type UserSource interface {
	GetSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.UserSummary, error)
}

// UserRepository serves sender profiles from memory and only asks the
// source for ids it has not seen within the TTL. Unknown ids are not cached.
type UserRepository struct {
	source UserSource
	cache  *cache.MemoryCache[uuid.UUID, domain.UserSummary]
}

// NewUserRepository wraps source
func NewUserRepository(source UserSource, ttl time.Duration, maxSize int) *UserRepository {
	return &UserRepository{
		source: source,
		cache:  cache.NewMemoryCache[uuid.UUID, domain.UserSummary]("user_summaries", ttl, maxSize),
	}
}

// GetSummaries returns the profiles found for ids
func (r *UserRepository) GetSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.UserSummary, error) {
	out := make(map[uuid.UUID]*domain.UserSummary, len(ids))
	var missing []uuid.UUID
	for _, id := range ids {
		if _, done := out[id]; done {
			continue
		}
		if u, ok := r.cache.Get(id); ok {
			out[id] = &u
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	loaded, err := r.source.GetSummaries(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, u := range loaded {
		r.cache.Set(id, *u)
		cp := *u
		out[id] = &cp
	}
	return out, nil
}
