package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"threadcast-backend/internal/domain"
)

// ReactionRepository is the in-memory reaction ledger
type ReactionRepository struct {
	s *Store
}

// Find returns the reaction a user left with emoji on a target
func (r *ReactionRepository) Find(ctx context.Context, target domain.ReactionTarget, userID uuid.UUID, emoji string) (*domain.Reaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, re := range r.s.reactions {
		if re.TargetType == target.Type && re.TargetID == target.ID && re.UserID == userID && re.Emoji == emoji {
			cp := *re
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// Add inserts a reaction, rejecting duplicates of (target, user, emoji)
func (r *ReactionRepository) Add(ctx context.Context, reaction *domain.Reaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, re := range r.s.reactions {
		if re.TargetType == reaction.TargetType && re.TargetID == reaction.TargetID &&
			re.UserID == reaction.UserID && re.Emoji == reaction.Emoji {
			return domain.ErrDuplicate
		}
	}
	cp := *reaction
	r.s.reactions[reaction.ReactionID] = &cp
	return nil
}

// Remove deletes a reaction by id
func (r *ReactionRepository) Remove(ctx context.Context, reactionID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.reactions[reactionID]; !ok {
		return domain.ErrNotFound
	}
	delete(r.s.reactions, reactionID)
	return nil
}

// ListByTarget returns the reactions on a target, oldest first
func (r *ReactionRepository) ListByTarget(ctx context.Context, target domain.ReactionTarget) ([]*domain.Reaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.Reaction
	for _, re := range r.s.reactions {
		if re.TargetType == target.Type && re.TargetID == target.ID {
			cp := *re
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
