package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"threadcast-backend/internal/domain"
)

// ConversationRepository is the in-memory membership ledger
type ConversationRepository struct {
	s *Store
}

// Create stores a conversation and its participants
func (r *ConversationRepository) Create(ctx context.Context, conv *domain.Conversation, participants []*domain.ConversationParticipant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.conversations[conv.ConversationID]; exists {
		return domain.ErrDuplicate
	}

	seen := make(map[uuid.UUID]bool, len(participants))
	rows := make([]*domain.ConversationParticipant, 0, len(participants))
	for _, p := range participants {
		if seen[p.UserID] {
			return domain.ErrDuplicate
		}
		seen[p.UserID] = true
		cp := *p
		rows = append(rows, &cp)
	}

	c := *conv
	r.s.conversations[conv.ConversationID] = &c
	r.s.participants[conv.ConversationID] = rows
	return nil
}

// GetByID retrieves a conversation
func (r *ConversationRepository) GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.conversations[conversationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// FindDirect returns the direct conversation between two users
func (r *ConversationRepository) FindDirect(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for id, c := range r.s.conversations {
		if c.Type != domain.ConversationTypeDirect {
			continue
		}
		if r.s.participant(id, userA) != nil && r.s.participant(id, userB) != nil {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// ListByUser returns the user's conversations, most recently active first
func (r *ConversationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.Conversation
	for id, c := range r.s.conversations {
		if r.s.participant(id, userID) != nil {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// IsParticipant checks ledger membership
func (r *ConversationRepository) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return r.s.participant(conversationID, userID) != nil, nil
}

// GetParticipant returns the ledger entry for a user
func (r *ConversationRepository) GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationParticipant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p := r.s.participant(conversationID, userID)
	if p == nil {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ListParticipants returns every ledger entry of a conversation
func (r *ConversationRepository) ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]*domain.ConversationParticipant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rows := r.s.participants[conversationID]
	out := make([]*domain.ConversationParticipant, 0, len(rows))
	for _, p := range rows {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// UpdateLastRead moves a participant's read cursor
func (r *ConversationRepository) UpdateLastRead(ctx context.Context, conversationID, userID, messageID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p := r.s.participant(conversationID, userID)
	if p == nil {
		return domain.ErrNotFound
	}
	id := messageID
	p.LastReadMessageID = &id
	return nil
}

// SetUpdatedAt overrides a conversation timestamp. Used by tests to order threads.
func (r *ConversationRepository) SetUpdatedAt(conversationID uuid.UUID, at time.Time) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if c, ok := r.s.conversations[conversationID]; ok {
		c.UpdatedAt = at
	}
}
