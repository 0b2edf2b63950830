package memory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"threadcast-backend/internal/domain"
)

// MessageRepository is the in-memory message store
type MessageRepository struct {
	s *Store
}

// Create stores a message and bumps the conversation's updated_at
func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	conv, ok := r.s.conversations[msg.ConversationID]
	if !ok {
		return domain.ErrNotFound
	}
	if _, exists := r.s.messages[msg.MessageID]; exists {
		return domain.ErrDuplicate
	}

	r.s.messages[msg.MessageID] = cloneMessage(msg)
	r.s.messageOrder[msg.ConversationID] = append(r.s.messageOrder[msg.ConversationID], msg.MessageID)
	if msg.CreatedAt.After(conv.UpdatedAt) {
		conv.UpdatedAt = msg.CreatedAt
	}
	return nil
}

// GetByID retrieves a message
func (r *MessageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	m, ok := r.s.messages[messageID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneMessage(m), nil
}

// ListByConversation returns up to limit messages older than before, newest first
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	order := r.s.messageOrder[conversationID]
	out := make([]*domain.Message, 0, limit)
	for i := len(order) - 1; i >= 0 && len(out) < limit; i-- {
		id := order[i]
		if before != nil && !idBefore(id, *before) {
			continue
		}
		out = append(out, cloneMessage(r.s.messages[id]))
	}
	return out, nil
}

// Latest returns the newest message of a conversation
func (r *MessageRepository) Latest(ctx context.Context, conversationID uuid.UUID) (*domain.Message, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	order := r.s.messageOrder[conversationID]
	if len(order) == 0 {
		return nil, domain.ErrNotFound
	}
	return cloneMessage(r.s.messages[order[len(order)-1]]), nil
}

// CountUnread counts messages from others created after the user's read cursor
func (r *MessageRepository) CountUnread(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p := r.s.participant(conversationID, userID)
	if p == nil {
		return 0, domain.ErrNotFound
	}

	var cursor time.Time
	if p.LastReadMessageID != nil {
		if last, ok := r.s.messages[*p.LastReadMessageID]; ok {
			cursor = last.CreatedAt
		}
	}

	count := 0
	for _, id := range r.s.messageOrder[conversationID] {
		m := r.s.messages[id]
		if m.SenderID != userID && m.CreatedAt.After(cursor) {
			count++
		}
	}
	return count, nil
}

// idBefore compares UUIDv7 ids byte-wise, which orders them by creation
func idBefore(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
