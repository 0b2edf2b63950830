package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"threadcast-backend/internal/domain"
)

// CallRepository is the in-memory call store
type CallRepository struct {
	s *Store
}

// Create stores a call together with its initiator
func (r *CallRepository) Create(ctx context.Context, call *domain.Call, initiator *domain.CallParticipant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.calls[call.CallID]; exists {
		return domain.ErrDuplicate
	}
	c := *call
	p := *initiator
	r.s.calls[call.CallID] = &c
	r.s.callMembers[call.CallID] = []*domain.CallParticipant{&p}
	return nil
}

// GetByID retrieves a call
func (r *CallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	c, ok := r.s.calls[callID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

// ListByConversation returns the most recent calls of a conversation
func (r *CallRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*domain.Call, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.Call
	for _, c := range r.s.calls {
		if c.ConversationID == conversationID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkOngoing moves a RINGING call to ONGOING. Reports whether it changed.
func (r *CallRepository) MarkOngoing(ctx context.Context, callID uuid.UUID) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.calls[callID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if c.Status != domain.CallStatusRinging {
		return false, nil
	}
	c.Status = domain.CallStatusOngoing
	return true, nil
}

// Finish moves a non-terminal call to a terminal status. Reports whether this
// caller performed the transition.
func (r *CallRepository) Finish(ctx context.Context, callID uuid.UUID, status domain.CallStatus, endedAt time.Time, duration int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.calls[callID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if c.Status.IsTerminal() {
		return false, nil
	}
	at := endedAt
	d := duration
	c.Status = status
	c.EndedAt = &at
	c.Duration = &d
	return true, nil
}

// UpsertParticipant joins or rejoins a participant, clearing left_at
func (r *CallRepository) UpsertParticipant(ctx context.Context, p *domain.CallParticipant) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.calls[p.CallID]; !ok {
		return domain.ErrNotFound
	}
	for _, existing := range r.s.callMembers[p.CallID] {
		if existing.ParticipantID == p.ParticipantID {
			existing.HasVideo = p.HasVideo
			existing.HasAudio = p.HasAudio
			existing.IsScreenSharing = p.IsScreenSharing
			existing.LeftAt = nil
			return nil
		}
	}
	cp := *p
	cp.LeftAt = nil
	r.s.callMembers[p.CallID] = append(r.s.callMembers[p.CallID], &cp)
	return nil
}

// GetParticipant returns a user's participant row in a call
func (r *CallRepository) GetParticipant(ctx context.Context, callID, userID uuid.UUID) (*domain.CallParticipant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	for _, p := range r.s.callMembers[callID] {
		if p.UserID == userID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

// MarkParticipantLeft stamps left_at on an active row. Reports whether a row changed.
func (r *CallRepository) MarkParticipantLeft(ctx context.Context, callID, userID uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, p := range r.s.callMembers[callID] {
		if p.UserID == userID && p.LeftAt == nil {
			left := at
			p.LeftAt = &left
			return true, nil
		}
	}
	return false, nil
}

// CountActiveParticipants counts rows with no left_at
func (r *CallRepository) CountActiveParticipants(ctx context.Context, callID uuid.UUID) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	n := 0
	for _, p := range r.s.callMembers[callID] {
		if p.LeftAt == nil {
			n++
		}
	}
	return n, nil
}

// ListParticipants returns every participant row of a call
func (r *CallRepository) ListParticipants(ctx context.Context, callID uuid.UUID) ([]*domain.CallParticipant, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rows := r.s.callMembers[callID]
	out := make([]*domain.CallParticipant, 0, len(rows))
	for _, p := range rows {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

// SetStartedAt rewinds a call's start time. Used by tests to get a non-zero duration.
func (r *CallRepository) SetStartedAt(callID uuid.UUID, at time.Time) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if c, ok := r.s.calls[callID]; ok {
		c.StartedAt = at
	}
}
