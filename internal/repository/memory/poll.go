package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"threadcast-backend/internal/domain"
)

// PollRepository is the in-memory poll store
type PollRepository struct {
	s *Store
}

// Create stores a poll with its options
func (r *PollRepository) Create(ctx context.Context, poll *domain.Poll, options []*domain.PollOption) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, exists := r.s.polls[poll.PollID]; exists {
		return domain.ErrDuplicate
	}
	p := *poll
	r.s.polls[poll.PollID] = &p

	rows := make([]*domain.PollOption, 0, len(options))
	for _, o := range options {
		cp := *o
		rows = append(rows, &cp)
	}
	r.s.pollOptions[poll.PollID] = rows
	return nil
}

// GetByID retrieves a poll
func (r *PollRepository) GetByID(ctx context.Context, pollID uuid.UUID) (*domain.Poll, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	p, ok := r.s.polls[pollID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ListByConversation returns the newest polls of a conversation
func (r *PollRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*domain.Poll, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []*domain.Poll
	for _, p := range r.s.polls {
		if p.ConversationID == conversationID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// GetOptions returns a poll's options in display order
func (r *PollRepository) GetOptions(ctx context.Context, pollID uuid.UUID) ([]*domain.PollOption, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	rows := r.s.pollOptions[pollID]
	out := make([]*domain.PollOption, 0, len(rows))
	for _, o := range rows {
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

// GetVotes returns every vote of a poll
func (r *PollRepository) GetVotes(ctx context.Context, pollID uuid.UUID) ([]*domain.PollVote, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return copyVotes(r.s.pollVotes[pollID], func(*domain.PollVote) bool { return true }), nil
}

// GetUserVotes returns one user's votes on a poll
func (r *PollRepository) GetUserVotes(ctx context.Context, pollID, userID uuid.UUID) ([]*domain.PollVote, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return copyVotes(r.s.pollVotes[pollID], func(v *domain.PollVote) bool { return v.UserID == userID }), nil
}

// AddVote inserts a vote. (poll, option, user) is always unique; (poll, user)
// is unique when singleChoice is set.
func (r *PollRepository) AddVote(ctx context.Context, vote *domain.PollVote, singleChoice bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, v := range r.s.pollVotes[vote.PollID] {
		if v.UserID != vote.UserID {
			continue
		}
		if singleChoice || v.OptionID == vote.OptionID {
			return domain.ErrDuplicate
		}
	}
	cp := *vote
	r.s.pollVotes[vote.PollID] = append(r.s.pollVotes[vote.PollID], &cp)
	return nil
}

// RemoveVote deletes a vote by id
func (r *PollRepository) RemoveVote(ctx context.Context, pollID, voteID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	votes := r.s.pollVotes[pollID]
	for i, v := range votes {
		if v.VoteID == voteID {
			r.s.pollVotes[pollID] = append(votes[:i:i], votes[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// ChangeVote moves an existing vote to another option in place
func (r *PollRepository) ChangeVote(ctx context.Context, pollID, voteID, optionID uuid.UUID, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, v := range r.s.pollVotes[pollID] {
		if v.VoteID == voteID {
			v.OptionID = optionID
			v.CreatedAt = at
			return nil
		}
	}
	return domain.ErrNotFound
}

// Close ends a poll. Reports whether this caller closed it.
func (r *PollRepository) Close(ctx context.Context, pollID uuid.UUID, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	p, ok := r.s.polls[pollID]
	if !ok {
		return false, domain.ErrNotFound
	}
	if p.Status == domain.PollStatusEnded {
		return false, nil
	}
	closed := at
	p.Status = domain.PollStatusEnded
	p.ClosedAt = &closed
	return true, nil
}

func copyVotes(votes []*domain.PollVote, keep func(*domain.PollVote) bool) []*domain.PollVote {
	out := make([]*domain.PollVote, 0, len(votes))
	for _, v := range votes {
		if keep(v) {
			cp := *v
			out = append(out, &cp)
		}
	}
	return out
}
