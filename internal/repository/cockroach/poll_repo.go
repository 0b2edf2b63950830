package cockroach

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"threadcast-backend/internal/domain"
)

// PollRepository handles poll data operations in CockroachDB
type PollRepository struct {
	pool *pgxpool.Pool
}

// NewPollRepository creates a new PollRepository
func NewPollRepository(pool *pgxpool.Pool) *PollRepository {
	return &PollRepository{pool: pool}
}

// Create creates a new poll with its options in a transaction
func (r *PollRepository) Create(ctx context.Context, poll *domain.Poll, options []*domain.PollOption) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO polls (
			poll_id, conversation_id, creator_id, message_id, question, allow_multiple,
			is_anonymous, status, starts_at, expires_at, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		poll.PollID,
		poll.ConversationID,
		poll.CreatorID,
		poll.MessageID,
		poll.Question,
		poll.AllowMultiple,
		poll.IsAnonymous,
		poll.Status,
		poll.StartsAt,
		poll.ExpiresAt,
		poll.CreatedAt,
	)
	if err != nil {
		return wrapErr("create poll", err)
	}

	for _, o := range options {
		_, err = tx.Exec(ctx, `
			INSERT INTO poll_options (option_id, poll_id, text, position)
			VALUES ($1, $2, $3, $4)
		`, o.OptionID, o.PollID, o.Text, o.Position)
		if err != nil {
			return wrapErr("create poll option", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const pollColumns = `poll_id, conversation_id, creator_id, message_id, question, allow_multiple,
	is_anonymous, status, starts_at, expires_at, closed_at, created_at`

func scanPoll(row pgx.Row) (*domain.Poll, error) {
	p := &domain.Poll{}
	err := row.Scan(
		&p.PollID,
		&p.ConversationID,
		&p.CreatorID,
		&p.MessageID,
		&p.Question,
		&p.AllowMultiple,
		&p.IsAnonymous,
		&p.Status,
		&p.StartsAt,
		&p.ExpiresAt,
		&p.ClosedAt,
		&p.CreatedAt,
	)
	return p, err
}

// GetByID retrieves a poll by ID
func (r *PollRepository) GetByID(ctx context.Context, pollID uuid.UUID) (*domain.Poll, error) {
	p, err := scanPoll(r.pool.QueryRow(ctx, `SELECT `+pollColumns+` FROM polls WHERE poll_id = $1`, pollID))
	if err != nil {
		return nil, wrapErr("get poll", err)
	}
	return p, nil
}

// ListByConversation returns the newest polls of a conversation
func (r *PollRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*domain.Poll, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+pollColumns+` FROM polls
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, conversationID, limit)
	if err != nil {
		return nil, wrapErr("list polls", err)
	}
	defer rows.Close()

	var out []*domain.Poll
	for rows.Next() {
		p, err := scanPoll(rows)
		if err != nil {
			return nil, wrapErr("scan poll", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetOptions returns a poll's options in display order
func (r *PollRepository) GetOptions(ctx context.Context, pollID uuid.UUID) ([]*domain.PollOption, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT option_id, poll_id, text, position FROM poll_options
		WHERE poll_id = $1
		ORDER BY position
	`, pollID)
	if err != nil {
		return nil, wrapErr("get poll options", err)
	}
	defer rows.Close()

	var out []*domain.PollOption
	for rows.Next() {
		o := &domain.PollOption{}
		if err := rows.Scan(&o.OptionID, &o.PollID, &o.Text, &o.Position); err != nil {
			return nil, wrapErr("scan poll option", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *PollRepository) queryVotes(ctx context.Context, query string, args ...any) ([]*domain.PollVote, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("get poll votes", err)
	}
	defer rows.Close()

	var out []*domain.PollVote
	for rows.Next() {
		v := &domain.PollVote{}
		if err := rows.Scan(&v.VoteID, &v.PollID, &v.OptionID, &v.UserID, &v.CreatedAt); err != nil {
			return nil, wrapErr("scan poll vote", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// GetVotes returns every vote on a poll
func (r *PollRepository) GetVotes(ctx context.Context, pollID uuid.UUID) ([]*domain.PollVote, error) {
	return r.queryVotes(ctx, `
		SELECT vote_id, poll_id, option_id, user_id, created_at FROM poll_votes
		WHERE poll_id = $1
		ORDER BY created_at
	`, pollID)
}

// GetUserVotes returns one user's votes on a poll
func (r *PollRepository) GetUserVotes(ctx context.Context, pollID, userID uuid.UUID) ([]*domain.PollVote, error) {
	return r.queryVotes(ctx, `
		SELECT vote_id, poll_id, option_id, user_id, created_at FROM poll_votes
		WHERE poll_id = $1 AND user_id = $2
	`, pollID, userID)
}

// AddVote inserts a vote. The partial unique index on (poll_id, user_id)
// rejects a second vote on single-choice polls with ErrDuplicate.
func (r *PollRepository) AddVote(ctx context.Context, vote *domain.PollVote, singleChoice bool) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO poll_votes (vote_id, poll_id, option_id, user_id, single_choice, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, vote.VoteID, vote.PollID, vote.OptionID, vote.UserID, singleChoice, vote.CreatedAt)
	if err != nil {
		return wrapErr("cast vote", err)
	}
	return nil
}

// RemoveVote deletes a vote
func (r *PollRepository) RemoveVote(ctx context.Context, pollID, voteID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM poll_votes WHERE poll_id = $1 AND vote_id = $2`, pollID, voteID)
	if err != nil {
		return wrapErr("remove vote", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("remove vote: %w", domain.ErrNotFound)
	}
	return nil
}

// ChangeVote moves an existing vote to another option
func (r *PollRepository) ChangeVote(ctx context.Context, pollID, voteID, optionID uuid.UUID, at time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE poll_votes SET option_id = $3, created_at = $4
		WHERE poll_id = $1 AND vote_id = $2
	`, pollID, voteID, optionID, at)
	if err != nil {
		return wrapErr("change vote", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("change vote: %w", domain.ErrNotFound)
	}
	return nil
}

// Close ends a poll. Reports whether this caller closed it.
func (r *PollRepository) Close(ctx context.Context, pollID uuid.UUID, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE polls SET status = $2, closed_at = $3
		WHERE poll_id = $1 AND status <> $2
	`, pollID, domain.PollStatusEnded, at)
	if err != nil {
		return false, wrapErr("close poll", err)
	}
	return tag.RowsAffected() == 1, nil
}
