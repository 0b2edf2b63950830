package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"threadcast-backend/internal/domain"
)

// ReactionRepository handles emoji reactions on messages and comments
type ReactionRepository struct {
	pool *pgxpool.Pool
}

// NewReactionRepository creates a new ReactionRepository
func NewReactionRepository(pool *pgxpool.Pool) *ReactionRepository {
	return &ReactionRepository{pool: pool}
}

// Find returns the reaction a user left with emoji on a target
func (r *ReactionRepository) Find(ctx context.Context, target domain.ReactionTarget, userID uuid.UUID, emoji string) (*domain.Reaction, error) {
	re := &domain.Reaction{}
	err := r.pool.QueryRow(ctx, `
		SELECT reaction_id, target_type, target_id, user_id, emoji, created_at
		FROM reactions
		WHERE target_type = $1 AND target_id = $2 AND user_id = $3 AND emoji = $4
	`, target.Type, target.ID, userID, emoji).Scan(
		&re.ReactionID, &re.TargetType, &re.TargetID, &re.UserID, &re.Emoji, &re.CreatedAt,
	)
	if err != nil {
		return nil, wrapErr("find reaction", err)
	}
	return re, nil
}

// Add inserts a reaction
func (r *ReactionRepository) Add(ctx context.Context, re *domain.Reaction) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reactions (reaction_id, target_type, target_id, user_id, emoji, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, re.ReactionID, re.TargetType, re.TargetID, re.UserID, re.Emoji, re.CreatedAt)
	if err != nil {
		return wrapErr("add reaction", err)
	}
	return nil
}

// Remove deletes a reaction
func (r *ReactionRepository) Remove(ctx context.Context, reactionID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM reactions WHERE reaction_id = $1`, reactionID)
	if err != nil {
		return wrapErr("remove reaction", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("remove reaction: %w", domain.ErrNotFound)
	}
	return nil
}

// ListByTarget returns all reactions on a target, oldest first
func (r *ReactionRepository) ListByTarget(ctx context.Context, target domain.ReactionTarget) ([]*domain.Reaction, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT reaction_id, target_type, target_id, user_id, emoji, created_at
		FROM reactions
		WHERE target_type = $1 AND target_id = $2
		ORDER BY created_at
	`, target.Type, target.ID)
	if err != nil {
		return nil, wrapErr("list reactions", err)
	}
	defer rows.Close()

	var out []*domain.Reaction
	for rows.Next() {
		re := &domain.Reaction{}
		if err := rows.Scan(&re.ReactionID, &re.TargetType, &re.TargetID, &re.UserID, &re.Emoji, &re.CreatedAt); err != nil {
			return nil, wrapErr("scan reaction", err)
		}
		out = append(out, re)
	}
	return out, rows.Err()
}
