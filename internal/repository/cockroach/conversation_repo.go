package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"threadcast-backend/internal/domain"
)

// ConversationRepository handles conversation and membership data
type ConversationRepository struct {
	pool *pgxpool.Pool
}

// NewConversationRepository creates a new ConversationRepository
func NewConversationRepository(pool *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{pool: pool}
}

// Create creates a conversation and its participants in a transaction
func (r *ConversationRepository) Create(ctx context.Context, conv *domain.Conversation, participants []*domain.ConversationParticipant) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO conversations (conversation_id, type, name, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, conv.ConversationID, conv.Type, conv.Name, conv.CreatedBy, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return wrapErr("create conversation", err)
	}

	for _, p := range participants {
		_, err = tx.Exec(ctx, `
			INSERT INTO conversation_participants (participant_id, conversation_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4, $5)
		`, p.ParticipantID, p.ConversationID, p.UserID, p.Role, p.JoinedAt)
		if err != nil {
			return wrapErr("add participant", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const conversationColumns = `c.conversation_id, c.type, c.name, c.created_by, c.created_at, c.updated_at`

func scanConversation(row pgx.Row) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := row.Scan(&c.ConversationID, &c.Type, &c.Name, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// GetByID retrieves a conversation by ID
func (r *ConversationRepository) GetByID(ctx context.Context, conversationID uuid.UUID) (*domain.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations c WHERE c.conversation_id = $1`

	c, err := scanConversation(r.pool.QueryRow(ctx, query, conversationID))
	if err != nil {
		return nil, wrapErr("get conversation", err)
	}
	return c, nil
}

// FindDirect returns the direct conversation shared by two users
func (r *ConversationRepository) FindDirect(ctx context.Context, userA, userB uuid.UUID) (*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		JOIN conversation_participants a ON a.conversation_id = c.conversation_id AND a.user_id = $1
		JOIN conversation_participants b ON b.conversation_id = c.conversation_id AND b.user_id = $2
		WHERE c.type = 'direct'
		LIMIT 1
	`

	c, err := scanConversation(r.pool.QueryRow(ctx, query, userA, userB))
	if err != nil {
		return nil, wrapErr("find direct conversation", err)
	}
	return c, nil
}

// ListByUser returns a user's conversations, most recently active first
func (r *ConversationRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM conversations c
		JOIN conversation_participants p ON p.conversation_id = c.conversation_id
		WHERE p.user_id = $1
		ORDER BY c.updated_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, wrapErr("list conversations", err)
	}
	defer rows.Close()

	var out []*domain.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, wrapErr("scan conversation", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// IsParticipant checks if a user is a participant of a conversation
func (r *ConversationRepository) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)
	`

	var exists bool
	if err := r.pool.QueryRow(ctx, query, conversationID, userID).Scan(&exists); err != nil {
		return false, wrapErr("check participant", err)
	}
	return exists, nil
}

const participantColumns = `participant_id, conversation_id, user_id, role, last_read_message_id, joined_at`

func scanParticipant(row pgx.Row) (*domain.ConversationParticipant, error) {
	p := &domain.ConversationParticipant{}
	err := row.Scan(&p.ParticipantID, &p.ConversationID, &p.UserID, &p.Role, &p.LastReadMessageID, &p.JoinedAt)
	return p, err
}

// GetParticipant returns a user's membership entry
func (r *ConversationRepository) GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationParticipant, error) {
	query := `SELECT ` + participantColumns + ` FROM conversation_participants WHERE conversation_id = $1 AND user_id = $2`

	p, err := scanParticipant(r.pool.QueryRow(ctx, query, conversationID, userID))
	if err != nil {
		return nil, wrapErr("get participant", err)
	}
	return p, nil
}

// ListParticipants returns all membership entries of a conversation
func (r *ConversationRepository) ListParticipants(ctx context.Context, conversationID uuid.UUID) ([]*domain.ConversationParticipant, error) {
	query := `SELECT ` + participantColumns + ` FROM conversation_participants WHERE conversation_id = $1 ORDER BY joined_at`

	rows, err := r.pool.Query(ctx, query, conversationID)
	if err != nil {
		return nil, wrapErr("list participants", err)
	}
	defer rows.Close()

	var out []*domain.ConversationParticipant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, wrapErr("scan participant", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateLastRead moves the participant's read cursor
func (r *ConversationRepository) UpdateLastRead(ctx context.Context, conversationID, userID, messageID uuid.UUID) error {
	query := `
		UPDATE conversation_participants
		SET last_read_message_id = $3
		WHERE conversation_id = $1 AND user_id = $2
	`

	tag, err := r.pool.Exec(ctx, query, conversationID, userID, messageID)
	if err != nil {
		return wrapErr("update read cursor", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update read cursor: %w", domain.ErrNotFound)
	}
	return nil
}
