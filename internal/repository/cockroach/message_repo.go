package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"threadcast-backend/internal/domain"
)

// MessageRepository handles message data operations in CockroachDB
type MessageRepository struct {
	pool *pgxpool.Pool
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(pool *pgxpool.Pool) *MessageRepository {
	return &MessageRepository{pool: pool}
}

// Create inserts a message with its media and bumps the conversation's
// updated_at in one transaction
func (r *MessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (
			message_id, conversation_id, sender_id, receiver_id, content, message_type,
			poll_id, call_id, watch_session_id, handwriting, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		msg.MessageID,
		msg.ConversationID,
		msg.SenderID,
		msg.ReceiverID,
		msg.Content,
		msg.MessageType,
		msg.PollID,
		msg.CallID,
		msg.WatchSessionID,
		msg.Handwriting,
		msg.CreatedAt,
	)
	if err != nil {
		return wrapErr("create message", err)
	}

	for _, m := range msg.Media {
		_, err = tx.Exec(ctx, `
			INSERT INTO message_media (
				attachment_id, message_id, url, object_key, mime_type, size_bytes,
				duration_seconds, thumbnail_url, position
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, m.AttachmentID, msg.MessageID, m.URL, m.ObjectKey, m.MimeType, m.SizeBytes,
			m.DurationSeconds, m.ThumbnailURL, m.Position)
		if err != nil {
			return wrapErr("create message media", err)
		}
	}

	tag, err := tx.Exec(ctx, `
		UPDATE conversations SET updated_at = GREATEST(updated_at, $2)
		WHERE conversation_id = $1
	`, msg.ConversationID, msg.CreatedAt)
	if err != nil {
		return wrapErr("touch conversation", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("touch conversation: %w", domain.ErrNotFound)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const messageColumns = `message_id, conversation_id, sender_id, receiver_id, content, message_type,
	poll_id, call_id, watch_session_id, handwriting, created_at`

func scanMessage(row pgx.Row) (*domain.Message, error) {
	m := &domain.Message{}
	err := row.Scan(
		&m.MessageID,
		&m.ConversationID,
		&m.SenderID,
		&m.ReceiverID,
		&m.Content,
		&m.MessageType,
		&m.PollID,
		&m.CallID,
		&m.WatchSessionID,
		&m.Handwriting,
		&m.CreatedAt,
	)
	return m, err
}

// GetByID retrieves a message with its media
func (r *MessageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE message_id = $1`

	m, err := scanMessage(r.pool.QueryRow(ctx, query, messageID))
	if err != nil {
		return nil, wrapErr("get message", err)
	}
	if err := r.attachMedia(ctx, []*domain.Message{m}); err != nil {
		return nil, err
	}
	return m, nil
}

// ListByConversation returns up to limit messages older than before, newest first.
// Message ids are UUIDv7 so id order is creation order.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, before *uuid.UUID, limit int) ([]*domain.Message, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if before == nil {
		rows, err = r.pool.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1
			ORDER BY message_id DESC
			LIMIT $2
		`, conversationID, limit)
	} else {
		rows, err = r.pool.Query(ctx, `
			SELECT `+messageColumns+` FROM messages
			WHERE conversation_id = $1 AND message_id < $2
			ORDER BY message_id DESC
			LIMIT $3
		`, conversationID, *before, limit)
	}
	if err != nil {
		return nil, wrapErr("list messages", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, wrapErr("scan message", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate messages", err)
	}

	if err := r.attachMedia(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Latest returns the newest message of a conversation
func (r *MessageRepository) Latest(ctx context.Context, conversationID uuid.UUID) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + ` FROM messages WHERE conversation_id = $1 ORDER BY message_id DESC LIMIT 1`

	m, err := scanMessage(r.pool.QueryRow(ctx, query, conversationID))
	if err != nil {
		return nil, wrapErr("get latest message", err)
	}
	return m, nil
}

// CountUnread counts messages from others created after the user's read cursor.
// A missing cursor counts from the epoch.
func (r *MessageRepository) CountUnread(ctx context.Context, conversationID, userID uuid.UUID) (int, error) {
	query := `
		SELECT COUNT(m.message_id)
		FROM conversation_participants p
		LEFT JOIN messages lr ON lr.message_id = p.last_read_message_id
		LEFT JOIN messages m
		       ON m.conversation_id = p.conversation_id
		      AND m.sender_id <> p.user_id
		      AND m.created_at > COALESCE(lr.created_at, '1970-01-01 00:00:00+00'::TIMESTAMPTZ)
		WHERE p.conversation_id = $1 AND p.user_id = $2
		GROUP BY p.participant_id
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, conversationID, userID).Scan(&count); err != nil {
		return 0, wrapErr("count unread", err)
	}
	return count, nil
}

func (r *MessageRepository) attachMedia(ctx context.Context, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, 0, len(msgs))
	byID := make(map[uuid.UUID]*domain.Message, len(msgs))
	for _, m := range msgs {
		if m.MessageType != domain.MessageTypeMedia && m.MessageType != domain.MessageTypeVoice {
			continue
		}
		ids = append(ids, m.MessageID)
		byID[m.MessageID] = m
	}
	if len(ids) == 0 {
		return nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT attachment_id, message_id, url, object_key, mime_type, size_bytes,
		       duration_seconds, thumbnail_url, position
		FROM message_media
		WHERE message_id = ANY($1::UUID[])
		ORDER BY message_id, position
	`, uuidStrings(ids))
	if err != nil {
		return wrapErr("load message media", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a domain.MediaAttachment
		if err := rows.Scan(&a.AttachmentID, &a.MessageID, &a.URL, &a.ObjectKey, &a.MimeType,
			&a.SizeBytes, &a.DurationSeconds, &a.ThumbnailURL, &a.Position); err != nil {
			return wrapErr("scan message media", err)
		}
		if m, ok := byID[a.MessageID]; ok {
			m.Media = append(m.Media, a)
		}
	}
	return rows.Err()
}
