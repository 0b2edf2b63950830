package cockroach

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"threadcast-backend/internal/domain"
)

// NotificationRepository handles notification data operations
type NotificationRepository struct {
	db *pgxpool.Pool
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create stores a notification for its recipient
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO notifications (
			notification_id, type, recipient_id, sender_id, conversation_id, reference_id, is_read, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		n.NotificationID,
		n.Type,
		n.RecipientID,
		n.SenderID,
		n.ConversationID,
		n.ReferenceID,
		n.IsRead,
		n.CreatedAt,
	)
	if err != nil {
		return wrapErr("create notification", err)
	}
	return nil
}

// ListByRecipient returns a page of a user's notifications, newest first,
// together with the total count
func (r *NotificationRepository) ListByRecipient(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Notification, int, error) {
	var total int
	if err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, wrapErr("count notifications", err)
	}

	rows, err := r.db.Query(ctx, `
		SELECT notification_id, type, recipient_id, sender_id, conversation_id, reference_id, is_read, created_at
		FROM notifications
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, wrapErr("list notifications", err)
	}
	defer rows.Close()

	out := make([]*domain.Notification, 0, limit)
	for rows.Next() {
		n := &domain.Notification{}
		if err := rows.Scan(
			&n.NotificationID, &n.Type, &n.RecipientID, &n.SenderID,
			&n.ConversationID, &n.ReferenceID, &n.IsRead, &n.CreatedAt,
		); err != nil {
			return nil, 0, wrapErr("scan notification", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, wrapErr("list notifications", err)
	}
	return out, total, nil
}

// CountUnread counts a user's unread notifications
func (r *NotificationRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = false`, userID,
	).Scan(&n)
	if err != nil {
		return 0, wrapErr("count unread notifications", err)
	}
	return n, nil
}

// MarkAsRead marks one of the user's notifications read
func (r *NotificationRepository) MarkAsRead(ctx context.Context, notificationID, userID uuid.UUID) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE notification_id = $1 AND recipient_id = $2`,
		notificationID, userID,
	)
	if err != nil {
		return wrapErr("mark notification read", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark notification read: %w", domain.ErrNotFound)
	}
	return nil
}

// MarkAllAsRead marks every notification of the user read
func (r *NotificationRepository) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Exec(ctx,
		`UPDATE notifications SET is_read = true WHERE recipient_id = $1 AND is_read = false`, userID,
	)
	return wrapErr("mark all notifications read", err)
}
