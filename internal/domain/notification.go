package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification is the durable record written for every user-directed event.
// Maps to CockroachDB notifications table; read by the notification feed.
type Notification struct {
	NotificationID uuid.UUID  `json:"notification_id" db:"notification_id"`
	Type           EventName  `json:"type" db:"type"`
	RecipientID    uuid.UUID  `json:"recipient_id" db:"recipient_id"`
	SenderID       uuid.UUID  `json:"sender_id" db:"sender_id"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty" db:"conversation_id"`
	ReferenceID    *uuid.UUID `json:"reference_id,omitempty" db:"reference_id"`
	IsRead         bool       `json:"is_read" db:"is_read"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// NotificationPage is one page of a user's notification feed
type NotificationPage struct {
	Notifications []*Notification `json:"notifications"`
	UnreadCount   int             `json:"unread_count"`
	TotalCount    int             `json:"total_count"`
	HasMore       bool            `json:"has_more"`
}
