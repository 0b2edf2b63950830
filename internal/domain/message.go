package domain

import (
	"time"

	"github.com/google/uuid"
)

// MessageType tags the payload carried by a message
type MessageType string

const (
	MessageTypeText          MessageType = "TEXT"
	MessageTypeMedia         MessageType = "MEDIA"
	MessageTypePoll          MessageType = "POLL"
	MessageTypeVoice         MessageType = "VOICE_MESSAGE"
	MessageTypeHandwriting   MessageType = "HANDWRITING"
	MessageTypeWatchTogether MessageType = "WATCH_TOGETHER"
	MessageTypeCallRecord    MessageType = "CALL_RECORD"
	MessageTypeSystem        MessageType = "SYSTEM"
)

// Valid reports whether t is a known message type
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeMedia, MessageTypePoll, MessageTypeVoice,
		MessageTypeHandwriting, MessageTypeWatchTogether, MessageTypeCallRecord, MessageTypeSystem:
		return true
	}
	return false
}

// UserAuthored reports whether clients may send this type directly.
// POLL, CALL_RECORD, WATCH_TOGETHER and SYSTEM messages are written by their engines.
func (t MessageType) UserAuthored() bool {
	switch t {
	case MessageTypeText, MessageTypeMedia, MessageTypeVoice, MessageTypeHandwriting:
		return true
	}
	return false
}

// Message represents a chat message entity
// Maps to CockroachDB messages table. MessageID is a UUIDv7 so ids sort by creation.
type Message struct {
	MessageID      uuid.UUID           `json:"message_id" db:"message_id"`
	ConversationID uuid.UUID           `json:"conversation_id" db:"conversation_id"`
	SenderID       uuid.UUID           `json:"sender_id" db:"sender_id"`
	ReceiverID     *uuid.UUID          `json:"receiver_id,omitempty" db:"receiver_id"`
	Content        *string             `json:"content,omitempty" db:"content"`
	MessageType    MessageType         `json:"message_type" db:"message_type"`
	Media          []MediaAttachment   `json:"media,omitempty"`
	PollID         *uuid.UUID          `json:"poll_id,omitempty" db:"poll_id"`
	CallID         *uuid.UUID          `json:"call_id,omitempty" db:"call_id"`
	WatchSessionID *uuid.UUID          `json:"watch_session_id,omitempty" db:"watch_session_id"`
	Handwriting    *HandwritingPayload `json:"handwriting,omitempty" db:"handwriting"`
	CreatedAt      time.Time           `json:"created_at" db:"created_at"`
}

// MediaAttachment is a stored reference to externally hosted media.
// Either URL or ObjectKey is set; ObjectKey is presigned on read.
type MediaAttachment struct {
	AttachmentID    uuid.UUID `json:"attachment_id" db:"attachment_id"`
	MessageID       uuid.UUID `json:"message_id" db:"message_id"`
	URL             string    `json:"url" db:"url"`
	ObjectKey       string    `json:"-" db:"object_key"`
	MimeType        string    `json:"mime_type" db:"mime_type"`
	SizeBytes       int64     `json:"size_bytes" db:"size_bytes"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty" db:"duration_seconds"`
	ThumbnailURL    *string   `json:"thumbnail_url,omitempty" db:"thumbnail_url"`
	Position        int       `json:"position" db:"position"`
}

// MessageResponse represents the message returned to clients
type MessageResponse struct {
	*Message
	Sender *UserSummary `json:"sender,omitempty"`
}

// MessagePage is one page of history in chronological order
type MessagePage struct {
	Messages    []*MessageResponse `json:"messages"`
	NextCursor  *uuid.UUID         `json:"next_cursor,omitempty"`
	HasMore     bool               `json:"has_more"`
	UnreadCount int                `json:"unread_count"`
}
