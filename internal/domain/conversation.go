package domain

import (
	"time"

	"github.com/google/uuid"
)

// ConversationType distinguishes one-to-one threads from groups
type ConversationType string

const (
	ConversationTypeDirect ConversationType = "direct"
	ConversationTypeGroup  ConversationType = "group"
)

// ParticipantRole is the role a user holds inside a conversation
type ParticipantRole string

const (
	RoleAdmin  ParticipantRole = "ADMIN"
	RoleMember ParticipantRole = "MEMBER"
)

// Conversation represents a conversation thread
// Maps to CockroachDB conversations table
type Conversation struct {
	ConversationID uuid.UUID        `json:"conversation_id" db:"conversation_id"`
	Type           ConversationType `json:"type" db:"type"`
	Name           *string          `json:"name,omitempty" db:"name"`
	CreatedBy      uuid.UUID        `json:"created_by" db:"created_by"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

// IsGroup reports whether the conversation has more than two possible members
func (c *Conversation) IsGroup() bool {
	return c.Type == ConversationTypeGroup
}

// ConversationParticipant is one membership ledger entry.
// (ConversationID, UserID) is unique. ParticipantID is referenced by call participants.
type ConversationParticipant struct {
	ParticipantID     uuid.UUID       `json:"participant_id" db:"participant_id"`
	ConversationID    uuid.UUID       `json:"conversation_id" db:"conversation_id"`
	UserID            uuid.UUID       `json:"user_id" db:"user_id"`
	Role              ParticipantRole `json:"role" db:"role"`
	LastReadMessageID *uuid.UUID      `json:"last_read_message_id,omitempty" db:"last_read_message_id"`
	JoinedAt          time.Time       `json:"joined_at" db:"joined_at"`
}

// ConversationCreate represents data needed to create a conversation
type ConversationCreate struct {
	Type           ConversationType `json:"type" binding:"required,oneof=direct group"`
	Name           *string          `json:"name" binding:"omitempty,max=100"`
	ParticipantIDs []uuid.UUID      `json:"participant_ids" binding:"required,min=1,max=256"`
}

// ConversationSummary is a conversation as seen by one member
type ConversationSummary struct {
	Conversation
	Participants []*ConversationParticipant `json:"participants"`
	UnreadCount  int                        `json:"unread_count"`
}
