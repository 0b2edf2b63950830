package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReactionTargetType is the kind of object a reaction is attached to
type ReactionTargetType string

const (
	ReactionTargetMessage ReactionTargetType = "message"
	ReactionTargetComment ReactionTargetType = "comment"
)

// ReactionTarget identifies a reactable object
type ReactionTarget struct {
	Type ReactionTargetType `json:"type"`
	ID   uuid.UUID          `json:"id"`
}

// Reaction represents an emoji reaction.
// (TargetType, TargetID, UserID, Emoji) is unique.
type Reaction struct {
	ReactionID uuid.UUID          `json:"reaction_id" db:"reaction_id"`
	TargetType ReactionTargetType `json:"target_type" db:"target_type"`
	TargetID   uuid.UUID          `json:"target_id" db:"target_id"`
	UserID     uuid.UUID          `json:"user_id" db:"user_id"`
	Emoji      string             `json:"emoji" db:"emoji"`
	CreatedAt  time.Time          `json:"created_at" db:"created_at"`
}

// ReactionSummary groups reactions on a target by emoji
type ReactionSummary struct {
	Emoji   string      `json:"emoji"`
	Count   int         `json:"count"`
	UserIDs []uuid.UUID `json:"user_ids"`
}
