package domain

import (
	"github.com/google/uuid"
)

// UserSummary is the public projection of a user attached to messages.
// Users are owned by the identity service; this engine only reads them.
type UserSummary struct {
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	Username    string    `json:"username" db:"username"`
	DisplayName *string   `json:"display_name,omitempty" db:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty" db:"avatar_url"`
}
