package domain

import (
	"time"

	"github.com/google/uuid"
)

// WatchSession is a shared playback cursor for a piece of media.
// Maps to CockroachDB watch_sessions table. Updates are last-writer-wins.
type WatchSession struct {
	SessionID       uuid.UUID  `json:"session_id" db:"session_id"`
	ConversationID  uuid.UUID  `json:"conversation_id" db:"conversation_id"`
	StartedBy       uuid.UUID  `json:"started_by" db:"started_by"`
	MessageID       uuid.UUID  `json:"message_id" db:"message_id"`
	MediaURL        string     `json:"media_url" db:"media_url"`
	Title           *string    `json:"title,omitempty" db:"title"`
	ThumbnailURL    *string    `json:"thumbnail_url,omitempty" db:"thumbnail_url"`
	CurrentPosition float64    `json:"current_position" db:"current_position"` // seconds
	IsPlaying       bool       `json:"is_playing" db:"is_playing"`
	IsActive        bool       `json:"is_active" db:"is_active"`
	UpdatedBy       uuid.UUID  `json:"updated_by" db:"updated_by"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

// WatchStart represents data needed to start a session
type WatchStart struct {
	MediaURL     string  `json:"media_url" binding:"required,url,max=2048"`
	Title        *string `json:"title" binding:"omitempty,max=200"`
	ThumbnailURL *string `json:"thumbnail_url" binding:"omitempty,url"`
}

// PlaybackUpdate is a new cursor position broadcast by one member
type PlaybackUpdate struct {
	CurrentPosition float64 `json:"current_position"`
	IsPlaying       bool    `json:"is_playing"`
}
