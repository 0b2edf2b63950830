package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallType is the media kind of a call
type CallType string

const (
	CallTypeAudio       CallType = "AUDIO"
	CallTypeVideo       CallType = "VIDEO"
	CallTypeGroupAudio  CallType = "GROUP_AUDIO"
	CallTypeGroupVideo  CallType = "GROUP_VIDEO"
	CallTypeScreenShare CallType = "SCREEN_SHARE"
)

// Valid reports whether t is a known call type
func (t CallType) Valid() bool {
	switch t {
	case CallTypeAudio, CallTypeVideo, CallTypeGroupAudio, CallTypeGroupVideo, CallTypeScreenShare:
		return true
	}
	return false
}

// HasVideo reports whether participants join with video by default
func (t CallType) HasVideo() bool {
	return t == CallTypeVideo || t == CallTypeGroupVideo
}

// CallStatus is the lifecycle state of a call
type CallStatus string

const (
	CallStatusRinging  CallStatus = "RINGING"
	CallStatusOngoing  CallStatus = "ONGOING"
	CallStatusEnded    CallStatus = "ENDED"
	CallStatusDeclined CallStatus = "DECLINED"
)

// IsTerminal reports whether no further transitions are possible
func (s CallStatus) IsTerminal() bool {
	return s == CallStatusEnded || s == CallStatusDeclined
}

// Call represents a voice/video call entity
// Maps to CockroachDB calls table
type Call struct {
	CallID         uuid.UUID  `json:"call_id" db:"call_id"`
	ConversationID uuid.UUID  `json:"conversation_id" db:"conversation_id"`
	InitiatorID    uuid.UUID  `json:"initiator_id" db:"initiator_id"`
	CallType       CallType   `json:"call_type" db:"call_type"`
	Status         CallStatus `json:"status" db:"status"`
	MessageID      *uuid.UUID `json:"message_id,omitempty" db:"message_id"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	Duration       *int       `json:"duration,omitempty" db:"duration"` // in seconds
}

// CallParticipant represents a participant in a call.
// (CallID, ParticipantID) is unique; a nil LeftAt means the user is in the call.
type CallParticipant struct {
	CallID          uuid.UUID  `json:"call_id" db:"call_id"`
	ParticipantID   uuid.UUID  `json:"participant_id" db:"participant_id"`
	UserID          uuid.UUID  `json:"user_id" db:"user_id"`
	HasVideo        bool       `json:"has_video" db:"has_video"`
	HasAudio        bool       `json:"has_audio" db:"has_audio"`
	IsScreenSharing bool       `json:"is_screen_sharing" db:"is_screen_sharing"`
	JoinedAt        time.Time  `json:"joined_at" db:"joined_at"`
	LeftAt          *time.Time `json:"left_at,omitempty" db:"left_at"`
}

// Active reports whether the participant is currently in the call
func (p *CallParticipant) Active() bool {
	return p.LeftAt == nil
}

// MediaCapabilities are the media flags a participant joins with
type MediaCapabilities struct {
	HasVideo        bool `json:"has_video"`
	HasAudio        bool `json:"has_audio"`
	IsScreenSharing bool `json:"is_screen_sharing"`
}

// CallDetails is a call together with its participants
type CallDetails struct {
	*Call
	Participants []*CallParticipant `json:"participants"`
}

// CallDurationSeconds returns the whole seconds between start and end
func CallDurationSeconds(startedAt, endedAt time.Time) int {
	d := endedAt.Sub(startedAt)
	if d < 0 {
		return 0
	}
	return int(d / time.Second)
}
