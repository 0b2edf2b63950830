package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventName is the closed vocabulary of real-time events
type EventName string

const (
	EventNewMessage            EventName = "NEW_MESSAGE"
	EventTyping                EventName = "TYPING"
	EventStopTyping            EventName = "STOP_TYPING"
	EventCallStarted           EventName = "CALL_STARTED"
	EventIncomingCall          EventName = "INCOMING_CALL"
	EventCallParticipantJoined EventName = "CALL_PARTICIPANT_JOINED"
	EventCallParticipantLeft   EventName = "CALL_PARTICIPANT_LEFT"
	EventCallEnded             EventName = "CALL_ENDED"
	EventCallDeclined          EventName = "CALL_DECLINED"
	EventCallSignal            EventName = "CALL_SIGNAL"
	EventNewPoll               EventName = "NEW_POLL"
	EventPollVoteUpdated       EventName = "POLL_VOTE_UPDATED"
	EventPollClosed            EventName = "POLL_CLOSED"
	EventReactionAdded         EventName = "REACTION_ADDED"
	EventReactionRemoved       EventName = "REACTION_REMOVED"
	EventWatchStarted          EventName = "WATCH_TOGETHER_STARTED"
	EventWatchUpdated          EventName = "WATCH_TOGETHER_UPDATED"
	EventWatchEnded            EventName = "WATCH_TOGETHER_ENDED"
)

// Ephemeral reports whether the event is never persisted
func (e EventName) Ephemeral() bool {
	return e == EventTyping || e == EventStopTyping || e == EventCallSignal
}

// Event is the wire envelope published on every channel
type Event struct {
	Event          EventName  `json:"event"`
	ConversationID *uuid.UUID `json:"conversation_id,omitempty"`
	Data           any        `json:"data"`
	Timestamp      time.Time  `json:"timestamp"`
}

// ConversationChannel is the channel every member of a conversation listens on
func ConversationChannel(conversationID uuid.UUID) string {
	return "conversation:" + conversationID.String()
}

// UserChannel is a user's personal channel
func UserChannel(userID uuid.UUID) string {
	return "user:" + userID.String() + ":chat"
}

// CommentChannel carries reactions on comments, which live outside conversations
func CommentChannel(commentID uuid.UUID) string {
	return "comment:" + commentID.String()
}
