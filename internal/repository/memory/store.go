// Package memory is an in-process implementation of every repository used by
// the conversation engine. It backs STORE_DRIVER=memory and the service tests.
package memory

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"threadcast-backend/internal/domain"
	"threadcast-backend/pkg/logger"
)

// Store holds all tables behind a single lock. Each repository type is a
// view over the same Store.
type Store struct {
	mu sync.RWMutex

	users         map[uuid.UUID]*domain.UserSummary
	conversations map[uuid.UUID]*domain.Conversation
	participants  map[uuid.UUID][]*domain.ConversationParticipant // by conversation
	messages      map[uuid.UUID]*domain.Message
	messageOrder  map[uuid.UUID][]uuid.UUID // by conversation, ascending
	calls         map[uuid.UUID]*domain.Call
	callMembers   map[uuid.UUID][]*domain.CallParticipant // by call
	polls         map[uuid.UUID]*domain.Poll
	pollOptions   map[uuid.UUID][]*domain.PollOption // by poll
	pollVotes     map[uuid.UUID][]*domain.PollVote   // by poll
	watchSessions map[uuid.UUID]*domain.WatchSession
	reactions     map[uuid.UUID]*domain.Reaction
	notifications []*domain.Notification
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		users:         make(map[uuid.UUID]*domain.UserSummary),
		conversations: make(map[uuid.UUID]*domain.Conversation),
		participants:  make(map[uuid.UUID][]*domain.ConversationParticipant),
		messages:      make(map[uuid.UUID]*domain.Message),
		messageOrder:  make(map[uuid.UUID][]uuid.UUID),
		calls:         make(map[uuid.UUID]*domain.Call),
		callMembers:   make(map[uuid.UUID][]*domain.CallParticipant),
		polls:         make(map[uuid.UUID]*domain.Poll),
		pollOptions:   make(map[uuid.UUID][]*domain.PollOption),
		pollVotes:     make(map[uuid.UUID][]*domain.PollVote),
		watchSessions: make(map[uuid.UUID]*domain.WatchSession),
		reactions:     make(map[uuid.UUID]*domain.Reaction),
	}
}

// PutUser registers a user profile. Users are owned by the identity service,
// so the memory driver is seeded explicitly.
func (s *Store) PutUser(u *domain.UserSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *u
	s.users[u.UserID] = &cp
	logger.Debug("Memory store user added", zap.String("user_id", u.UserID.String()))
}

// Notifications returns a copy of every notification written so far
func (s *Store) Notifications() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		out = append(out, *n)
	}
	return out
}

// Conversations returns the conversation repository view
func (s *Store) Conversations() *ConversationRepository { return &ConversationRepository{s: s} }

// Messages returns the message repository view
func (s *Store) Messages() *MessageRepository { return &MessageRepository{s: s} }

// Users returns the user repository view
func (s *Store) Users() *UserRepository { return &UserRepository{s: s} }

// Calls returns the call repository view
func (s *Store) Calls() *CallRepository { return &CallRepository{s: s} }

// Polls returns the poll repository view
func (s *Store) Polls() *PollRepository { return &PollRepository{s: s} }

// Watch returns the watch-together repository view
func (s *Store) Watch() *WatchRepository { return &WatchRepository{s: s} }

// Reactions returns the reaction repository view
func (s *Store) Reactions() *ReactionRepository { return &ReactionRepository{s: s} }

// NotificationRepo returns the notification repository view
func (s *Store) NotificationRepo() *NotificationRepository { return &NotificationRepository{s: s} }

func (s *Store) participant(conversationID, userID uuid.UUID) *domain.ConversationParticipant {
	for _, p := range s.participants[conversationID] {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

func cloneMessage(m *domain.Message) *domain.Message {
	cp := *m
	if m.Media != nil {
		cp.Media = append([]domain.MediaAttachment(nil), m.Media...)
	}
	return &cp
}
