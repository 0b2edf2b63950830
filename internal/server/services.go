// Package server assembles repositories, services and HTTP routes into one
// runnable application graph.
package server

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"threadcast-backend/internal/pubsub"
	"threadcast-backend/internal/repository/cached"
	"threadcast-backend/internal/repository/cockroach"
	"threadcast-backend/internal/repository/memory"
	"threadcast-backend/internal/service/call"
	"threadcast-backend/internal/service/chat"
	"threadcast-backend/internal/service/conversation"
	"threadcast-backend/internal/service/dispatch"
	"threadcast-backend/internal/service/notification"
	"threadcast-backend/internal/service/poll"
	"threadcast-backend/internal/service/reaction"
	"threadcast-backend/internal/service/storage"
	"threadcast-backend/internal/service/watch"
)

// MessageStore is everything the engines need from the message table
type MessageStore interface {
	chat.MessageRepository
	conversation.MessageReader
}

// NotificationStore is written by the dispatcher and read by the feed
type NotificationStore interface {
	dispatch.NotificationRepository
	notification.Repository
}

// Repositories groups one implementation of every store
type Repositories struct {
	Conversations conversation.Repository
	Messages      MessageStore
	Users         chat.UserRepository
	Calls         call.Repository
	Polls         poll.PollRepository
	Watch         watch.Repository
	Reactions     reaction.Repository
	Notifications NotificationStore
	// Comments is optional; comment reactions are rejected without it
	Comments reaction.CommentDirectory
}

// MemoryRepositories backs every store with the in-process driver
func MemoryRepositories(store *memory.Store) Repositories {
	return Repositories{
		Conversations: store.Conversations(),
		Messages:      store.Messages(),
		Users:         store.Users(),
		Calls:         store.Calls(),
		Polls:         store.Polls(),
		Watch:         store.Watch(),
		Reactions:     store.Reactions(),
		Notifications: store.NotificationRepo(),
	}
}

// Sender profiles are owned by the identity service and change rarely
const (
	userCacheTTL  = time.Minute
	userCacheSize = 10000
)

// CockroachRepositories backs every store with CockroachDB
func CockroachRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Conversations: cockroach.NewConversationRepository(pool),
		Messages:      cockroach.NewMessageRepository(pool),
		Users:         cached.NewUserRepository(cockroach.NewUserRepository(pool), userCacheTTL, userCacheSize),
		Calls:         cockroach.NewCallRepository(pool),
		Polls:         cockroach.NewPollRepository(pool),
		Watch:         cockroach.NewWatchRepository(pool),
		Reactions:     cockroach.NewReactionRepository(pool),
		Notifications: cockroach.NewNotificationRepository(pool),
	}
}

// Services is the wired engine
type Services struct {
	Dispatcher    *dispatch.Dispatcher
	Conversations *conversation.Service
	Chat          *chat.Service
	Calls         *call.Service
	Polls         *poll.Service
	Watch         *watch.Service
	Reactions     *reaction.Service
	Notifications *notification.Service
	// Storage is nil when object storage is disabled
	Storage *storage.Service
}

// NewServices wires every engine on top of repos. Every mutation fans out
// through a single dispatcher publishing on publisher.
func NewServices(repos Repositories, publisher pubsub.Publisher, storageSvc *storage.Service, opts dispatch.Options) *Services {
	dispatcher := dispatch.NewDispatcher(publisher, repos.Notifications, opts)
	ledger := conversation.NewService(repos.Conversations, repos.Messages)

	var presigner chat.Presigner
	if storageSvc != nil {
		presigner = storageSvc
	}
	chatSvc := chat.NewService(repos.Messages, repos.Users, ledger, dispatcher, presigner)

	reactionSvc := reaction.NewService(repos.Reactions, repos.Messages, ledger, dispatcher)
	if repos.Comments != nil {
		reactionSvc.WithComments(repos.Comments)
	}

	return &Services{
		Dispatcher:    dispatcher,
		Conversations: ledger,
		Chat:          chatSvc,
		Calls:         call.NewService(repos.Calls, ledger, chatSvc, dispatcher),
		Polls:         poll.NewService(repos.Polls, ledger, chatSvc, dispatcher),
		Watch:         watch.NewService(repos.Watch, ledger, chatSvc, dispatcher),
		Reactions:     reactionSvc,
		Notifications: notification.NewService(repos.Notifications),
		Storage:       storageSvc,
	}
}
