package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"threadcast-backend/internal/domain"
	"threadcast-backend/internal/pubsub"
	"threadcast-backend/internal/repository/memory"
	"threadcast-backend/internal/service/conversation"
	"threadcast-backend/internal/service/dispatch"
	apperrors "threadcast-backend/pkg/errors"
)

type MockPresigner struct {
	mock.Mock
}

func (m *MockPresigner) PresignGet(ctx context.Context, objectKey string) (string, error) {
	args := m.Called(ctx, objectKey)
	return args.String(0), args.Error(1)
}

type testEnv struct {
	store  *memory.Store
	broker *pubsub.MemoryBroker
	ledger *conversation.Service
	chat   *Service

	alice, bob, carol uuid.UUID
}

func newTestEnv(t *testing.T, presigner Presigner) *testEnv {
	t.Helper()
	store := memory.NewStore()
	broker := pubsub.NewMemoryBroker()
	ledger := conversation.NewService(store.Conversations(), store.Messages())
	dispatcher := dispatch.NewDispatcher(broker, store.NotificationRepo(), dispatch.Options{})

	env := &testEnv{
		store:  store,
		broker: broker,
		ledger: ledger,
		alice:  uuid.New(),
		bob:    uuid.New(),
		carol:  uuid.New(),
	}
	env.chat = NewService(store.Messages(), store.Users(), ledger, dispatcher, presigner)

	store.PutUser(&domain.UserSummary{UserID: env.alice, Username: "alice"})
	store.PutUser(&domain.UserSummary{UserID: env.bob, Username: "bob"})
	store.PutUser(&domain.UserSummary{UserID: env.carol, Username: "carol"})
	return env
}

func (e *testEnv) direct(t *testing.T) uuid.UUID {
	t.Helper()
	conv, err := e.ledger.CreateConversation(context.Background(), &conversation.CreateConversationInput{
		Type:           domain.ConversationTypeDirect,
		CreatedBy:      e.alice,
		ParticipantIDs: []uuid.UUID{e.bob},
	})
	require.NoError(t, err)
	return conv.ConversationID
}

func (e *testEnv) group(t *testing.T) uuid.UUID {
	t.Helper()
	conv, err := e.ledger.CreateConversation(context.Background(), &conversation.CreateConversationInput{
		Type:           domain.ConversationTypeGroup,
		CreatedBy:      e.alice,
		ParticipantIDs: []uuid.UUID{e.bob, e.carol},
	})
	require.NoError(t, err)
	return conv.ConversationID
}

func text(s string) *string { return &s }

func (e *testEnv) sendText(t *testing.T, convID, sender uuid.UUID, content string) *domain.MessageResponse {
	t.Helper()
	msg, err := e.chat.SendMessage(context.Background(), &SendMessageInput{
		ConversationID: convID,
		SenderID:       sender,
		MessageType:    domain.MessageTypeText,
		Content:        text(content),
	})
	require.NoError(t, err)
	return msg
}

func TestSendMessage_UnreadThenMarkRead(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	convID := env.direct(t)

	env.sendText(t, convID, env.alice, "hi")

	unread, err := env.ledger.UnreadCount(ctx, convID, env.bob)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)

	require.NoError(t, env.ledger.MarkRead(ctx, convID, env.bob, nil))

	unread, err = env.ledger.UnreadCount(ctx, convID, env.bob)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)

	// Own messages never count as unread
	unread, err = env.ledger.UnreadCount(ctx, convID, env.alice)
	require.NoError(t, err)
	assert.Equal(t, 0, unread)
}

func TestSendMessage_DirectFanOut(t *testing.T) {
	env := newTestEnv(t, nil)
	convID := env.direct(t)

	msg := env.sendText(t, convID, env.alice, "hello <script>alert(1)</script>")

	assert.Equal(t, "hello", *msg.Content)
	require.NotNil(t, msg.ReceiverID)
	assert.Equal(t, env.bob, *msg.ReceiverID)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "alice", msg.Sender.Username)

	assert.Len(t, env.broker.On(domain.ConversationChannel(convID)), 1)
	personal := env.broker.On(domain.UserChannel(env.bob))
	require.Len(t, personal, 1)
	assert.Equal(t, domain.EventNewMessage, personal[0].Event)

	notes := env.store.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, env.bob, notes[0].RecipientID)
	assert.Equal(t, env.alice, notes[0].SenderID)
	assert.Equal(t, msg.MessageID, *notes[0].ReferenceID)
}

func TestSendMessage_GroupFanOut(t *testing.T) {
	env := newTestEnv(t, nil)
	convID := env.group(t)

	msg := env.sendText(t, convID, env.bob, "team update")

	assert.Nil(t, msg.ReceiverID)
	assert.Len(t, env.broker.On(domain.UserChannel(env.alice)), 1)
	assert.Len(t, env.broker.On(domain.UserChannel(env.carol)), 1)
	assert.Empty(t, env.broker.On(domain.UserChannel(env.bob)))
	assert.Empty(t, env.store.Notifications())
}

func TestSendMessage_BumpsConversation(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	convID := env.direct(t)

	before, err := env.ledger.Conversation(ctx, convID)
	require.NoError(t, err)

	msg := env.sendText(t, convID, env.alice, "bump")

	after, err := env.ledger.Conversation(ctx, convID)
	require.NoError(t, err)
	assert.False(t, after.UpdatedAt.Before(before.UpdatedAt))
	assert.Equal(t, msg.CreatedAt, after.UpdatedAt)
}

func TestSendMessage_Rejections(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	convID := env.direct(t)

	tests := []struct {
		name  string
		input *SendMessageInput
		code  apperrors.ErrorCode
	}{
		{
			name:  "non member",
			input: &SendMessageInput{ConversationID: convID, SenderID: env.carol, MessageType: domain.MessageTypeText, Content: text("hi")},
			code:  apperrors.ErrCodeForbidden,
		},
		{
			name:  "non member with engine type",
			input: &SendMessageInput{ConversationID: convID, SenderID: env.carol, MessageType: domain.MessageTypeSystem, Content: text("hi")},
			code:  apperrors.ErrCodeForbidden,
		},
		{
			name:  "engine type",
			input: &SendMessageInput{ConversationID: convID, SenderID: env.alice, MessageType: domain.MessageTypeSystem, Content: text("hi")},
			code:  apperrors.ErrCodeBadRequest,
		},
		{
			name:  "empty text",
			input: &SendMessageInput{ConversationID: convID, SenderID: env.alice, MessageType: domain.MessageTypeText, Content: text("   ")},
			code:  apperrors.ErrCodeValidation,
		},
		{
			name:  "media without attachment",
			input: &SendMessageInput{ConversationID: convID, SenderID: env.alice, MessageType: domain.MessageTypeMedia},
			code:  apperrors.ErrCodeValidation,
		},
		{
			name: "mismatched payload",
			input: &SendMessageInput{
				ConversationID: convID,
				SenderID:       env.alice,
				MessageType:    domain.MessageTypeMedia,
				Payload:        domain.VoicePayload{DurationSeconds: 3, Attachment: domain.MediaInput{URL: "https://cdn.example.com/a.ogg", MimeType: "audio/ogg"}},
			},
			code: apperrors.ErrCodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.chat.SendMessage(ctx, tt.input)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
	assert.Empty(t, env.broker.Published())
}

func TestSendMessage_BrokerFailureDoesNotFailSend(t *testing.T) {
	env := newTestEnv(t, nil)
	convID := env.direct(t)
	env.broker.FailWith(errors.New("broker down"))

	msg := env.sendText(t, convID, env.alice, "still stored")

	stored, err := env.chat.GetMessage(context.Background(), msg.MessageID, env.bob)
	require.NoError(t, err)
	assert.Equal(t, "still stored", *stored.Content)
}

func TestSendMessage_MediaPresigned(t *testing.T) {
	presigner := new(MockPresigner)
	presigner.On("PresignGet", mock.Anything, "users/a/photo.png").Return("https://minio.local/photo.png?sig=1", nil)

	env := newTestEnv(t, presigner)
	convID := env.direct(t)

	msg, err := env.chat.SendMessage(context.Background(), &SendMessageInput{
		ConversationID: convID,
		SenderID:       env.alice,
		MessageType:    domain.MessageTypeMedia,
		Payload: domain.MediaPayload{Attachments: []domain.MediaInput{
			{ObjectKey: "users/a/photo.png", MimeType: "image/png", SizeBytes: 10},
			{URL: "https://cdn.example.com/b.png", MimeType: "image/png", SizeBytes: 20},
		}},
	})
	require.NoError(t, err)
	require.Len(t, msg.Media, 2)
	assert.Equal(t, "https://minio.local/photo.png?sig=1", msg.Media[0].URL)
	assert.Equal(t, "https://cdn.example.com/b.png", msg.Media[1].URL)
	assert.Equal(t, 1, msg.Media[1].Position)
	presigner.AssertExpectations(t)
}

func TestGetMessages_CursorPagination(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	convID := env.direct(t)

	var sent []uuid.UUID
	for _, body := range []string{"one", "two", "three", "four", "five"} {
		sent = append(sent, env.sendText(t, convID, env.alice, body).MessageID)
	}

	page, err := env.chat.GetMessages(ctx, &GetMessagesInput{ConversationID: convID, UserID: env.bob, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "four", *page.Messages[0].Content)
	assert.Equal(t, "five", *page.Messages[1].Content)
	assert.True(t, page.HasMore)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, sent[3], *page.NextCursor)
	assert.Equal(t, 5, page.UnreadCount)

	page, err = env.chat.GetMessages(ctx, &GetMessagesInput{ConversationID: convID, UserID: env.bob, Before: page.NextCursor, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "two", *page.Messages[0].Content)
	assert.Equal(t, "three", *page.Messages[1].Content)

	page, err = env.chat.GetMessages(ctx, &GetMessagesInput{ConversationID: convID, UserID: env.bob, Before: page.NextCursor, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	assert.Equal(t, "one", *page.Messages[0].Content)
	assert.False(t, page.HasMore)
	assert.Nil(t, page.NextCursor)
}

func TestGetMessages_Forbidden(t *testing.T) {
	env := newTestEnv(t, nil)
	convID := env.direct(t)

	_, err := env.chat.GetMessages(context.Background(), &GetMessagesInput{ConversationID: convID, UserID: env.carol})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))
}

func TestGetMessage_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.chat.GetMessage(context.Background(), uuid.New(), env.alice)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestRecordMessage_SystemNote(t *testing.T) {
	env := newTestEnv(t, nil)
	convID := env.group(t)

	msg, err := env.chat.RecordMessage(context.Background(), &SendMessageInput{
		ConversationID: convID,
		SenderID:       env.alice,
		MessageType:    domain.MessageTypeSystem,
		Content:        text("Call ended"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.MessageTypeSystem, msg.MessageType)
	assert.Empty(t, env.broker.Published())
}

func TestPublishTyping(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	convID := env.direct(t)

	require.NoError(t, env.chat.PublishTyping(ctx, convID, env.alice, true))
	require.NoError(t, env.chat.PublishTyping(ctx, convID, env.alice, false))

	events := env.broker.On(domain.ConversationChannel(convID))
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventTyping, events[0].Event)
	assert.Equal(t, domain.EventStopTyping, events[1].Event)
	assert.Empty(t, env.store.Notifications())

	err := env.chat.PublishTyping(ctx, convID, env.carol, true)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))
}
