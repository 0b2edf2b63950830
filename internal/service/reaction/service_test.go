package reaction

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

type testEnv struct {
	store     *memory.Store
	broker    *pubsub.MemoryBroker
	reactions *Service
	convID    uuid.UUID
	msg       *domain.Message
	alice     uuid.UUID
	bob       uuid.UUID
	mallory   uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	broker := pubsub.NewMemoryBroker()
	ledger := conversation.NewService(store.Conversations(), store.Messages())
	dispatcher := dispatch.NewDispatcher(broker, store.NotificationRepo(), dispatch.Options{})

	env := &testEnv{
		store:     store,
		broker:    broker,
		reactions: NewService(store.Reactions(), store.Messages(), ledger, dispatcher),
		alice:     uuid.New(),
		bob:       uuid.New(),
		mallory:   uuid.New(),
	}

	conv, err := ledger.CreateConversation(ctx, &conversation.CreateConversationInput{
		Type:           domain.ConversationTypeDirect,
		CreatedBy:      env.alice,
		ParticipantIDs: []uuid.UUID{env.bob},
	})
	require.NoError(t, err)
	env.convID = conv.ConversationID

	body := "look at this"
	env.msg = domain.NewMessage(env.convID, env.alice, domain.MessageTypeText, &body, nil)
	require.NoError(t, store.Messages().Create(ctx, env.msg))
	return env
}

func (e *testEnv) target() domain.ReactionTarget {
	return domain.ReactionTarget{Type: domain.ReactionTargetMessage, ID: e.msg.MessageID}
}

func TestToggleReaction_Parity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		res, err := env.reactions.ToggleReaction(ctx, env.target(), env.bob, "👍")
		require.NoError(t, err)

		list, err := env.reactions.ListReactions(ctx, env.target(), env.bob)
		require.NoError(t, err)

		if i%2 == 1 {
			assert.Equal(t, ActionAdded, res.Action)
			require.Len(t, list, 1)
			assert.Equal(t, 1, list[0].Count)
		} else {
			assert.Equal(t, ActionRemoved, res.Action)
			assert.Empty(t, list)
		}
	}

	assert.Len(t, env.broker.Named(domain.EventReactionAdded), 3*2)
	assert.Len(t, env.broker.Named(domain.EventReactionRemoved), 2*2)
}

func TestToggleReaction_DistinctEmojiCoexist(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.reactions.ToggleReaction(ctx, env.target(), env.bob, "👍")
	require.NoError(t, err)
	_, err = env.reactions.ToggleReaction(ctx, env.target(), env.alice, "👍")
	require.NoError(t, err)
	res, err := env.reactions.ToggleReaction(ctx, env.target(), env.bob, "🎉")
	require.NoError(t, err)

	require.Len(t, res.Reactions, 2)
	assert.Equal(t, "👍", res.Reactions[0].Emoji)
	assert.Equal(t, 2, res.Reactions[0].Count)
	assert.ElementsMatch(t, []uuid.UUID{env.alice, env.bob}, res.Reactions[0].UserIDs)
	assert.Equal(t, "🎉", res.Reactions[1].Emoji)
	assert.Equal(t, 1, res.Reactions[1].Count)
}

func TestToggleReaction_NotifiesAuthor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.reactions.ToggleReaction(ctx, env.target(), env.bob, "❤️")
	require.NoError(t, err)

	assert.Len(t, env.broker.On(domain.ConversationChannel(env.convID)), 1)
	assert.Len(t, env.broker.On(domain.UserChannel(env.alice)), 1)
	notes := env.store.Notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, env.alice, notes[0].RecipientID)
	assert.Equal(t, domain.EventReactionAdded, notes[0].Type)

	// Reacting to your own message notifies nobody
	env.broker.Reset()
	_, err = env.reactions.ToggleReaction(ctx, env.target(), env.alice, "❤️")
	require.NoError(t, err)
	assert.Empty(t, env.broker.On(domain.UserChannel(env.alice)))
	assert.Len(t, env.store.Notifications(), 1)
}

// MockCommentDirectory is a mock implementation of CommentDirectory
type MockCommentDirectory struct {
	mock.Mock
}

func (m *MockCommentDirectory) CommentVisible(ctx context.Context, commentID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, commentID, userID)
	return args.Bool(0), args.Error(1)
}

func TestToggleReaction_Comment(t *testing.T) {
	env := newTestEnv(t)
	commentID := uuid.New()
	target := domain.ReactionTarget{Type: domain.ReactionTargetComment, ID: commentID}

	dir := new(MockCommentDirectory)
	dir.On("CommentVisible", mock.Anything, commentID, env.bob).Return(true, nil)
	env.reactions.WithComments(dir)

	res, err := env.reactions.ToggleReaction(context.Background(), target, env.bob, "🔥")
	require.NoError(t, err)
	assert.Equal(t, ActionAdded, res.Action)

	published := env.broker.Published()
	require.Len(t, published, 1)
	assert.Equal(t, domain.CommentChannel(commentID), published[0].Channel)
	assert.Nil(t, published[0].Event.ConversationID)
	dir.AssertExpectations(t)
}

func TestToggleReaction_CommentAccess(t *testing.T) {
	ctx := context.Background()
	commentID := uuid.New()
	target := domain.ReactionTarget{Type: domain.ReactionTargetComment, ID: commentID}

	t.Run("no directory", func(t *testing.T) {
		env := newTestEnv(t)
		_, err := env.reactions.ToggleReaction(ctx, target, env.bob, "🔥")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeBadRequest), "got %v", err)
		assert.Empty(t, env.broker.Published())
	})

	t.Run("unknown or hidden comment", func(t *testing.T) {
		env := newTestEnv(t)
		dir := new(MockCommentDirectory)
		dir.On("CommentVisible", mock.Anything, commentID, env.mallory).Return(false, nil)
		env.reactions.WithComments(dir)

		_, err := env.reactions.ToggleReaction(ctx, target, env.mallory, "🔥")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound), "got %v", err)
		_, err = env.reactions.ListReactions(ctx, target, env.mallory)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound), "got %v", err)

		reactions, err := env.store.Reactions().ListByTarget(ctx, target)
		require.NoError(t, err)
		assert.Empty(t, reactions)
		assert.Empty(t, env.broker.Published())
	})

	t.Run("directory failure", func(t *testing.T) {
		env := newTestEnv(t)
		dir := new(MockCommentDirectory)
		dir.On("CommentVisible", mock.Anything, commentID, env.bob).Return(false, errors.New("comments unavailable"))
		env.reactions.WithComments(dir)

		_, err := env.reactions.ToggleReaction(ctx, target, env.bob, "🔥")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInternal), "got %v", err)
	})
}

func TestToggleReaction_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		target domain.ReactionTarget
		user   uuid.UUID
		emoji  string
		code   apperrors.ErrorCode
	}{
		{"non member", env.target(), env.mallory, "👍", apperrors.ErrCodeForbidden},
		{"non member with bad emoji", env.target(), env.mallory, "<b>", apperrors.ErrCodeForbidden},
		{"missing message", domain.ReactionTarget{Type: domain.ReactionTargetMessage, ID: uuid.New()}, env.bob, "👍", apperrors.ErrCodeNotFound},
		{"empty emoji", env.target(), env.bob, "  ", apperrors.ErrCodeMissingField},
		{"markup emoji", env.target(), env.bob, "<b>", apperrors.ErrCodeValidation},
		{"unknown target", domain.ReactionTarget{Type: "story", ID: uuid.New()}, env.bob, "👍", apperrors.ErrCodeValidation},
		{"nil target", domain.ReactionTarget{Type: domain.ReactionTargetMessage}, env.bob, "👍", apperrors.ErrCodeMissingField},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.reactions.ToggleReaction(ctx, tt.target, tt.user, tt.emoji)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
	assert.Empty(t, env.broker.Published())
}

func TestGroup(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	got := Group([]*domain.Reaction{
		{Emoji: "b", UserID: a},
		{Emoji: "a", UserID: a},
		{Emoji: "c", UserID: a},
		{Emoji: "c", UserID: b},
	})
	require.Len(t, got, 3)
	assert.Equal(t, "c", got[0].Emoji)
	assert.Equal(t, "a", got[1].Emoji)
	assert.Equal(t, "b", got[2].Emoji)
	assert.Empty(t, Group(nil))
}
