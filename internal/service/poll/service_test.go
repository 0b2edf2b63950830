package poll

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"threadcast-backend/internal/domain"
	"threadcast-backend/internal/pubsub"
	"threadcast-backend/internal/repository/memory"
	"threadcast-backend/internal/service/chat"
	"threadcast-backend/internal/service/conversation"
	"threadcast-backend/internal/service/dispatch"
	apperrors "threadcast-backend/pkg/errors"
)

// MockPollRepository is a mock implementation of PollRepository
type MockPollRepository struct {
	mock.Mock
}

func (m *MockPollRepository) Create(ctx context.Context, poll *domain.Poll, options []*domain.PollOption) error {
	args := m.Called(ctx, poll, options)
	return args.Error(0)
}

func (m *MockPollRepository) GetByID(ctx context.Context, pollID uuid.UUID) (*domain.Poll, error) {
	args := m.Called(ctx, pollID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Poll), args.Error(1)
}

func (m *MockPollRepository) ListByConversation(ctx context.Context, conversationID uuid.UUID, limit int) ([]*domain.Poll, error) {
	args := m.Called(ctx, conversationID, limit)
	return args.Get(0).([]*domain.Poll), args.Error(1)
}

func (m *MockPollRepository) GetOptions(ctx context.Context, pollID uuid.UUID) ([]*domain.PollOption, error) {
	args := m.Called(ctx, pollID)
	return args.Get(0).([]*domain.PollOption), args.Error(1)
}

func (m *MockPollRepository) GetVotes(ctx context.Context, pollID uuid.UUID) ([]*domain.PollVote, error) {
	args := m.Called(ctx, pollID)
	return args.Get(0).([]*domain.PollVote), args.Error(1)
}

func (m *MockPollRepository) GetUserVotes(ctx context.Context, pollID, userID uuid.UUID) ([]*domain.PollVote, error) {
	args := m.Called(ctx, pollID, userID)
	return args.Get(0).([]*domain.PollVote), args.Error(1)
}

func (m *MockPollRepository) AddVote(ctx context.Context, vote *domain.PollVote, singleChoice bool) error {
	args := m.Called(ctx, vote, singleChoice)
	return args.Error(0)
}

func (m *MockPollRepository) RemoveVote(ctx context.Context, pollID, voteID uuid.UUID) error {
	args := m.Called(ctx, pollID, voteID)
	return args.Error(0)
}

func (m *MockPollRepository) ChangeVote(ctx context.Context, pollID, voteID, optionID uuid.UUID, at time.Time) error {
	args := m.Called(ctx, pollID, voteID, optionID, at)
	return args.Error(0)
}

func (m *MockPollRepository) Close(ctx context.Context, pollID uuid.UUID, at time.Time) (bool, error) {
	args := m.Called(ctx, pollID, at)
	return args.Bool(0), args.Error(1)
}

// MockLedger is a mock implementation of Ledger
type MockLedger struct {
	mock.Mock
}

func (m *MockLedger) RequireMember(ctx context.Context, conversationID, userID uuid.UUID) (*domain.ConversationParticipant, error) {
	args := m.Called(ctx, conversationID, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ConversationParticipant), args.Error(1)
}

type testEnv struct {
	store  *memory.Store
	broker *pubsub.MemoryBroker
	ledger *conversation.Service
	polls  *Service

	convID                     uuid.UUID
	alice, bob, carol, mallory uuid.UUID
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	broker := pubsub.NewMemoryBroker()
	ledger := conversation.NewService(store.Conversations(), store.Messages())
	dispatcher := dispatch.NewDispatcher(broker, store.NotificationRepo(), dispatch.Options{})
	messages := chat.NewService(store.Messages(), store.Users(), ledger, dispatcher, nil)

	env := &testEnv{
		store:   store,
		broker:  broker,
		ledger:  ledger,
		polls:   NewService(store.Polls(), ledger, messages, dispatcher),
		alice:   uuid.New(),
		bob:     uuid.New(),
		carol:   uuid.New(),
		mallory: uuid.New(),
	}

	conv, err := ledger.CreateConversation(context.Background(), &conversation.CreateConversationInput{
		Type:           domain.ConversationTypeGroup,
		CreatedBy:      env.alice,
		ParticipantIDs: []uuid.UUID{env.bob, env.carol},
	})
	require.NoError(t, err)
	env.convID = conv.ConversationID
	return env
}

func (e *testEnv) create(t *testing.T, creator uuid.UUID, allowMultiple, anonymous bool, options ...string) *domain.PollDetails {
	t.Helper()
	p, err := e.polls.CreatePoll(context.Background(), &CreatePollInput{
		ConversationID: e.convID,
		CreatorID:      creator,
		Question:       "Which colour?",
		Options:        options,
		AllowMultiple:  allowMultiple,
		IsAnonymous:    anonymous,
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) vote(t *testing.T, p *domain.PollDetails, option int, user uuid.UUID) *VoteResult {
	t.Helper()
	res, err := e.polls.Vote(context.Background(), &VoteInput{
		PollID:   p.PollID,
		OptionID: p.Results.Options[option].OptionID,
		UserID:   user,
	})
	require.NoError(t, err)
	return res
}

func TestCreatePoll(t *testing.T) {
	env := newTestEnv(t)

	p := env.create(t, env.bob, false, false, "Red", "Blue")

	assert.Equal(t, domain.PollStatusActive, p.Status)
	require.Len(t, p.Results.Options, 2)
	assert.Equal(t, "Red", p.Results.Options[0].Text)
	assert.Equal(t, "Blue", p.Results.Options[1].Text)

	msgs, err := env.store.Messages().ListByConversation(context.Background(), env.convID, nil, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.MessageTypePoll, msgs[0].MessageType)
	assert.Equal(t, p.PollID, *msgs[0].PollID)
	assert.Equal(t, msgs[0].MessageID, p.MessageID)

	events := env.broker.Named(domain.EventNewPoll)
	require.Len(t, events, 1)
	assert.Equal(t, domain.ConversationChannel(env.convID), events[0].Channel)
}

func TestCreatePoll_Validation(t *testing.T) {
	env := newTestEnv(t)
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	later := future.Add(time.Hour)

	tests := []struct {
		name  string
		input CreatePollInput
		code  apperrors.ErrorCode
	}{
		{"one option", CreatePollInput{Question: "Q", Options: []string{"only"}}, apperrors.ErrCodeBadRequest},
		{"eleven options", CreatePollInput{Question: "Q", Options: []string{"1", "2", "3", "4", "5", "6", "7", "8", "9", "10", "11"}}, apperrors.ErrCodeBadRequest},
		{"blank option", CreatePollInput{Question: "Q", Options: []string{"a", "  "}}, apperrors.ErrCodeValidation},
		{"duplicate options", CreatePollInput{Question: "Q", Options: []string{"Yes", "yes"}}, apperrors.ErrCodeBadRequest},
		{"missing question", CreatePollInput{Question: " ", Options: []string{"a", "b"}}, apperrors.ErrCodeMissingField},
		{"expired", CreatePollInput{Question: "Q", Options: []string{"a", "b"}, ExpiresAt: &past}, apperrors.ErrCodeBadRequest},
		{"starts after expiry", CreatePollInput{Question: "Q", Options: []string{"a", "b"}, StartsAt: &later, ExpiresAt: &future}, apperrors.ErrCodeBadRequest},
		{"non member", CreatePollInput{Question: "Q", Options: []string{"a", "b"}, CreatorID: env.mallory}, apperrors.ErrCodeForbidden},
		{"non member with bad input", CreatePollInput{Question: " ", Options: []string{"only"}, CreatorID: env.mallory}, apperrors.ErrCodeForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := tt.input
			input.ConversationID = env.convID
			if input.CreatorID == uuid.Nil {
				input.CreatorID = env.alice
			}
			_, err := env.polls.CreatePoll(context.Background(), &input)
			assert.True(t, apperrors.HasCode(err, tt.code), "got %v", err)
		})
	}
	assert.Empty(t, env.broker.Named(domain.EventNewPoll))
}

func TestVote_SingleChoiceScenario(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, env.alice, false, false, "Red", "Blue")

	res := env.vote(t, p, 0, env.bob)
	assert.Equal(t, domain.VoteAdded, res.Action)
	assert.Equal(t, 1, res.Results.TotalVotes)
	assert.Equal(t, 1, res.Results.Options[0].VoteCount)
	assert.Equal(t, 100.0, res.Results.Options[0].Percentage)
	assert.True(t, res.Results.Options[0].UserVoted)

	res = env.vote(t, p, 1, env.bob)
	assert.Equal(t, domain.VoteChanged, res.Action)
	assert.Equal(t, 1, res.Results.TotalVotes)
	assert.Equal(t, 0.0, res.Results.Options[0].Percentage)
	assert.Equal(t, 100.0, res.Results.Options[1].Percentage)
	assert.False(t, res.Results.Options[0].UserVoted)

	res = env.vote(t, p, 1, env.bob)
	assert.Equal(t, domain.VoteRemoved, res.Action)
	assert.Equal(t, 0, res.Results.TotalVotes)
	assert.Equal(t, 0.0, res.Results.Options[1].Percentage)

	events := env.broker.Named(domain.EventPollVoteUpdated)
	require.Len(t, events, 3)
	data, ok := events[2].Event.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, domain.VoteRemoved, data["action"])
	assert.Equal(t, env.bob, data["user_id"])
}

func TestVote_SingleChoiceToggleIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, env.alice, false, false, "Red", "Blue")

	env.vote(t, p, 0, env.carol)
	env.vote(t, p, 0, env.carol)

	results, err := env.polls.Results(context.Background(), p.PollID, env.carol)
	require.NoError(t, err)
	assert.Equal(t, 0, results.TotalVotes)
	for _, o := range results.Options {
		assert.False(t, o.UserVoted)
	}
}

func TestVote_ConcurrentSingleChoiceKeepsOneVote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.create(t, env.alice, false, false, "Red", "Blue")

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(option int) {
			defer wg.Done()
			_, err := env.polls.Vote(ctx, &VoteInput{
				PollID:   p.PollID,
				OptionID: p.Results.Options[option].OptionID,
				UserID:   env.bob,
			})
			// Losing both attempts of a race is reported, never persisted twice
			if err != nil {
				assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeBadRequest), "got %v", err)
			}
		}(i % 2)
	}
	wg.Wait()

	mine, err := env.store.Polls().GetUserVotes(ctx, p.PollID, env.bob)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(mine), 1)

	results, err := env.polls.Results(ctx, p.PollID, env.bob)
	require.NoError(t, err)
	assert.Equal(t, len(mine), results.TotalVotes)
}

func TestVote_MultipleChoiceToggles(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, env.alice, true, false, "Mon", "Tue", "Wed")

	assert.Equal(t, domain.VoteAdded, env.vote(t, p, 0, env.bob).Action)
	assert.Equal(t, domain.VoteAdded, env.vote(t, p, 2, env.bob).Action)
	assert.Equal(t, domain.VoteAdded, env.vote(t, p, 2, env.carol).Action)

	res := env.vote(t, p, 0, env.bob)
	assert.Equal(t, domain.VoteRemoved, res.Action)
	assert.Equal(t, 2, res.Results.TotalVotes)
	assert.Equal(t, 2, res.Results.Options[2].VoteCount)
	assert.Equal(t, 100.0, res.Results.Options[2].Percentage)
	assert.ElementsMatch(t, []uuid.UUID{env.bob, env.carol}, res.Results.Options[2].Voters)
}

func TestVote_AnonymousHidesVoters(t *testing.T) {
	env := newTestEnv(t)
	p := env.create(t, env.alice, false, true, "Yes", "No")

	res := env.vote(t, p, 0, env.bob)
	assert.True(t, res.Results.Options[0].UserVoted)
	assert.Nil(t, res.Results.Options[0].Voters)

	events := env.broker.Named(domain.EventPollVoteUpdated)
	require.Len(t, events, 1)
	data := events[0].Event.Data.(map[string]any)
	assert.NotContains(t, data, "user_id")
}

func TestVote_Rejections(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.create(t, env.alice, false, false, "Red", "Blue")

	_, err := env.polls.Vote(ctx, &VoteInput{PollID: p.PollID, OptionID: p.Results.Options[0].OptionID, UserID: env.mallory})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))

	_, err = env.polls.Vote(ctx, &VoteInput{PollID: p.PollID, OptionID: uuid.New(), UserID: env.bob})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeBadRequest))

	_, err = env.polls.Vote(ctx, &VoteInput{PollID: uuid.New(), OptionID: uuid.New(), UserID: env.bob})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
}

func TestVote_ExpiredPollRejected(t *testing.T) {
	env := newTestEnv(t)
	expires := time.Now().UTC().Add(time.Minute)
	p, err := env.polls.CreatePoll(context.Background(), &CreatePollInput{
		ConversationID: env.convID,
		CreatorID:      env.alice,
		Question:       "Lunch?",
		Options:        []string{"Yes", "No"},
		ExpiresAt:      &expires,
	})
	require.NoError(t, err)

	env.polls.now = func() time.Time { return expires.Add(time.Second) }

	_, err = env.polls.Vote(context.Background(), &VoteInput{PollID: p.PollID, OptionID: p.Results.Options[0].OptionID, UserID: env.bob})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeBadRequest))

	got, err := env.polls.GetPoll(context.Background(), p.PollID, env.bob)
	require.NoError(t, err)
	assert.Equal(t, domain.PollStatusEnded, got.Status)
	assert.Equal(t, domain.PollStatusEnded, got.Results.Status)
}

func TestVote_ScheduledPollRejected(t *testing.T) {
	env := newTestEnv(t)
	starts := time.Now().UTC().Add(time.Hour)
	p, err := env.polls.CreatePoll(context.Background(), &CreatePollInput{
		ConversationID: env.convID,
		CreatorID:      env.alice,
		Question:       "Tomorrow?",
		Options:        []string{"Yes", "No"},
		StartsAt:       &starts,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PollStatusScheduled, p.Status)

	_, err = env.polls.Vote(context.Background(), &VoteInput{PollID: p.PollID, OptionID: p.Results.Options[0].OptionID, UserID: env.bob})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeBadRequest))
}

func TestClosePoll(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.create(t, env.bob, false, false, "Red", "Blue")

	_, err := env.polls.ClosePoll(ctx, p.PollID, env.carol)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))

	// alice created the group and is its admin
	closed, err := env.polls.ClosePoll(ctx, p.PollID, env.alice)
	require.NoError(t, err)
	assert.Equal(t, domain.PollStatusEnded, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	assert.Len(t, env.broker.Named(domain.EventPollClosed), 1)

	_, err = env.polls.ClosePoll(ctx, p.PollID, env.bob)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeBadRequest))

	_, err = env.polls.Vote(ctx, &VoteInput{PollID: p.PollID, OptionID: p.Results.Options[0].OptionID, UserID: env.bob})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeBadRequest))
}

func TestListPolls(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, env.alice, false, false, "a", "b")
	env.create(t, env.bob, true, false, "c", "d")

	polls, err := env.polls.ListPolls(context.Background(), env.convID, env.carol, 0)
	require.NoError(t, err)
	assert.Len(t, polls, 2)

	_, err = env.polls.ListPolls(context.Background(), env.convID, env.mallory, 0)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeForbidden))
}

func TestVote_ReevaluatesAfterDuplicate(t *testing.T) {
	repo := new(MockPollRepository)
	ledger := new(MockLedger)
	broker := pubsub.NewMemoryBroker()
	svc := NewService(repo, ledger, nil, dispatch.NewDispatcher(broker, nil, dispatch.Options{}))

	userID := uuid.New()
	poll := &domain.Poll{PollID: uuid.New(), ConversationID: uuid.New(), Status: domain.PollStatusActive}
	red := &domain.PollOption{OptionID: uuid.New(), PollID: poll.PollID, Text: "Red", Position: 0}
	blue := &domain.PollOption{OptionID: uuid.New(), PollID: poll.PollID, Text: "Blue", Position: 1}
	racing := &domain.PollVote{VoteID: uuid.New(), PollID: poll.PollID, OptionID: red.OptionID, UserID: userID}

	repo.On("GetByID", mock.Anything, poll.PollID).Return(poll, nil)
	ledger.On("RequireMember", mock.Anything, poll.ConversationID, userID).Return(&domain.ConversationParticipant{UserID: userID}, nil)
	repo.On("GetOptions", mock.Anything, poll.PollID).Return([]*domain.PollOption{red, blue}, nil)
	repo.On("GetUserVotes", mock.Anything, poll.PollID, userID).Return([]*domain.PollVote{}, nil).Once()
	repo.On("AddVote", mock.Anything, mock.Anything, true).Return(domain.ErrDuplicate).Once()
	repo.On("GetUserVotes", mock.Anything, poll.PollID, userID).Return([]*domain.PollVote{racing}, nil).Once()
	repo.On("ChangeVote", mock.Anything, poll.PollID, racing.VoteID, blue.OptionID, mock.Anything).Return(nil).Once()
	repo.On("GetVotes", mock.Anything, poll.PollID).Return([]*domain.PollVote{
		{VoteID: racing.VoteID, PollID: poll.PollID, OptionID: blue.OptionID, UserID: userID},
	}, nil)

	res, err := svc.Vote(context.Background(), &VoteInput{PollID: poll.PollID, OptionID: blue.OptionID, UserID: userID})
	require.NoError(t, err)
	assert.Equal(t, domain.VoteChanged, res.Action)
	assert.Equal(t, 1, res.Results.Options[1].VoteCount)
	repo.AssertExpectations(t)
}
