package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"threadcast-backend/internal/domain"
	"threadcast-backend/internal/pubsub"
)

type MockNotificationRepository struct {
	mock.Mock
}

func (m *MockNotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

func TestDispatch_PublishesEveryTarget(t *testing.T) {
	broker := pubsub.NewMemoryBroker()
	notifs := new(MockNotificationRepository)
	d := NewDispatcher(broker, notifs, Options{})

	convID := uuid.New()
	sender := uuid.New()
	receiver := uuid.New()
	callID := uuid.New()

	notifs.On("Create", mock.Anything, mock.MatchedBy(func(n *domain.Notification) bool {
		return n.RecipientID == receiver &&
			n.SenderID == sender &&
			n.Type == domain.EventIncomingCall &&
			*n.ReferenceID == callID
	})).Return(nil).Once()

	d.Dispatch(context.Background(), Outcome{
		ConversationID: &convID,
		SenderID:       sender,
		ReferenceID:    &callID,
		Data:           map[string]string{"call_id": callID.String()},
		Targets: []Target{
			ToConversation(convID, domain.EventCallStarted),
			ToUser(receiver, domain.EventIncomingCall),
		},
	})

	published := broker.Published()
	require.Len(t, published, 2)
	assert.Equal(t, domain.ConversationChannel(convID), published[0].Channel)
	assert.Equal(t, domain.EventCallStarted, published[0].Event.Event)
	assert.Equal(t, domain.UserChannel(receiver), published[1].Channel)
	assert.Equal(t, domain.EventIncomingCall, published[1].Event.Event)
	assert.Equal(t, convID, *published[1].Event.ConversationID)
	assert.False(t, published[1].Event.Timestamp.IsZero())
	notifs.AssertExpectations(t)
}

func TestDispatch_TargetDataOverride(t *testing.T) {
	broker := pubsub.NewMemoryBroker()
	d := NewDispatcher(broker, nil, Options{})
	user := uuid.New()

	d.Dispatch(context.Background(), Outcome{
		Data: "shared",
		Targets: []Target{
			ToComment(uuid.New(), domain.EventReactionAdded),
			{Channel: domain.UserChannel(user), Event: domain.EventReactionAdded, Data: "personal"},
		},
	})

	published := broker.Published()
	require.Len(t, published, 2)
	assert.Equal(t, "shared", published[0].Event.Data)
	assert.Equal(t, "personal", published[1].Event.Data)
}

func TestDispatch_FailuresAreSwallowed(t *testing.T) {
	broker := pubsub.NewMemoryBroker()
	broker.FailWith(errors.New("broker down"))
	notifs := new(MockNotificationRepository)
	notifs.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	d := NewDispatcher(broker, notifs, Options{})
	assert.NotPanics(t, func() {
		d.Dispatch(context.Background(), Outcome{
			Targets: []Target{ToUser(uuid.New(), domain.EventNewMessage)},
		})
	})
	notifs.AssertNumberOfCalls(t, "Create", 1)
}

func TestDispatch_SilentAndEphemeralSkipNotifications(t *testing.T) {
	broker := pubsub.NewMemoryBroker()
	notifs := new(MockNotificationRepository)
	d := NewDispatcher(broker, notifs, Options{})

	typing := ToUser(uuid.New(), domain.EventTyping)
	d.Dispatch(context.Background(), Outcome{
		Targets: []Target{
			ToUserSilent(uuid.New(), domain.EventNewMessage),
			typing,
		},
	})

	assert.Len(t, broker.Published(), 2)
	notifs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestDispatch_AsyncOutlivesRequestContext(t *testing.T) {
	broker := pubsub.NewMemoryBroker()
	d := NewDispatcher(broker, nil, Options{Async: true, Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	convID := uuid.New()
	for i := 0; i < 5; i++ {
		d.Dispatch(ctx, Outcome{Targets: []Target{ToConversation(convID, domain.EventNewMessage)}})
	}
	d.Wait()

	assert.Len(t, broker.On(domain.ConversationChannel(convID)), 5)
}

func TestDispatch_NoTargets(t *testing.T) {
	broker := pubsub.NewMemoryBroker()
	d := NewDispatcher(broker, nil, Options{Async: true})
	d.Dispatch(context.Background(), Outcome{})
	d.Wait()
	assert.Empty(t, broker.Published())
}
