package cached

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
)

type MockUserSource struct {
	mock.Mock
}

func (m *MockUserSource) GetSummaries(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.UserSummary, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]*domain.UserSummary), args.Error(1)
}

func TestUserRepository_CachesKnownUsers(t *testing.T) {
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	source := new(MockUserSource)
	source.On("GetSummaries", ctx, []uuid.UUID{alice, bob}).
		Return(map[uuid.UUID]*domain.UserSummary{alice: {UserID: alice, Username: "alice"}}, nil).Once()
	source.On("GetSummaries", ctx, []uuid.UUID{bob}).
		Return(map[uuid.UUID]*domain.UserSummary{}, nil).Once()

	repo := NewUserRepository(source, time.Minute, 100)

	first, err := repo.GetSummaries(ctx, []uuid.UUID{alice, bob})
	require.NoError(t, err)
	assert.Equal(t, "alice", first[alice].Username)
	assert.NotContains(t, first, bob)

	// alice comes from the cache, bob is asked for again
	second, err := repo.GetSummaries(ctx, []uuid.UUID{alice, bob, alice})
	require.NoError(t, err)
	assert.Equal(t, "alice", second[alice].Username)

	source.AssertExpectations(t)
}

func TestUserRepository_SourceError(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()

	source := new(MockUserSource)
	source.On("GetSummaries", ctx, []uuid.UUID{id}).Return(nil, errors.New("db down"))

	repo := NewUserRepository(source, time.Minute, 100)
	_, err := repo.GetSummaries(ctx, []uuid.UUID{id})
	assert.EqualError(t, err, "db down")
}
