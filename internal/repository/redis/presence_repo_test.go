package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPresence(t *testing.T) (*miniredis.Miniredis, *PresenceRepository) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewPresenceRepository(client)
}

func TestPresence_OnlineOffline(t *testing.T) {
	_, repo := newPresence(t)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	require.NoError(t, repo.SetUserOnline(ctx, alice))

	online, err := repo.OnlineAmong(ctx, []uuid.UUID{alice, bob})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{alice}, online)

	count, err := repo.GetOnlineCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, repo.SetUserOffline(ctx, alice))
	online, err = repo.OnlineAmong(ctx, []uuid.UUID{alice, bob})
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestPresence_ExpiresWithoutHeartbeat(t *testing.T) {
	mr, repo := newPresence(t)
	ctx := context.Background()
	alice := uuid.New()

	require.NoError(t, repo.SetUserOnline(ctx, alice))
	mr.FastForward(PresenceTTL - time.Second)
	require.NoError(t, repo.RefreshPresence(ctx, alice))
	mr.FastForward(PresenceTTL - time.Second)

	online, err := repo.OnlineAmong(ctx, []uuid.UUID{alice})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{alice}, online)

	mr.FastForward(2 * time.Second)
	online, err = repo.OnlineAmong(ctx, []uuid.UUID{alice})
	require.NoError(t, err)
	assert.Empty(t, online)
}

func TestPresence_EmptyInput(t *testing.T) {
	_, repo := newPresence(t)
	online, err := repo.OnlineAmong(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, online)
}
