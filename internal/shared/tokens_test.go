package shared_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custshop/custshop/internal/shared"
	_ "github.com/custshop/custshop/testing"
)

func newTokenStore(t *testing.T) (*shared.TokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return shared.NewTokenStore(client, "test"), mr
}

func TestTokenStoreRegisterAndRevoke(t *testing.T) {
	store, mr := newTokenStore(t)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, "jti-1", 42, time.Hour))
	active, err := store.Active(ctx, "jti-1", 42)
	require.NoError(t, err)
	assert.True(t, active)

	active, err = store.Active(ctx, "jti-1", 43)
	require.NoError(t, err)
	assert.False(t, active, "token bound to another user")

	require.NoError(t, store.Revoke(ctx, "jti-1", 42))
	active, err = store.Active(ctx, "jti-1", 42)
	require.NoError(t, err)
	assert.False(t, active)

	require.NoError(t, store.Register(ctx, "jti-2", 42, time.Minute))
	mr.FastForward(2 * time.Minute)
	active, err = store.Active(ctx, "jti-2", 42)
	require.NoError(t, err)
	assert.False(t, active, "token expired")

	assert.Error(t, store.Register(ctx, "", 1, time.Minute))
}

func TestTokenStoreRevokeAll(t *testing.T) {
	store, _ := newTokenStore(t)
	ctx := context.Background()

	require.NoError(t, store.Register(ctx, "a", 1, time.Hour))
	require.NoError(t, store.Register(ctx, "b", 1, time.Hour))
	require.NoError(t, store.Register(ctx, "c", 2, time.Hour))

	require.NoError(t, store.RevokeAll(ctx, 1))
	for _, id := range []string{"a", "b"} {
		active, err := store.Active(ctx, id, 1)
		require.NoError(t, err)
		assert.False(t, active, id)
	}
	active, err := store.Active(ctx, "c", 2)
	require.NoError(t, err)
	assert.True(t, active)

	require.NoError(t, store.RevokeAll(ctx, 99), "no tokens is fine")
}

func TestTokenStoreResetTokensAreSingleUse(t *testing.T) {
	store, mr := newTokenStore(t)
	ctx := context.Background()

	token, err := store.IssueResetToken(ctx, 5, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := store.ConsumeResetToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, int64(5), userID)

	_, err = store.ConsumeResetToken(ctx, token)
	assert.ErrorIs(t, err, shared.ErrResetTokenInvalid)

	expiring, err := store.IssueResetToken(ctx, 6, time.Minute)
	require.NoError(t, err)
	mr.FastForward(time.Hour)
	_, err = store.ConsumeResetToken(ctx, expiring)
	assert.ErrorIs(t, err, shared.ErrResetTokenInvalid)

	_, err = store.ConsumeResetToken(ctx, "")
	assert.ErrorIs(t, err, shared.ErrResetTokenInvalid)
}
