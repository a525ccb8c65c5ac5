package lark

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runixer/rara/internal/config"
)

func newRedisStore(t *testing.T) (*RedisTokenStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := NewRedisTokenStore(config.TokenCacheConfig{RedisAddr: mr.Addr()}, "cli_test")
	t.Cleanup(func() { _ = store.Close() })
	return store, mr
}

func TestRedisTokenStore_RoundTrip(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()
	require.NoError(t, store.Ping(ctx))

	_, ok, err := store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	issued := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	token := AccessToken{Value: "t-shared", IssuedAt: issued, ExpiresIn: 2 * time.Hour}
	require.NoError(t, store.Save(ctx, token, 2*time.Hour-10*time.Second))

	got, ok, err := store.Load(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "t-shared", got.Value)
	assert.True(t, got.IssuedAt.Equal(issued))
	assert.Equal(t, 2*time.Hour, got.ExpiresIn)

	key := "rara:lark:tenant_access_token:cli_test"
	assert.Equal(t, 2*time.Hour-10*time.Second, mr.TTL(key))

	mr.FastForward(2 * time.Hour)
	_, ok, err = store.Load(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisTokenStore_NonPositiveTTLIsNotStored(t *testing.T) {
	store, mr := newRedisStore(t)

	require.NoError(t, store.Save(context.Background(), AccessToken{Value: "t"}, 0))
	assert.False(t, mr.Exists("rara:lark:tenant_access_token:cli_test"))
}

func TestRedisTokenStore_CorruptValue(t *testing.T) {
	store, mr := newRedisStore(t)
	require.NoError(t, mr.Set("rara:lark:tenant_access_token:cli_test", "{not json"))

	_, ok, err := store.Load(context.Background())
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestToken_SharedRedisAcrossProviders(t *testing.T) {
	var calls atomic.Int32
	server := tokenServer(t, 7200, &calls)
	defer server.Close()

	mr := miniredis.RunT(t)
	cfg := testLarkConfig(server.URL)
	cfg.TokenCache.RedisAddr = mr.Addr()

	newProvider := func() *TokenProvider {
		store := NewRedisTokenStore(cfg.TokenCache, cfg.AppID)
		t.Cleanup(func() { _ = store.Close() })
		p, err := NewTokenProvider(testLogger(), cfg, store)
		require.NoError(t, err)
		return p
	}

	first, err := newProvider().Token(context.Background())
	require.NoError(t, err)
	second, err := newProvider().Token(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Value, second.Value)
	assert.Equal(t, int32(1), calls.Load())
}
