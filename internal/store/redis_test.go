package store_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadsift/threadsift/internal/store"
)

func newRedisKV(t *testing.T) *store.Redis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	kv := store.NewRedisFromClient(client)
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestRedisGetSetRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := newRedisKV(t)

	_, ok, err := kv.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok, "redis nil reply maps to absent, not error")

	require.NoError(t, kv.Set(ctx, "tasks:snapshot", []byte(`{"tasks":[]}`)))
	v, ok, err := kv.Get(ctx, "tasks:snapshot")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{"tasks":[]}`), v)

	require.NoError(t, kv.Remove(ctx, "tasks:snapshot"))
	_, ok, err = kv.Get(ctx, "tasks:snapshot")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisRemoveNoKeys(t *testing.T) {
	t.Parallel()

	kv := newRedisKV(t)
	require.NoError(t, kv.Remove(context.Background()), "empty key list is a no-op")
}

func TestRedisOverwrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	kv := newRedisKV(t)

	require.NoError(t, kv.Set(ctx, "k", []byte("first")))
	require.NoError(t, kv.Set(ctx, "k", []byte("second")))

	v, ok, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("second"), v)
}

func TestNewRedisUnreachable(t *testing.T) {
	t.Parallel()

	_, err := store.NewRedis(context.Background(), store.RedisConfig{Addr: "127.0.0.1:1"})
	assert.ErrorIs(t, err, store.ErrUnavailable)
}
