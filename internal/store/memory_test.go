package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadsift/threadsift/internal/store"
)

func TestMemoryGetSetRemove(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := store.NewMemory()

	_, ok, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", []byte("v1")))
	v, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v1"), v)

	require.NoError(t, m.Set(ctx, "k", []byte("v2")))
	v, _, _ = m.Get(ctx, "k")
	assert.Equal(t, []byte("v2"), v)

	require.NoError(t, m.Remove(ctx, "k", "missing"))
	_, ok, err = m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryCopiesValues(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := store.NewMemory()

	in := []byte("original")
	require.NoError(t, m.Set(ctx, "k", in))
	in[0] = 'X'

	out, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("original"), out, "stored value is isolated from the caller's slice")

	out[0] = 'Y'
	again, _, _ := m.Get(ctx, "k")
	assert.Equal(t, []byte("original"), again)
}

func TestMemoryClosedErrors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	m := store.NewMemory()
	require.NoError(t, m.Close())

	_, _, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, store.ErrClosed)
	assert.ErrorIs(t, m.Set(ctx, "k", nil), store.ErrClosed)
	assert.ErrorIs(t, m.Remove(ctx, "k"), store.ErrClosed)
}

func TestMemoryHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := store.NewMemory()
	_, _, err := m.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, m.Set(ctx, "k", nil), context.Canceled)
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()

	_, err := store.Open(context.Background(), store.Config{Driver: "etcd"})
	assert.ErrorIs(t, err, store.ErrUnknownDriver)
}

func TestOpenMemory(t *testing.T) {
	t.Parallel()

	kv, err := store.Open(context.Background(), store.Config{Driver: "memory"})
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	require.NoError(t, kv.Set(context.Background(), "k", []byte("v")))
	v, ok, err := kv.Get(context.Background(), "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("v"), v)
}
