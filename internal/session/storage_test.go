package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/any-hub/trame/internal/config"
)

func newTestStorage(t *testing.T) (*RedisStorage, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	storage := NewRedisStorage(client, "test:sess:")
	t.Cleanup(func() { _ = storage.Close() })
	return storage, mr
}

func TestRedisStorageRoundTrip(t *testing.T) {
	storage, mr := newTestStorage(t)

	require.NoError(t, storage.Set("abc", []byte("payload"), time.Minute))
	assert.True(t, mr.Exists("test:sess:abc"))

	val, err := storage.Get("abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), val)

	require.NoError(t, storage.Delete("abc"))
	val, err = storage.Get("abc")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestRedisStorageExpiration(t *testing.T) {
	storage, mr := newTestStorage(t)
	require.NoError(t, storage.Set("ttl", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	val, err := storage.Get("ttl")
	require.NoError(t, err)
	assert.Nil(t, val)
}

func TestRedisStorageIgnoresEmpty(t *testing.T) {
	storage, mr := newTestStorage(t)
	require.NoError(t, storage.Set("", []byte("v"), 0))
	require.NoError(t, storage.Set("k", nil, 0))
	assert.Empty(t, mr.Keys())
}

func TestRedisStorageResetKeepsForeignKeys(t *testing.T) {
	storage, mr := newTestStorage(t)
	require.NoError(t, mr.Set("other:key", "keep"))
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, storage.Set(k, []byte(k), 0))
	}

	require.NoError(t, storage.Reset())
	assert.Equal(t, []string{"other:key"}, mr.Keys())
}

func TestNewStorage(t *testing.T) {
	ctx := context.Background()

	mem, err := NewStorage(ctx, config.SessionConfig{Store: "memory"})
	require.NoError(t, err)
	assert.Nil(t, mem)

	mr := miniredis.RunT(t)
	st, err := NewStorage(ctx, config.SessionConfig{Store: "redis", RedisURL: "redis://" + mr.Addr() + "/0", KeyPrefix: "x:"})
	require.NoError(t, err)
	require.NotNil(t, st)
	require.NoError(t, st.Set("id", []byte("1"), 0))
	assert.True(t, mr.Exists("x:id"))
	require.NoError(t, st.Close())

	_, err = NewStorage(ctx, config.SessionConfig{Store: "etcd"})
	assert.Error(t, err)
}
