//go:build integration

package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisAddr() string {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	return addr
}

func setupRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	store, err := NewRedisStore(RedisStoreConfig{Addr: getRedisAddr(), DB: 15})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	require.NoError(t, store.Flush(context.Background()))
	t.Cleanup(func() {
		store.Flush(context.Background())
		store.Close()
	})
	return store
}

func TestRedisStoreSaveLoad(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	s := New("client1", "10.0.0.1:5000", false, 60*time.Second)
	s.SetWill(&WillMessage{Topic: "last/will", Data: []byte("bye"), QoS: 1})
	require.NoError(t, store.Save(ctx, s))

	loaded, err := store.Load(ctx, "client1")
	require.NoError(t, err)
	assert.Equal(t, "client1", loaded.ClientID)
	require.NotNil(t, loaded.GetWill())
	assert.Equal(t, "last/will", loaded.GetWill().Topic)
}

func TestRedisStoreLoadMissing(t *testing.T) {
	store := setupRedisStore(t)
	_, err := store.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStoreDelete(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	store.Save(ctx, New("client1", "peer1", false, 60*time.Second))
	require.NoError(t, store.Delete(ctx, "client1"))

	_, err := store.Load(ctx, "client1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRedisStoreList(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	store.Save(ctx, New("client1", "peer1", false, 60*time.Second))
	store.Save(ctx, New("client2", "peer2", false, 60*time.Second))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"client1", "client2"}, ids)
}

func TestRedisStoreCount(t *testing.T) {
	store := setupRedisStore(t)
	ctx := context.Background()

	store.Save(ctx, New("client1", "peer1", false, 60*time.Second))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRedisStoreTTL(t *testing.T) {
	store, err := NewRedisStore(RedisStoreConfig{Addr: getRedisAddr(), DB: 15, TTL: 50 * time.Millisecond})
	if err != nil {
		t.Skipf("redis not available: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	store.Save(ctx, New("client1", "peer1", false, 60*time.Second))

	time.Sleep(200 * time.Millisecond)
	_, err = store.Load(ctx, "client1")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
