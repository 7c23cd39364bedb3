package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studytimer/internal/event"
	"studytimer/internal/storage"
)

// Needs a live server: STUDYTIMER_TEST_REDIS_URL=redis://localhost:6379/15
func setupTestRedis(t *testing.T) *RedisStore {
	t.Helper()
	url := os.Getenv("STUDYTIMER_TEST_REDIS_URL")
	if url == "" {
		t.Skip("STUDYTIMER_TEST_REDIS_URL not set")
	}
	prefix := "studytimer-test:" + t.Name() + ":"
	store := NewRedisStore(url, prefix)
	require.NoError(t, store.Init(context.Background()))
	t.Cleanup(func() {
		ctx := context.Background()
		keys, _ := store.client.Keys(ctx, prefix+"*").Result()
		if len(keys) > 0 {
			store.client.Del(ctx, keys...)
		}
		store.Close()
	})
	return store
}

func TestRedisKeyValue(t *testing.T) {
	store := setupTestRedis(t)
	ctx := context.Background()

	_, ok, err := store.Get(ctx, storage.KeyTimerRemaining)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Set(ctx, storage.KeyTimerRemaining, "300"))
	v, ok, err := store.Get(ctx, storage.KeyTimerRemaining)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "300", v)

	require.NoError(t, store.Remove(ctx, storage.KeyTimerRemaining))
	_, ok, err = store.Get(ctx, storage.KeyTimerRemaining)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisEvents(t *testing.T) {
	store := setupTestRedis(t)
	ctx := context.Background()
	now := time.Now().Truncate(time.Millisecond)

	_, err := store.SaveEvent(ctx, event.Event{Timestamp: now, Type: event.EventTypePomodoro, Tag: "work"})
	require.NoError(t, err)
	_, err = store.SaveEvent(ctx, event.Event{Timestamp: now.Add(time.Second), Type: event.EventTypeTimerComplete})
	require.NoError(t, err)

	got, err := store.GetEvents(ctx, now.Add(-time.Minute), now.Add(time.Minute), event.EventTypePomodoro)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "work", got[0].Tag)
}
