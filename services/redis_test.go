package services

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/session"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisService) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisService(client, time.Hour)
}

func TestRedisProgressCache(t *testing.T) {
	ctx := context.Background()
	mr, svc := newTestRedis(t)
	cache := NewRedisProgressCache(svc.GetClient(), "dev-1", "alice", time.Hour)

	key := model.ProgressKey("alice", "go-101", "intro")
	_, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	watched := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	require.NoError(t, cache.Set(ctx, key, model.ProgressRecord{
		UserID:      "alice",
		CourseID:    "go-101",
		ItemID:      "intro",
		CurrentTime: 33.5,
		Duration:    120,
		LastWatched: watched,
	}))

	rec, ok, err := cache.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 33.5, rec.CurrentTime)
	assert.True(t, rec.LastWatched.Equal(watched))
	assert.True(t, mr.Exists("progress-cache:dev-1:alice:"+key))
	assert.Greater(t, mr.TTL("progress-cache:dev-1:alice:"+key), time.Duration(0))

	other := model.ProgressKey("alice", "go-101", "notes")
	require.NoError(t, cache.Set(ctx, other, model.ProgressRecord{ItemID: "notes"}))
	require.NoError(t, cache.Delete(ctx, other))
	_, ok, err = cache.Get(ctx, other)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Clear(ctx))
	assert.Empty(t, mr.Keys())
}

func TestRedisProgressCacheIgnoresMalformedEntry(t *testing.T) {
	mr, svc := newTestRedis(t)
	cache := NewRedisProgressCache(svc.GetClient(), "dev-1", "alice", time.Hour)

	require.NoError(t, mr.Set("progress-cache:dev-1:alice:k", "{not json"))

	rec, ok, err := cache.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestRedisProgressCacheIsPerSession(t *testing.T) {
	ctx := context.Background()
	_, svc := newTestRedis(t)
	factory := svc.CacheFactory()

	alice := factory("dev-1", "alice")
	bob := factory("dev-1", "bob")

	require.NoError(t, alice.Set(ctx, "k", model.ProgressRecord{UserID: "alice"}))
	_, ok, err := bob.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, bob.Clear(ctx))
	_, ok, err = alice.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "clearing one session leaves others alone")
}

func TestRedisCacheFactoryFallsBackToMemory(t *testing.T) {
	svc := NewRedisService(nil, time.Hour)
	assert.False(t, svc.Available())

	cache := svc.CacheFactory()("dev-1", "alice")
	_, isMemory := cache.(*session.MemoryCache)
	assert.True(t, isMemory)
}

func TestRedisIncrementWindow(t *testing.T) {
	ctx := context.Background()
	mr, svc := newTestRedis(t)

	count, remaining, err := svc.IncrementWindow(ctx, "rl", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, time.Minute, remaining)

	mr.FastForward(20 * time.Second)
	count, remaining, err = svc.IncrementWindow(ctx, "rl", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
	assert.InDelta(t, float64(40*time.Second), float64(remaining), float64(time.Second))

	mr.FastForward(41 * time.Second)
	count, _, err = svc.IncrementWindow(ctx, "rl", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count, "a new window starts after expiry")

	_, _, err = NewRedisService(nil, 0).IncrementWindow(ctx, "rl", time.Minute)
	assert.ErrorIs(t, err, errRedisUnavailable)
}
