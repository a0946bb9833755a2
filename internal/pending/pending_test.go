package pending

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisTracker(t *testing.T) (*RedisTracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisTracker(client, ""), mr
}

func trackers(t *testing.T) map[string]Tracker {
	redisTracker, _ := newRedisTracker(t)
	return map[string]Tracker{
		"memory": NewMemoryTracker(),
		"redis":  redisTracker,
	}
}

func TestTracker_RecordAndTake(t *testing.T) {
	for name, tracker := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, tracker.Record(ctx, 7, 10))
			require.NoError(t, tracker.Record(ctx, 7, 10))
			require.NoError(t, tracker.Record(ctx, 8, 11))

			n, err := tracker.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			pageID, ok, err := tracker.Take(ctx, 7)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, int64(10), pageID)

			_, ok, err = tracker.Take(ctx, 7)
			require.NoError(t, err)
			assert.False(t, ok)

			n, err = tracker.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestTracker_RecordOverwrites(t *testing.T) {
	for name, tracker := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, tracker.Record(ctx, 5, 10))
			require.NoError(t, tracker.Record(ctx, 5, 20))

			pageID, ok, err := tracker.Take(ctx, 5)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, int64(20), pageID)
		})
	}
}

func TestTracker_PeekKeepsEntry(t *testing.T) {
	for name, tracker := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, ok, err := tracker.Peek(ctx, 4)
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, tracker.Record(ctx, 4, 12))
			for range 2 {
				pageID, ok, err := tracker.Peek(ctx, 4)
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, int64(12), pageID)
			}

			n, err := tracker.Len(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, n)
		})
	}
}

func TestTracker_TakeMissing(t *testing.T) {
	for name, tracker := range trackers(t) {
		t.Run(name, func(t *testing.T) {
			pageID, ok, err := tracker.Take(context.Background(), 99)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Zero(t, pageID)
		})
	}
}

func TestMemoryTracker_Concurrent(t *testing.T) {
	tracker := NewMemoryTracker()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_ = tracker.Record(ctx, id, id*10)
		}(int64(i))
	}
	wg.Wait()

	for i := range 50 {
		pageID, ok, err := tracker.Take(ctx, int64(i))
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, int64(i*10), pageID)
	}
	n, _ := tracker.Len(ctx)
	assert.Zero(t, n)
}

func TestRedisTracker_UsesConfiguredKey(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	tracker := NewRedisTracker(client, "custom:pending")

	require.NoError(t, tracker.Record(context.Background(), 3, 42))
	assert.Equal(t, "42", mr.HGet("custom:pending", "3"))
}

func TestRedisTracker_Errors(t *testing.T) {
	tracker, mr := newRedisTracker(t)
	mr.Close()
	ctx := context.Background()

	assert.Error(t, tracker.Record(ctx, 1, 2))
	_, ok, err := tracker.Take(ctx, 1)
	assert.Error(t, err)
	assert.False(t, ok)
	_, ok, err = tracker.Peek(ctx, 1)
	assert.Error(t, err)
	assert.False(t, ok)
	_, err = tracker.Len(ctx)
	assert.Error(t, err)
}

func TestDialRedis(t *testing.T) {
	_, err := DialRedis(RedisOptions{})
	assert.ErrorIs(t, err, ErrEmptyAddress)

	mr := miniredis.RunT(t)
	tracker, err := DialRedis(RedisOptions{Addr: mr.Addr(), Key: "k"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = tracker.Close() })
	require.NoError(t, tracker.Record(context.Background(), 1, 2))
	assert.Equal(t, "2", mr.HGet("k", "1"))
}
