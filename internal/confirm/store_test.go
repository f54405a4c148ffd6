package confirm

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutTake(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	p, err := s.Put(ctx, Pending{Requester: "6281234567890", Action: "reboot", DeviceID: "ONT-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, p.CreatedAt.Add(time.Minute), p.ExpiresAt)

	got, err := s.Take(ctx, "6281234567890")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ONT-1", got.DeviceID)

	got, err = s.Take(ctx, "6281234567890")
	require.NoError(t, err)
	assert.Nil(t, got, "take consumes")
}

func TestMemoryStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(time.Minute)

	_, _ = s.Put(ctx, Pending{Requester: "a", DeviceID: "ONT-1"})
	_, _ = s.Put(ctx, Pending{Requester: "a", DeviceID: "ONT-2"})
	assert.Equal(t, 1, s.Len())

	got, _ := s.Take(ctx, "a")
	require.NotNil(t, got)
	assert.Equal(t, "ONT-2", got.DeviceID)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 17, 10, 0, 0, 0, time.UTC)
	s := NewMemoryStore(time.Minute)
	s.now = func() time.Time { return now }

	_, _ = s.Put(ctx, Pending{Requester: "a"})
	_, _ = s.Put(ctx, Pending{Requester: "b"})
	now = now.Add(2 * time.Minute)

	got, err := s.Take(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err := s.Cancel(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Zero(t, s.Len())
}

func TestMemoryStore_Cancel(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(0)

	_, _ = s.Put(ctx, Pending{Requester: "a"})
	ok, err := s.Cancel(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	got, _ := s.Take(ctx, "a")
	assert.Nil(t, got)
}

// needs a real Redis; skipped when none is listening
func setupTestRedis(t *testing.T) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379", DB: 15})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping test")
		return nil
	}
	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(ctx)
		client.Close()
	})
	return client
}

func TestRedisStore_PutTakeCancel(t *testing.T) {
	client := setupTestRedis(t)
	if client == nil {
		return
	}
	ctx := context.Background()
	s := NewRedisStore(client, time.Minute)

	_, err := s.Put(ctx, Pending{Requester: "a", Action: "reboot", DeviceID: "ONT-1"})
	require.NoError(t, err)

	ttl := client.TTL(ctx, keyPendingPrefix+"a").Val()
	assert.True(t, ttl > 0 && ttl <= time.Minute)

	got, err := s.Take(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "reboot", got.Action)

	got, err = s.Take(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, _ = s.Put(ctx, Pending{Requester: "b"})
	ok, err := s.Cancel(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
