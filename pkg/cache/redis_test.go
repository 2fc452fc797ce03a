package cache

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/schoolhouse/pkg/observability"
	"github.com/platinummonkey/schoolhouse/pkg/storage"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestRedis_RoundTrip(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	c := NewRedis(client, time.Minute, "test", nil, nil)

	_, ok := c.Get(ctx, "u1")
	assert.False(t, ok)

	require.True(t, c.Fill(ctx, sampleIdentity("u1"), c.Generation(ctx)))
	assert.True(t, mr.Exists("test:identity:u1"))
	assert.Equal(t, time.Minute, mr.TTL("test:identity:u1"))

	got, ok := c.Get(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, sampleIdentity("u1"), got)

	c.Invalidate(ctx, "u1")
	assert.False(t, mr.Exists("test:identity:u1"))
	assert.Equal(t, uint64(1), c.Generation(ctx))
}

func TestRedis_InstancesShareInvalidations(t *testing.T) {
	mr, _ := setupRedis(t)
	ctx := context.Background()
	a := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute, "test", nil, nil)
	b := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute, "test", nil, nil)

	require.True(t, b.Fill(ctx, sampleIdentity("u1"), b.Generation(ctx)))
	a.Invalidate(ctx, "u1")

	_, ok := b.Get(ctx, "u1")
	assert.False(t, ok)
}

func TestRedis_FillAfterInvalidateIsDropped(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	c := NewRedis(client, time.Minute, "test", nil, nil)

	generation := c.Generation(ctx)
	c.Invalidate(ctx, "u1")

	assert.False(t, c.Fill(ctx, sampleIdentity("u1"), generation))
	assert.False(t, mr.Exists("test:identity:u1"))
}

func TestRedis_FillWithoutTTL(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	c := NewRedis(client, 0, "test", nil, nil)

	require.True(t, c.Fill(ctx, sampleIdentity("u1"), c.Generation(ctx)))
	assert.True(t, mr.Exists("test:identity:u1"))
	assert.Equal(t, time.Duration(0), mr.TTL("test:identity:u1"))
}

func TestRedis_Expiry(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	c := NewRedis(client, time.Minute, "", nil, nil)

	require.True(t, c.Fill(ctx, sampleIdentity("u1"), c.Generation(ctx)))
	mr.FastForward(2 * time.Minute)

	_, ok := c.Get(ctx, "u1")
	assert.False(t, ok)
}

func TestRedis_CorruptEntryIsDropped(t *testing.T) {
	mr, client := setupRedis(t)
	ctx := context.Background()
	c := NewRedis(client, time.Minute, "test", nil, nil)

	require.NoError(t, mr.Set("test:identity:bad", "{not json"))
	_, ok := c.Get(ctx, "bad")
	assert.False(t, ok)
	assert.False(t, mr.Exists("test:identity:bad"))
}

func TestRedis_FailuresAreMisses(t *testing.T) {
	mr, client := setupRedis(t)
	var buf bytes.Buffer
	c := NewRedis(client, time.Minute, "test", observability.NewLogger(observability.InfoLevel, &buf), nil)
	mr.Close()

	ctx := context.Background()
	generation := c.Generation(ctx)
	assert.False(t, c.Fill(ctx, sampleIdentity("u1"), generation))
	_, ok := c.Get(ctx, "u1")
	assert.False(t, ok)
	c.Invalidate(ctx, "u1")
	assert.Contains(t, buf.String(), "redis")
}

func TestNewRedisClient(t *testing.T) {
	mr, _ := setupRedis(t)

	cfg := storage.DefaultConfig()
	cfg.RedisURL = "redis://" + mr.Addr()
	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()
	assert.NoError(t, client.Ping(context.Background()).Err())

	cfg.RedisURL = "not a url"
	_, err = NewRedisClient(context.Background(), cfg)
	assert.Error(t, err)
}
