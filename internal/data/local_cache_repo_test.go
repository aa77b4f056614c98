package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }

func TestLocalCacheRepo_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCacheRepo(LocalCacheConfig{Capacity: 4})

	got, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	deleted, err := c.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = c.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, deleted)

	assert.NoError(t, c.Health(ctx))
}

func TestLocalCacheRepo_TTL(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLocalCacheRepo(LocalCacheConfig{Now: clock.Now})

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	clock.t = clock.t.Add(59 * time.Second)
	got, _ := c.Get(ctx, "k")
	assert.NotNil(t, got)

	clock.t = clock.t.Add(2 * time.Second)
	got, _ = c.Get(ctx, "k")
	assert.Nil(t, got)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestLocalCacheRepo_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCacheRepo(LocalCacheConfig{Capacity: 2})

	require.NoError(t, c.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, c.Set(ctx, "b", []byte("2"), 0))
	_, _ = c.Get(ctx, "a") // a is now most recent
	require.NoError(t, c.Set(ctx, "c", []byte("3"), 0))

	got, _ := c.Get(ctx, "b")
	assert.Nil(t, got)
	got, _ = c.Get(ctx, "a")
	assert.Equal(t, []byte("1"), got)

	stats := c.Stats()
	assert.Equal(t, uint64(1), stats.Evictions)
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 2, stats.Capacity)
}

func TestLocalCacheRepo_CopiesValues(t *testing.T) {
	ctx := context.Background()
	c := NewLocalCacheRepo(LocalCacheConfig{})

	buf := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", buf, 0))
	buf[0] = 'z'

	got, _ := c.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), got)
}

func TestLocalCacheRepo_PurgeExpired(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLocalCacheRepo(LocalCacheConfig{Now: clock.Now})

	require.NoError(t, c.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, c.Set(ctx, "long", []byte("2"), time.Hour))
	require.NoError(t, c.Set(ctx, "forever", []byte("3"), 0))

	clock.t = clock.t.Add(time.Minute)
	n, err := c.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, c.Stats().Size)

	n, err = c.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
