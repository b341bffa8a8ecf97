package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type page struct {
	IDs []uint `json:"ids"`
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := Connect(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestCacheAside(t *testing.T) {
	ctx := context.Background()
	mr, rdb := setupRedis(t)

	calls := 0
	fetch := func(dest *page) func() error {
		return func() error {
			calls++
			dest.IDs = []uint{3, 1, 2}
			return nil
		}
	}

	var first page
	require.NoError(t, CacheAside(ctx, rdb, TrendingKey(20, 0), &first, TrendingTTL, fetch(&first)))
	assert.Equal(t, []uint{3, 1, 2}, first.IDs)
	assert.True(t, mr.Exists("trending:20:0"))

	var second page
	require.NoError(t, CacheAside(ctx, rdb, TrendingKey(20, 0), &second, TrendingTTL, fetch(&second)))
	assert.Equal(t, first, second)
	assert.Equal(t, 1, calls)

	mr.FastForward(TrendingTTL + time.Second)
	var third page
	require.NoError(t, CacheAside(ctx, rdb, TrendingKey(20, 0), &third, TrendingTTL, fetch(&third)))
	assert.Equal(t, 2, calls)
}

func TestCacheAside_FetchErrorNotCached(t *testing.T) {
	ctx := context.Background()
	mr, rdb := setupRedis(t)

	var dest page
	err := CacheAside(ctx, rdb, PostKey(1), &dest, PostTTL, func() error { return errors.New("db down") })
	assert.EqualError(t, err, "db down")
	assert.False(t, mr.Exists(PostKey(1)))
}

func TestHelpers_NilClient(t *testing.T) {
	ctx := context.Background()
	var dest page

	found, err := GetJSON(ctx, nil, "k", &dest)
	assert.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, SetJSON(ctx, nil, "k", dest, time.Second))

	called := false
	require.NoError(t, CacheAside(ctx, nil, "k", &dest, time.Second, func() error { called = true; return nil }))
	assert.True(t, called)
	Invalidate(ctx, nil, "k")
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	mr, rdb := setupRedis(t)
	require.NoError(t, SetJSON(ctx, rdb, PostKey(5), page{IDs: []uint{5}}, PostTTL))
	Invalidate(ctx, rdb, PostKey(5))
	assert.False(t, mr.Exists(PostKey(5)))
}

func TestOptions(t *testing.T) {
	opts, err := Options("redis://:secret@cache:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)

	opts, err = Options("localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opts.Addr)

	_, err = Options("redis://[bad")
	assert.Error(t, err)
}
