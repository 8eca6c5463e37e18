package cache_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bookstore-storefront/internal/cache"
)

type entry struct {
	Title string `json:"title"`
	Price int64  `json:"price"`
}

func newCache(t *testing.T) (*cache.JSON, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return cache.NewJSON(client, time.Minute), mr
}

func TestJSONRoundTripAndExpiry(t *testing.T) {
	c, mr := newCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", entry{Title: "Dune", Price: 1299}))
	var got entry
	ok, err := c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "Dune", got.Title)

	mr.FastForward(2 * time.Minute)
	ok, err = c.Get(ctx, "k", &got)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRememberLoadsOnce(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()
	calls := 0
	load := func(context.Context) (entry, error) {
		calls++
		return entry{Title: "Emma", Price: 899}, nil
	}

	for i := 0; i < 3; i++ {
		v, err := cache.Remember(ctx, c, "books:item:1", load)
		require.NoError(t, err)
		require.Equal(t, int64(899), v.Price)
	}
	require.Equal(t, 1, calls)

	require.NoError(t, c.Delete(ctx, "books:item:1"))
	_, err := cache.Remember(ctx, c, "books:item:1", load)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

func TestRememberPropagatesLoadError(t *testing.T) {
	c, _ := newCache(t)
	boom := errors.New("boom")
	_, err := cache.Remember(context.Background(), c, "x", func(context.Context) (entry, error) {
		return entry{}, boom
	})
	require.ErrorIs(t, err, boom)

	var nilCache *cache.JSON
	v, err := cache.Remember(context.Background(), nilCache, "x", func(context.Context) (entry, error) {
		return entry{Title: "ok"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", v.Title)
}

func TestKeysAreStable(t *testing.T) {
	require.Equal(t, "cart:c1", cache.KeyCart("c1"))
	require.Equal(t, cache.KeyBookList(1, 20, " Dune "), cache.KeyBookList(1, 20, "dune"))
	require.NotEqual(t, cache.KeyBookList(1, 20, "dune"), cache.KeyBookList(2, 20, "dune"))
}
