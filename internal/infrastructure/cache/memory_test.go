package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dealpop/dashboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_SetAndGet(t *testing.T) {
	cache := NewMemoryCache(0)
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "vendors", []byte(`["Amazon"]`), time.Minute))

	got, err := cache.Get(ctx, "vendors")
	require.NoError(t, err)
	assert.Equal(t, `["Amazon"]`, string(got))

	// returned bytes are a copy
	got[0] = 'X'
	again, _ := cache.Get(ctx, "vendors")
	assert.Equal(t, `["Amazon"]`, string(again))

	_, err = cache.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)
}

func TestMemoryCache_Expiration(t *testing.T) {
	cache := NewMemoryCache(0)
	defer cache.Close()
	ctx := context.Background()

	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Minute))
	ok, _ := cache.Exists(ctx, "k")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = cache.Exists(ctx, "k")
	assert.False(t, ok)
	_, err := cache.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrCacheMiss)

	assert.Equal(t, 1, cache.Size())
	cache.removeExpired()
	assert.Equal(t, 0, cache.Size())
}

func TestMemoryCache_DeleteAndClear(t *testing.T) {
	cache := NewMemoryCache(0)
	defer cache.Close()
	ctx := context.Background()

	_ = cache.Set(ctx, "a", []byte("1"), time.Minute)
	_ = cache.Set(ctx, "b", []byte("2"), time.Minute)

	require.NoError(t, cache.Delete(ctx, "a"))
	ok, _ := cache.Exists(ctx, "a")
	assert.False(t, ok)

	cache.Clear()
	assert.Equal(t, 0, cache.Size())
}

func TestMemoryCache_JSONHelpers(t *testing.T) {
	cache := NewMemoryCache(0)
	defer cache.Close()
	ctx := context.Background()

	require.NoError(t, SetJSON(ctx, cache, "suggestions:mac", []string{"MacBook Pro", "Mac mini"}, time.Minute))

	var got []string
	require.NoError(t, GetJSON(ctx, cache, "suggestions:mac", &got))
	assert.Equal(t, []string{"MacBook Pro", "Mac mini"}, got)

	assert.ErrorIs(t, GetJSON(ctx, cache, "nope", &got), domain.ErrCacheMiss)
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	cache := NewMemoryCache(time.Millisecond)
	defer cache.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i))
			_ = cache.Set(ctx, key, []byte(key), time.Minute)
			_, _ = cache.Get(ctx, key)
			_, _ = cache.Exists(ctx, key)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, cache.Size())
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	cache := NewMemoryCache(time.Millisecond)
	cache.Close()
	cache.Close()
}
