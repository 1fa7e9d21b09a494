package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/queuex-cloud/queuex/platform/go/tenant"
)

func testDefaults() tenant.Defaults {
	return tenant.Defaults{Host: "localhost", Port: 5432, User: "postgres", Password: "postgres"}
}

func TestConnCacheGetOrCreateReturnsSameHandle(t *testing.T) {
	t.Parallel()

	cache := NewConnCache(testDefaults(), nil)
	t.Cleanup(cache.EvictAll)

	ctx := context.Background()

	first, err := cache.GetOrCreate(ctx, "acme")
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := cache.GetOrCreate(ctx, "acme")
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Equal(t, 1, cache.Len())
}

func TestConnCacheGetMiss(t *testing.T) {
	t.Parallel()

	cache := NewConnCache(testDefaults(), nil)
	t.Cleanup(cache.EvictAll)

	_, ok := cache.Get("ghost")
	require.False(t, ok)
}

func TestConnCacheEvictYieldsFreshHandle(t *testing.T) {
	t.Parallel()

	cache := NewConnCache(testDefaults(), nil)
	t.Cleanup(cache.EvictAll)

	ctx := context.Background()

	first, err := cache.GetOrCreate(ctx, "acme")
	require.NoError(t, err)

	cache.Evict("acme")
	require.Equal(t, 0, cache.Len())

	second, err := cache.GetOrCreate(ctx, "acme")
	require.NoError(t, err)
	require.NotSame(t, first, second)
}

func TestConnCacheEvictAll(t *testing.T) {
	t.Parallel()

	cache := NewConnCache(testDefaults(), nil)

	ctx := context.Background()
	for _, key := range []string{"acme", "clinic-1", tenant.BranchKey("acme", "downtown")} {
		_, err := cache.GetOrCreate(ctx, key)
		require.NoError(t, err)
	}
	require.Equal(t, 3, cache.Len())

	cache.EvictAll()
	require.Equal(t, 0, cache.Len())
}

func TestUnavailableError(t *testing.T) {
	t.Parallel()

	require.NoError(t, UnavailableError(nil))

	err := UnavailableError(context.DeadlineExceeded)
	require.ErrorIs(t, err, tenant.ErrDatabaseUnavailable)
}
