package users

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testCache(t *testing.T) *GrantsCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewGrantsCache(client, time.Minute)
}

func TestGrantsCacheLoadsOnceUntilInvalidated(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()
	loads := 0
	loader := func(context.Context) ([]EffectiveGrant, error) {
		loads++
		return []EffectiveGrant{{PermissionID: 1, Key: "users.view", Resource: "users", Action: "view"}}, nil
	}

	first, err := cache.Get(ctx, 7, loader)
	require.NoError(t, err)
	require.Len(t, first, 1)
	require.Equal(t, 1, loads)

	second, err := cache.Get(ctx, 7, loader)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, loads, "second read must be served from redis")

	require.NoError(t, cache.InvalidateAll(ctx))
	_, err = cache.Get(ctx, 7, loader)
	require.NoError(t, err)
	require.Equal(t, 2, loads, "invalidation must force a reload")
}

func TestGrantsCacheKeysArePerUser(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()

	a, err := cache.Get(ctx, 1, func(context.Context) ([]EffectiveGrant, error) {
		return []EffectiveGrant{{PermissionID: 1, Key: "users.view", Resource: "users", Action: "view"}}, nil
	})
	require.NoError(t, err)
	b, err := cache.Get(ctx, 2, func(context.Context) ([]EffectiveGrant, error) {
		return []EffectiveGrant{{PermissionID: 2, Key: "roles.view", Resource: "roles", Action: "view"}}, nil
	})
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestGrantsCacheCachesEmptySets(t *testing.T) {
	cache := testCache(t)
	ctx := context.Background()
	loads := 0
	loader := func(context.Context) ([]EffectiveGrant, error) {
		loads++
		return nil, nil
	}

	grants, err := cache.Get(ctx, 7, loader)
	require.NoError(t, err)
	require.Empty(t, grants)

	_, err = cache.Get(ctx, 7, loader)
	require.NoError(t, err)
	require.Equal(t, 1, loads, "an empty grant set is still a cacheable answer")
}
