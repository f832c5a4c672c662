package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const grantsVersionKey = "smeta:grants:version"

// GrantsCache keeps per-user effective grant sets in redis. Invalidation is
// wholesale: bumping a shared version key orphans every cached entry at once,
// so a grant mutation anywhere never serves a stale actor.
type GrantsCache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewGrantsCache builds the cache. ttl bounds staleness for entries that
// survive a missed invalidation.
func NewGrantsCache(client *redis.Client, ttl time.Duration) *GrantsCache {
	return &GrantsCache{client: client, ttl: ttl}
}

// Get returns the user's effective grants, loading through the supplied
// function on a miss. Concurrent misses for one user collapse into a single
// load.
func (c *GrantsCache) Get(ctx context.Context, userID int64, load func(context.Context) ([]EffectiveGrant, error)) ([]EffectiveGrant, error) {
	key, err := c.entryKey(ctx, userID)
	if err != nil {
		return nil, err
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var grants []EffectiveGrant
		if err := json.Unmarshal(raw, &grants); err == nil {
			return grants, nil
		}
		// Corrupt entry: fall through and reload.
	} else if !errors.Is(err, redis.Nil) {
		return nil, err
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		grants, err := load(ctx)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(grants)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
			return nil, err
		}
		return grants, nil
	})
	if err != nil {
		return nil, err
	}
	return value.([]EffectiveGrant), nil
}

// InvalidateAll orphans every cached grant set by bumping the version key.
func (c *GrantsCache) InvalidateAll(ctx context.Context) error {
	return c.client.Incr(ctx, grantsVersionKey).Err()
}

func (c *GrantsCache) entryKey(ctx context.Context, userID int64) (string, error) {
	version, err := c.client.Get(ctx, grantsVersionKey).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			return "", err
		}
		version = 0
	}
	return fmt.Sprintf("smeta:grants:v%d:user:%d", version, userID), nil
}
