package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "rbac:version"
	bumpChannel     = "rbac.bump"

	// Permission changes must be visible within a minute, so the TTL is
	// capped regardless of configuration.
	maxCacheTTL = 60 * time.Second
)

// Cache holds role permission sets in Redis behind a global version. A
// bump on any role mutation shifts every key, so stale entries are never
// read again and simply expire.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching;
// every fetch then goes straight to the loader.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 || ttl > maxCacheTTL {
		ttl = maxCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, cacheVersionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

func (c *Cache) roleKey(ctx context.Context, roleID int64) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("rbac:role:%d:%d", roleID, ver), nil
}

// FetchPermissions loads a role's permission names from cache or, on a
// miss, through the loader. Cache failures fall through to the loader so
// a Redis outage degrades to uncached reads instead of denials.
func (c *Cache) FetchPermissions(ctx context.Context, roleID int64, loader func(context.Context) ([]string, error)) ([]string, error) {
	if loader == nil {
		return nil, errors.New("rbac: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.roleKey(ctx, roleID)
	if err != nil {
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var names []string
		if err := json.Unmarshal(payload, &names); err == nil {
			return names, nil
		}
	}

	names, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(names); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return names, nil
}

// Bump invalidates every cached set by incrementing the version and
// publishing the change.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}
