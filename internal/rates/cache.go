package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const cacheVersionKey = "rates:version"

// Cache wraps Redis based caching of current rates with versioning controls.
// Mutation paths (activation, deactivation, expiry sweep) call Bump so
// readers never serve a rate that has been superseded.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
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

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	if c == nil || c.client == nil {
		return strings.Join(parts, ":"), nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	joined := strings.Join(parts, ":")
	return fmt.Sprintf("%s:%d", joined, ver), nil
}

// FetchCurrent loads the cached current rate for the pair or populates it
// using the loader. Concurrent misses for the same pair collapse into one
// loader call. A loader miss (no active rate) is never cached.
func (c *Cache) FetchCurrent(ctx context.Context, metal MetalType, purity string, loader func(context.Context) (Rate, error)) (Rate, error) {
	if loader == nil {
		return Rate{}, errors.New("rates: cache loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.BuildKey(ctx, "rates", "current", string(metal), purity)
	if err != nil {
		return Rate{}, err
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var rate Rate
		if err := json.Unmarshal(payload, &rate); err == nil {
			return rate, nil
		}
	} else if err != redis.Nil {
		return Rate{}, err
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		rate, err := loader(ctx)
		if err != nil {
			return Rate{}, err
		}
		raw, err := json.Marshal(rate)
		if err != nil {
			return Rate{}, err
		}
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return Rate{}, err
		}
		return rate, nil
	})
	if err != nil {
		return Rate{}, err
	}
	return v.(Rate), nil
}

// Bump invalidates every cached rate by advancing the version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
