package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/redis/go-redis/v9"

	"github.com/brojonat/nemnotify/service/nem"
)

// DefaultMosaicTTL is how long a holdings list is cached when no TTL is configured.
const DefaultMosaicTTL = 10 * time.Minute

// MosaicCache stores an address's full mosaic holdings with a TTL.
// Get reports found=false on a miss; a cached empty list is found=true.
type MosaicCache interface {
	Get(ctx context.Context, key string) ([]nem.Mosaic, bool, error)
	Set(ctx context.Context, key string, mosaics []nem.Mosaic, ttl time.Duration) error
}

// MosaicCacheKey returns the cache key for an address's holdings.
func MosaicCacheKey(address string) string {
	return "mosaics:" + nem.NormalizeAddress(address)
}

// MemoryCache is an in-process MosaicCache.
type MemoryCache struct {
	cache *ttlcache.Cache[string, []nem.Mosaic]
}

// NewMemoryCache creates an in-process cache and starts its expiry loop.
// Call Stop when done.
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultMosaicTTL
	}
	cache := ttlcache.New[string, []nem.Mosaic](
		ttlcache.WithTTL[string, []nem.Mosaic](ttl),
		ttlcache.WithDisableTouchOnHit[string, []nem.Mosaic](),
	)
	go cache.Start()
	return &MemoryCache{cache: cache}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]nem.Mosaic, bool, error) {
	item := c.cache.Get(key)
	if item == nil {
		return nil, false, nil
	}
	return item.Value(), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, mosaics []nem.Mosaic, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.DefaultTTL
	}
	if mosaics == nil {
		mosaics = []nem.Mosaic{}
	}
	c.cache.Set(key, mosaics, ttl)
	return nil
}

// Stop halts the expiry loop.
func (c *MemoryCache) Stop() {
	c.cache.Stop()
}

// RedisCache is a MosaicCache shared between processes.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// NewRedisCacheFromURL parses a redis:// URL and connects.
func NewRedisCacheFromURL(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisCache{client: client}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]nem.Mosaic, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var mosaics []nem.Mosaic
	if err := json.Unmarshal(val, &mosaics); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached mosaics: %w", err)
	}
	if mosaics == nil {
		mosaics = []nem.Mosaic{}
	}
	return mosaics, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, mosaics []nem.Mosaic, ttl time.Duration) error {
	if mosaics == nil {
		mosaics = []nem.Mosaic{}
	}
	val, err := json.Marshal(mosaics)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, val, ttl).Err()
}

// Close closes the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
