package httpclient

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// RedisCache is a ResponseCache shared through Redis, so that several
// service instances reuse each other's cached responses.
//
// Usage:
//
//	rdb := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{"localhost:6379"}})
//	client := httpclient.New(
//	    httpclient.WithResponseCache(httpclient.NewRedisCache(rdb)),
//	)
type RedisCache struct {
	client redis.UniversalClient

	// Prefix namespaces the keys. Default: "httpclient:cache:".
	Prefix string

	// Retention is how long Redis keeps an entry. Zero keeps entries until
	// they are evicted.
	Retention time.Duration
}

var _ ResponseCache = (*RedisCache)(nil)

// NewRedisCache creates a RedisCache on client.
func NewRedisCache(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client, Prefix: "httpclient:cache:"}
}

// Get implements ResponseCache.
func (r *RedisCache) Get(ctx context.Context, key string) (*CachedResponse, error) {
	data, err := r.client.Get(ctx, r.Prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry CachedResponse
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Set implements ResponseCache.
func (r *RedisCache) Set(ctx context.Context, key string, resp *CachedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.Prefix+key, data, r.Retention).Err()
}

// Delete implements ResponseCache.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.Prefix+key).Err()
}
