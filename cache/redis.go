package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"

	"go-storefront/models"
)

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func (r *RedisCache) Get(ctx context.Context, cartID string) (*models.Cart, error) {
	data, err := r.client.HGet(ctx, cacheKey(cartID), "data").Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cart models.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return &cart, nil
}

// setIfNewer writes the cart hash unless the cached version is newer.
var setIfNewer = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'v')
if cur and tonumber(cur) > tonumber(ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[1], 'v', ARGV[1], 'data', ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[3])
return 1
`)

// Set stores the cart with a jittered TTL so entries written together do not expire together.
// A cart older than the cached one, by UpdatedAt, is dropped.
func (r *RedisCache) Set(ctx context.Context, cart *models.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}

	ttl := r.baseTTL + time.Duration(rand.Intn(5))*time.Minute
	keys := []string{cacheKey(cart.ID)}
	if err := setIfNewer.Run(ctx, r.client, keys, cart.UpdatedAt.UnixMilli(), data, ttl.Milliseconds()).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, cartID string) error {
	if err := r.client.Del(ctx, cacheKey(cartID)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(cartID string) string {
	return fmt.Sprintf("cart:%s", cartID)
}
