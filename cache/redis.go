package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"deadstock/config"
)

const DashboardPrefix = "dashboard:"

// RedisCache is a JSON response cache. A nil *RedisCache is a valid, disabled cache.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
}

var Default *RedisCache

// Init connects to REDIS_ADDR. An empty address leaves the cache disabled.
func Init(ctx context.Context) error {
	if config.RedisAddr == "" {
		log.Println("REDIS_ADDR not set, dashboard cache disabled")
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("redis ping %s: %w", config.RedisAddr, err)
	}

	Default = &RedisCache{Client: client, TTL: config.DashboardCacheTTL}
	log.Printf("Connected to Redis at %s", config.RedisAddr)
	return nil
}

func (c *RedisCache) Enabled() bool { return c != nil && c.Client != nil }

// Get decodes the cached value into dest and reports whether it was a hit.
func (c *RedisCache) Get(ctx context.Context, key string, dest interface{}) bool {
	if !c.Enabled() {
		return false
	}
	val, err := c.Client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("cache get %s: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(val, dest); err != nil {
		log.Printf("cache decode %s: %v", key, err)
		return false
	}
	return true
}

func (c *RedisCache) Set(ctx context.Context, key string, value interface{}) {
	if !c.Enabled() {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		log.Printf("cache encode %s: %v", key, err)
		return
	}
	if err := c.Client.Set(ctx, key, data, c.TTL).Err(); err != nil {
		log.Printf("cache set %s: %v", key, err)
	}
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) {
	if !c.Enabled() || len(keys) == 0 {
		return
	}
	if err := c.Client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("cache delete %d keys: %v", len(keys), err)
	}
}

// InvalidatePrefix deletes every key starting with prefix, scanning in batches.
func (c *RedisCache) InvalidatePrefix(ctx context.Context, prefix string) {
	if !c.Enabled() {
		return
	}
	iter := c.Client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		log.Printf("cache scan %s*: %v", prefix, err)
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.Client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("cache delete %d keys: %v", len(keys), err)
	}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	if !c.Enabled() {
		return nil
	}
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	if !c.Enabled() {
		return nil
	}
	return c.Client.Close()
}

func DashboardKey(role, userID string) string {
	return DashboardPrefix + role + ":" + userID
}
