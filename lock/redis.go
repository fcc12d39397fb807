package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jing2uo/spt2db/config"
)

const keyPrefix = "spt2db:split:"

// 只删除自己持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Addr},
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// RedisClaimer 多机部署时先拿 Redis 锁, 再做元数据库的占用
type RedisClaimer struct {
	client redis.UniversalClient
	inner  Claimer
	ttl    time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisClaimer(client redis.UniversalClient, inner Claimer, ttl time.Duration) *RedisClaimer {
	return &RedisClaimer{
		client: client,
		inner:  inner,
		ttl:    ttl,
		tokens: make(map[string]string),
	}
}

func (c *RedisClaimer) Claim(ctx context.Context, path string) (bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, keyPrefix+path, token, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", path, err)
	}
	if !ok {
		return false, nil
	}

	claimed, err := c.inner.Claim(ctx, path)
	if err != nil || !claimed {
		_ = releaseScript.Run(ctx, c.client, []string{keyPrefix + path}, token).Err()
		return false, err
	}

	c.mu.Lock()
	c.tokens[path] = token
	c.mu.Unlock()
	return true, nil
}

func (c *RedisClaimer) Release(ctx context.Context, path string) error {
	err := c.inner.Release(ctx, path)

	c.mu.Lock()
	token, ok := c.tokens[path]
	delete(c.tokens, path)
	c.mu.Unlock()

	if ok {
		if rerr := releaseScript.Run(ctx, c.client, []string{keyPrefix + path}, token).Err(); rerr != nil && err == nil {
			err = fmt.Errorf("redis release %s: %w", path, rerr)
		}
	}
	return err
}
