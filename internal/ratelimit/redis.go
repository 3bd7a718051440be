package ratelimit

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"leadintake/backend/internal/config"
)

// allowScript 与 MemoryLimiter 相同的语义：计数已满时拒绝且不续期，
// 否则计数加一并把过期时间重置为一个完整窗口
var allowScript = goredis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current and tonumber(current) >= tonumber(ARGV[1]) then
	return 0
end
redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return 1
`)

// RedisLimiter 基于 Redis 的限流器，适用于多实例部署
type RedisLimiter struct {
	client goredis.Scripter
	prefix string
	max    int
	window time.Duration
}

// NewRedisLimiter 创建 Redis 限流器
func NewRedisLimiter(client goredis.Scripter, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		prefix: "leads:ratelimit:",
		max:    max,
		window: window,
	}
}

// Allow 检查并记录一次提交
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	allowed, err := allowScript.Run(ctx, l.client, []string{l.prefix + key}, l.max, l.window.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return allowed == 1, nil
}

// NewRedisClient 创建并测试 Redis 连接
func NewRedisClient(cfg config.RedisConfig) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return rdb, nil
}
