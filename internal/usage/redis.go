package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/diagramflow/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const keyPrefix = "diagramflow:usage:"

// RedisLimiter 在 Redis 中计数，多个实例共享同一额度。
// 每个 (日期, 客户端) 一个键，INCR 与 EXPIRE 在同一事务管道中执行。
type RedisLimiter struct {
	client *redis.Client
	limit  int
	now    func() time.Time
	logger *zap.Logger
}

// NewRedisLimiter 连接 Redis 并创建限额器。
func NewRedisLimiter(cfg config.RedisConfig, limit int, logger *zap.Logger) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("usage: failed to connect to redis: %w", err)
	}

	logger.Info("usage limiter initialized",
		zap.String("backend", "redis"),
		zap.String("addr", cfg.Addr),
		zap.Int("daily_limit", limit))

	return &RedisLimiter{
		client: client,
		limit:  limit,
		now:    time.Now,
		logger: logger.With(zap.String("component", "usage")),
	}, nil
}

// Allow 实现 Limiter。超出额度的请求同样计数，剩余次数不会变为负数。
func (l *RedisLimiter) Allow(ctx context.Context, key string) (int, error) {
	now := l.now().UTC()
	k := keyPrefix + day(now) + ":" + key
	// 当日结束后再保留一小时
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
	ttl := midnight.Sub(now) + time.Hour

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Error("usage increment failed", zap.String("key", k), zap.Error(err))
		return 0, fmt.Errorf("usage: increment: %w", err)
	}

	count := int(incr.Val())
	if count > l.limit {
		return 0, ErrLimitExceeded
	}
	return l.limit - count, nil
}

// Close 关闭 Redis 连接。
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// Ping 检查 Redis 连接，供就绪检查使用。
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
