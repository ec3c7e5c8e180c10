package usage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/diagramflow/config"
	"go.uber.org/zap"
)

// ErrLimitExceeded 表示当日用量已用完。
var ErrLimitExceeded = errors.New("usage: daily limit exceeded")

// Unlimited 是不限制时 Allow 返回的剩余次数。
const Unlimited = -1

// Limiter 按客户端统计每日（UTC）用量。
type Limiter interface {
	// Allow 记一次用量并返回当日剩余次数；超出时返回 ErrLimitExceeded。
	// 被拒绝的请求同样计入当日用量。
	Allow(ctx context.Context, key string) (remaining int, err error)
	Close() error
}

// New 按配置创建限额器。DailyLimit 为 0 时返回不计数的限额器。
func New(cfg config.UsageConfig, redisCfg config.RedisConfig, logger *zap.Logger) (Limiter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DailyLimit <= 0 {
		return disabled{}, nil
	}
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryLimiter(cfg.DailyLimit), nil
	case "redis":
		return NewRedisLimiter(redisCfg, cfg.DailyLimit, logger)
	default:
		return nil, fmt.Errorf("usage: unknown backend %q", cfg.Backend)
	}
}

type disabled struct{}

func (disabled) Allow(context.Context, string) (int, error) { return Unlimited, nil }
func (disabled) Close() error                               { return nil }

func day(t time.Time) string { return t.UTC().Format("20060102") }

// =============================================================================
// MemoryLimiter
// =============================================================================

// MemoryLimiter 是单进程内的限额器，跨日时丢弃前一天的计数。
type MemoryLimiter struct {
	limit int
	now   func() time.Time

	mu     sync.Mutex
	day    string
	counts map[string]int
}

// NewMemoryLimiter 创建内存限额器。
func NewMemoryLimiter(limit int) *MemoryLimiter {
	return &MemoryLimiter{limit: limit, now: time.Now, counts: make(map[string]int)}
}

// Allow 实现 Limiter。
func (m *MemoryLimiter) Allow(_ context.Context, key string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if d := day(m.now()); d != m.day {
		m.day = d
		clear(m.counts)
	}
	m.counts[key]++
	if m.counts[key] > m.limit {
		return 0, ErrLimitExceeded
	}
	return m.limit - m.counts[key], nil
}

// Close 实现 Limiter。
func (m *MemoryLimiter) Close() error { return nil }
