package ratelimit

import (
	"context"
	"sync"
	"time"
)

// UnknownClient 无法识别客户端地址时使用的限流键
const UnknownClient = "unknown"

// 无法识别客户端地址时的策略
const (
	PolicyShared = "shared" // 所有未知客户端共用一个计数桶
	PolicyExempt = "exempt" // 未知客户端不参与限流
)

// Limiter 按客户端键判断是否允许本次提交
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Entry 单个客户端的窗口状态
type Entry struct {
	WindowStart time.Time
	Count       int
}

// MemoryLimiter 进程内固定窗口限流器
//
// 只适用于单实例部署；多实例时使用 RedisLimiter。
type MemoryLimiter struct {
	mu      sync.Mutex
	entries map[string]*Entry
	max     int
	window  time.Duration
	now     func() time.Time
}

// NewMemoryLimiter 创建内存限流器
//
// 参数:
//   - max: 窗口内最多允许的次数
//   - window: 窗口长度
func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		entries: make(map[string]*Entry),
		max:     max,
		window:  window,
		now:     time.Now,
	}
}

// Allow 检查并记录一次提交
//
// 窗口已过期或首次出现时重置为 (now, 1)；计数已满时拒绝且不修改状态；
// 否则计数加一并把窗口起点刷新为当前时间。
func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.entries[key]
	if !ok || now.After(entry.WindowStart.Add(l.window)) {
		l.entries[key] = &Entry{WindowStart: now, Count: 1}
		return true, nil
	}

	if entry.Count >= l.max {
		return false, nil
	}

	entry.Count++
	entry.WindowStart = now
	return true, nil
}

// Sweep 清除窗口已过期的条目，返回清除数量
func (l *MemoryLimiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, entry := range l.entries {
		if now.After(entry.WindowStart.Add(l.window)) {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len 当前跟踪的客户端数量
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// RunSweeper 定期清理过期条目，直到 ctx 结束
func (l *MemoryLimiter) RunSweeper(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := l.Sweep()
			if onSweep != nil {
				onSweep(removed)
			}
		}
	}
}

// exemptUnknown 未知客户端直接放行
type exemptUnknown struct {
	next Limiter
}

func (e exemptUnknown) Allow(ctx context.Context, key string) (bool, error) {
	if key == UnknownClient {
		return true, nil
	}
	return e.next.Allow(ctx, key)
}

// WithUnknownPolicy 按策略包装限流器
func WithUnknownPolicy(l Limiter, policy string) Limiter {
	if policy == PolicyExempt {
		return exemptUnknown{next: l}
	}
	return l
}
