package embedding

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 按模型限速
type RateLimiter interface {
	// Wait 阻塞直到该模型允许再发起一次调用，返回实际等待时长
	Wait(ctx context.Context, model string) (time.Duration, error)
}

// WindowReporter 可报告窗口占用的限速器，服务据此上报在途请求数
type WindowReporter interface {
	InFlight(model string) int
}

// SlidingWindowLimiter 每个模型在任意长度为 window 的尾随窗口内
// 最多放行 limit 次调用
//
// 状态只在本进程内有效，多实例部署时全局速率会被低估。
type SlidingWindowLimiter struct {
	limit  int
	window time.Duration
	calls  map[string][]time.Time
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	mu     sync.Mutex
}

// LimiterOption 限速器选项
type LimiterOption func(*SlidingWindowLimiter)

// WithClock 替换时钟与等待函数（测试用）
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) LimiterOption {
	return func(l *SlidingWindowLimiter) {
		l.now = now
		l.sleep = sleep
	}
}

// NewSlidingWindowLimiter 创建滑动窗口限速器
func NewSlidingWindowLimiter(limit int, window time.Duration, opts ...LimiterOption) *SlidingWindowLimiter {
	if limit <= 0 {
		limit = 1
	}
	l := &SlidingWindowLimiter{
		limit:  limit,
		window: window,
		calls:  make(map[string][]time.Time),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait 阻塞直到 model 的窗口内有空位，并占用该空位
//
// 检查与占位在同一把锁内完成，并发调用不会超额放行。
func (l *SlidingWindowLimiter) Wait(ctx context.Context, model string) (time.Duration, error) {
	var waited time.Duration
	for {
		wait, ok := l.reserve(model)
		if ok {
			return waited, nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return waited, err
		}
		waited += wait
	}
}

// reserve 尝试占位；失败时返回距最早时间戳离开窗口的时长
func (l *SlidingWindowLimiter) reserve(model string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	calls := l.evict(l.calls[model], now)
	if len(calls) < l.limit {
		l.calls[model] = append(calls, now)
		return 0, true
	}

	l.calls[model] = calls
	return calls[0].Add(l.window).Sub(now), false
}

// evict 去掉已离开窗口的时间戳；calls 按时间升序
func (l *SlidingWindowLimiter) evict(calls []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(calls) && now.Sub(calls[i]) >= l.window {
		i++
	}
	return calls[i:]
}

// InFlight 返回 model 当前窗口内的调用数
func (l *SlidingWindowLimiter) InFlight(model string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	calls := l.evict(l.calls[model], l.now())
	l.calls[model] = calls
	return len(calls)
}

// sleepContext 等待 d 或上下文取消
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// compile-time interface check
var (
	_ RateLimiter    = (*SlidingWindowLimiter)(nil)
	_ WindowReporter = (*SlidingWindowLimiter)(nil)
)
