// Package retry 提供基于指数退避的有界重试
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/easyops/twinmcp/pkg/core/errors"
)

// Func 可重试的函数类型
type Func func() error

// Policy 重试策略
type Policy struct {
	// MaxRetries 首次调用之后的最大重试次数
	MaxRetries int
	// BaseDelay 首次重试前的等待时间
	BaseDelay time.Duration
	// MaxDelay 单次等待上限，默认 30 秒
	MaxDelay time.Duration
	// Retryable 判断错误是否可重试，默认 errors.IsRetryable
	Retryable func(error) bool
	// OnRetry 每次重试前回调（可选）
	OnRetry func(attempt int, err error, wait time.Duration)
}

// DefaultPolicy 返回默认重试策略
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
		Retryable:  errors.IsRetryable,
	}
}

// Do 执行 fn，遇到可重试错误时按指数退避重试
//
// 不可重试的错误立即返回；重试耗尽后返回最后一次的错误；
// 上下文取消时返回 ctx.Err()。
func (p Policy) Do(ctx context.Context, fn Func) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = errors.IsRetryable
	}

	attempt := 0
	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		attempt++
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, wait)
		}
	}

	return backoff.RetryNotify(op, p.backOff(ctx), notify)
}

// backOff 构造带上限和上下文的退避序列
func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.BaseDelay > 0 {
		b.InitialInterval = p.BaseDelay
	}
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = 30 * time.Second
	}
	b.RandomizationFactor = 0.1
	b.Multiplier = 2
	// 只以重试次数为界
	b.MaxElapsedTime = 0
	b.Reset()

	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}
