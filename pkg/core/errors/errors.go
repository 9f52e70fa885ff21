// Package errors 定义上下文流水线的通用错误类型
package errors

import (
	"errors"
	"fmt"
)

// 通用错误
var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrContextCanceled 上下文被取消
	ErrContextCanceled = errors.New("context canceled")
)

// 提供商相关错误
var (
	// ErrRateLimited 请求被限速（瞬时错误，可等待后重试）
	ErrRateLimited = errors.New("rate limited")
	// ErrTimeout 请求超时
	ErrTimeout = errors.New("request timeout")
	// ErrInvalidAPIKey API 密钥无效
	ErrInvalidAPIKey = errors.New("invalid API key")
	// ErrModelNotFound 模型未找到
	ErrModelNotFound = errors.New("model not found")
	// ErrProviderUnavailable 提供商不可用
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrInvalidRequest 请求格式错误
	ErrInvalidRequest = errors.New("invalid request")
	// ErrInvalidResponse 响应无效
	ErrInvalidResponse = errors.New("invalid provider response")
)

// 嵌入相关错误
var (
	// ErrEmbeddingFailed 嵌入失败
	ErrEmbeddingFailed = errors.New("embedding failed")
	// ErrInvalidChunk 分块无效（空内容等）
	ErrInvalidChunk = errors.New("invalid chunk")
	// ErrCacheUnavailable 缓存不可用
	ErrCacheUnavailable = errors.New("cache unavailable")
)

// 上下文相关错误
var (
	// ErrQualityGate 上下文质量低于阈值
	ErrQualityGate = errors.New("context quality below threshold")
	// ErrClassifierOutput 意图分类器输出无法解析
	ErrClassifierOutput = errors.New("unparseable classifier output")
)

// WrapError 包装错误并添加上下文信息
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// IsRateLimited 判断错误是否为限速错误
func IsRateLimited(err error) bool {
	return err != nil && errors.Is(err, ErrRateLimited)
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrProviderUnavailable)
}

// IsFatal 判断错误是否为致命错误（不可恢复）
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrInvalidAPIKey) ||
		errors.Is(err, ErrModelNotFound) ||
		errors.Is(err, ErrInvalidConfig)
}

// Is 是 errors.Is 的别名，方便调用方只导入本包
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As 是 errors.As 的别名
func As(err error, target any) bool {
	return errors.As(err, target)
}
