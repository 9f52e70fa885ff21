package config

import "errors"

// 配置验证相关错误
var (
	// ErrModelRequired 模型名称必填
	ErrModelRequired = errors.New("model name is required")
	// ErrInvalidTimeout 超时时间无效
	ErrInvalidTimeout = errors.New("invalid timeout value")
	// ErrInvalidMaxRetries 重试次数无效
	ErrInvalidMaxRetries = errors.New("invalid max retries value")
	// ErrInvalidProvider 提供商不受支持
	ErrInvalidProvider = errors.New("unsupported provider")
	// ErrInvalidBatchSize 批大小无效
	ErrInvalidBatchSize = errors.New("batch size must be between 1 and 100")
	// ErrInvalidRateLimit 限速配置无效
	ErrInvalidRateLimit = errors.New("rate limit requests and window must be positive")
	// ErrInvalidTokenBudget Token 预算无效
	ErrInvalidTokenBudget = errors.New("token budget must be positive")
	// ErrInvalidThreshold 阈值超出 [0, 1]
	ErrInvalidThreshold = errors.New("threshold must be between 0 and 1")
	// ErrInvalidWeights 评分权重为负
	ErrInvalidWeights = errors.New("scoring weights must be non-negative")
	// ErrInvalidCacheBackend 缓存后端不受支持
	ErrInvalidCacheBackend = errors.New("cache backend must be memory or redis")
	// ErrUnsupportedFormat 配置文件格式不受支持
	ErrUnsupportedFormat = errors.New("unsupported config file format")
)
