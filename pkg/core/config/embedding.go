package config

import "time"

// MaxEmbeddingBatchSize 单次提供商调用的分块上限
const MaxEmbeddingBatchSize = 100

// EmbeddingConfig 嵌入缓存配置
type EmbeddingConfig struct {
	// Model 默认嵌入模型
	Model string `koanf:"model"`
	// BatchSize 批大小，超过 100 时被压到 100
	BatchSize int `koanf:"batch_size"`
	// MaxChunkChars 单个分块最大字符数，超出部分截断
	MaxChunkChars int `koanf:"max_chunk_chars"`
	// CacheTTL 缓存条目过期时间
	CacheTTL time.Duration `koanf:"cache_ttl"`
	// InterBatchDelay 同一请求内相邻批次的固定间隔
	InterBatchDelay time.Duration `koanf:"inter_batch_delay"`
	// MaxRetries 被限速时同一批次的最大重提交次数
	MaxRetries int `koanf:"max_retries"`
	// RetryDelay 限速重提交的初始退避
	RetryDelay time.Duration `koanf:"retry_delay"`
	// RateLimit 每个模型的滑动窗口限速
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	// StatsCapacity 统计日志保留的最大条目数
	StatsCapacity int `koanf:"stats_capacity"`
	// CostPer1K 每千 Token 的模型单价
	CostPer1K map[string]float64 `koanf:"cost_per_1k"`
}

// RateLimitConfig 滑动窗口限速配置
type RateLimitConfig struct {
	// Requests 窗口内允许的请求数
	Requests int `koanf:"requests"`
	// Window 窗口长度
	Window time.Duration `koanf:"window"`
}

// DefaultCostPer1K 返回内置的嵌入模型单价表（美元 / 千 Token）
func DefaultCostPer1K() map[string]float64 {
	return map[string]float64{
		"text-embedding-3-small": 0.00002,
		"text-embedding-3-large": 0.00013,
		"text-embedding-ada-002": 0.0001,
	}
}

// Validate 验证嵌入配置
func (c *EmbeddingConfig) Validate() error {
	if c.Model == "" {
		return ErrModelRequired
	}
	if c.BatchSize < 1 {
		return ErrInvalidBatchSize
	}
	if c.BatchSize > MaxEmbeddingBatchSize {
		c.BatchSize = MaxEmbeddingBatchSize
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return ErrInvalidRateLimit
	}
	if c.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	return nil
}

// WithDefaults 返回带默认值的配置
func (c EmbeddingConfig) WithDefaults() EmbeddingConfig {
	if c.Model == "" {
		c.Model = "text-embedding-3-small"
	}
	if c.BatchSize == 0 {
		c.BatchSize = MaxEmbeddingBatchSize
	}
	if c.MaxChunkChars == 0 {
		c.MaxChunkChars = 32000
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 7 * 24 * time.Hour
	}
	if c.InterBatchDelay == 0 {
		c.InterBatchDelay = 100 * time.Millisecond
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = time.Second
	}
	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 500
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.StatsCapacity == 0 {
		c.StatsCapacity = 1000
	}
	if c.CostPer1K == nil {
		c.CostPer1K = DefaultCostPer1K()
	}
	return c
}
