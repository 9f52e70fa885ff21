package embedding

import (
	"time"

	"github.com/easyops/twinmcp/pkg/core/config"
	"github.com/easyops/twinmcp/pkg/otel"
)

// MaxBatchSize 单次提供商调用的分块上限
const MaxBatchSize = config.MaxEmbeddingBatchSize

// Option 服务配置选项
type Option func(*Service)

// WithCache 设置缓存
func WithCache(cache Cache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithRateLimiter 设置限速器
func WithRateLimiter(limiter RateLimiter) Option {
	return func(s *Service) {
		s.limiter = limiter
	}
}

// WithStatsLog 设置统计日志
func WithStatsLog(log *StatsLog) Option {
	return func(s *Service) {
		s.stats = log
	}
}

// WithCostTable 设置模型单价表
func WithCostTable(costs CostTable) Option {
	return func(s *Service) {
		s.costs = costs
	}
}

// WithDefaultModel 设置默认嵌入模型
func WithDefaultModel(model string) Option {
	return func(s *Service) {
		s.model = model
	}
}

// WithBatchSize 设置默认批大小
func WithBatchSize(n int) Option {
	return func(s *Service) {
		s.batchSize = clampBatchSize(n)
	}
}

// WithMaxChunkChars 设置单个分块的最大字符数
func WithMaxChunkChars(n int) Option {
	return func(s *Service) {
		s.maxChunkChars = n
	}
}

// WithCacheTTL 设置缓存 TTL
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// WithInterBatchDelay 设置批次间隔
func WithInterBatchDelay(d time.Duration) Option {
	return func(s *Service) {
		s.interBatchDelay = d
	}
}

// WithRetry 设置限速重提交次数与初始退避
func WithRetry(maxRetries int, baseDelay time.Duration) Option {
	return func(s *Service) {
		s.maxRetries = maxRetries
		s.retryDelay = baseDelay
	}
}

// WithLogger 设置日志
func WithLogger(logger otel.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithMetrics 设置指标
func WithMetrics(metrics otel.Metrics) Option {
	return func(s *Service) {
		s.metrics = metrics
	}
}

// WithTracer 设置追踪器
func WithTracer(tracer otel.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// OptionsFromConfig 将配置转换为服务选项
func OptionsFromConfig(cfg config.EmbeddingConfig) []Option {
	cfg = cfg.WithDefaults()
	return []Option{
		WithDefaultModel(cfg.Model),
		WithBatchSize(cfg.BatchSize),
		WithMaxChunkChars(cfg.MaxChunkChars),
		WithCacheTTL(cfg.CacheTTL),
		WithInterBatchDelay(cfg.InterBatchDelay),
		WithRetry(cfg.MaxRetries, cfg.RetryDelay),
		WithRateLimiter(NewSlidingWindowLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)),
		WithStatsLog(NewStatsLog(cfg.StatsCapacity)),
		WithCostTable(CostTable(cfg.CostPer1K)),
	}
}

// clampBatchSize 将批大小限制在 [1, MaxBatchSize]，非正数取上限
func clampBatchSize(n int) int {
	if n <= 0 || n > MaxBatchSize {
		return MaxBatchSize
	}
	return n
}
