package otel

// 预定义的指标名称
const (
	// LLM 指标
	MetricLLMRequests        = "llm.requests"         // 计数器: LLM 请求次数
	MetricLLMRequestDuration = "llm.request.duration" // 直方图: LLM 请求时间(ms)
	MetricLLMTokensTotal     = "llm.tokens.total"     // 计数器: 总 Token 数
	MetricLLMErrors          = "llm.errors"           // 计数器: LLM 错误次数

	// 嵌入指标
	MetricEmbeddingRequests       = "embedding.requests"        // 计数器: 提供商调用次数
	MetricEmbeddingCacheHits      = "embedding.cache.hits"      // 计数器: 缓存命中
	MetricEmbeddingCacheMisses    = "embedding.cache.misses"    // 计数器: 缓存未命中
	MetricEmbeddingTokens         = "embedding.tokens"          // 计数器: 嵌入 Token 数
	MetricEmbeddingBatchErrors    = "embedding.batch.errors"    // 计数器: 被丢弃的批次
	MetricEmbeddingBatchDuration  = "embedding.batch.duration"  // 直方图: 单批处理时间(ms)
	MetricEmbeddingRateLimitWaits = "embedding.ratelimit.waits" // 计数器: 限速等待次数

	MetricEmbeddingRateLimitInFlight = "embedding.ratelimit.inflight" // 仪表: 当前窗口内已占用的请求名额

	// 上下文指标
	MetricContextCandidates        = "context.candidates"         // 直方图: 候选条目数
	MetricContextSelected          = "context.selected"           // 直方图: 入选条目数
	MetricContextQualityScore      = "context.quality.score"      // 直方图: 质量评分
	MetricContextQualityRejections = "context.quality.rejections" // 计数器: 质量门槛拒绝次数
)

// MetricUnit 指标单位
type MetricUnit string

const (
	UnitNone         MetricUnit = ""
	UnitMilliseconds MetricUnit = "ms"
	UnitCount        MetricUnit = "1"
)

// MetricDescription 指标描述
type MetricDescription struct {
	Name        string
	Description string
	Unit        MetricUnit
	Type        string // counter, histogram, gauge
}

// PredefinedMetrics 预定义指标列表
var PredefinedMetrics = []MetricDescription{
	{MetricLLMRequests, "Number of LLM requests", UnitCount, "counter"},
	{MetricLLMRequestDuration, "Duration of LLM requests", UnitMilliseconds, "histogram"},
	{MetricLLMTokensTotal, "Total number of LLM tokens", UnitCount, "counter"},
	{MetricLLMErrors, "Number of LLM errors", UnitCount, "counter"},

	{MetricEmbeddingRequests, "Number of embedding provider calls", UnitCount, "counter"},
	{MetricEmbeddingCacheHits, "Number of embedding cache hits", UnitCount, "counter"},
	{MetricEmbeddingCacheMisses, "Number of embedding cache misses", UnitCount, "counter"},
	{MetricEmbeddingTokens, "Number of embedded tokens", UnitCount, "counter"},
	{MetricEmbeddingBatchErrors, "Number of dropped embedding batches", UnitCount, "counter"},
	{MetricEmbeddingBatchDuration, "Duration of embedding batches", UnitMilliseconds, "histogram"},
	{MetricEmbeddingRateLimitWaits, "Number of rate limiter waits", UnitCount, "counter"},
	{MetricEmbeddingRateLimitInFlight, "Requests counted in the current rate limit window", UnitCount, "gauge"},

	{MetricContextCandidates, "Number of gathered context candidates", UnitCount, "histogram"},
	{MetricContextSelected, "Number of selected context items", UnitCount, "histogram"},
	{MetricContextQualityScore, "Assessed context quality score", UnitNone, "histogram"},
	{MetricContextQualityRejections, "Number of quality gate rejections", UnitCount, "counter"},
}

// describe 返回预定义指标的描述（未登记时返回空值）
func describe(name string) MetricDescription {
	for _, d := range PredefinedMetrics {
		if d.Name == name {
			return d
		}
	}
	return MetricDescription{Name: name}
}
