package otel

import "go.opentelemetry.io/otel/attribute"

// 预定义的语义属性键
const (
	// LLM 相关属性
	AttrLLMProvider         = "llm.provider"
	AttrLLMModel            = "llm.model"
	AttrLLMPromptTokens     = "llm.prompt_tokens"
	AttrLLMCompletionTokens = "llm.completion_tokens"
	AttrLLMTotalTokens      = "llm.total_tokens"

	// 嵌入相关属性
	AttrEmbeddingModel     = "embedding.model"
	AttrEmbeddingChunks    = "embedding.chunk_count"
	AttrEmbeddingBatches   = "embedding.batch_count"
	AttrEmbeddingBatchSize = "embedding.batch_size"
	AttrEmbeddingCacheHits = "embedding.cache_hits"
	AttrEmbeddingFailures  = "embedding.failures"

	// 上下文相关属性
	AttrContextIntent     = "context.intent"
	AttrContextBudget     = "context.token_budget"
	AttrContextCandidates = "context.candidate_count"
	AttrContextSelected   = "context.selected_count"
	AttrContextTokens     = "context.tokens"
	AttrContextQuality    = "context.quality_score"

	// Error 相关属性
	AttrErrorType      = "error.type"
	AttrErrorMessage   = "error.message"
	AttrErrorRetryable = "error.retryable"
)

// LLMProvider 创建 LLM 提供商属性
func LLMProvider(provider string) attribute.KeyValue {
	return attribute.String(AttrLLMProvider, provider)
}

// LLMModel 创建 LLM 模型属性
func LLMModel(model string) attribute.KeyValue {
	return attribute.String(AttrLLMModel, model)
}

// LLMTokens 创建 LLM Token 使用属性
func LLMTokens(prompt, completion, total int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrLLMPromptTokens, prompt),
		attribute.Int(AttrLLMCompletionTokens, completion),
		attribute.Int(AttrLLMTotalTokens, total),
	}
}

// EmbeddingModel 创建嵌入模型属性
func EmbeddingModel(model string) attribute.KeyValue {
	return attribute.String(AttrEmbeddingModel, model)
}

// EmbeddingChunks 创建分块数量属性
func EmbeddingChunks(n int) attribute.KeyValue {
	return attribute.Int(AttrEmbeddingChunks, n)
}

// ContextBudget 创建 Token 预算属性
func ContextBudget(tokens int) attribute.KeyValue {
	return attribute.Int(AttrContextBudget, tokens)
}

// ContextIntent 创建查询意图属性
func ContextIntent(intent string) attribute.KeyValue {
	return attribute.String(AttrContextIntent, intent)
}

// ErrorAttrs 创建错误属性
func ErrorAttrs(errType, message string, retryable bool) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, message),
		attribute.Bool(AttrErrorRetryable, retryable),
	}
}
