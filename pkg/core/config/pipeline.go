package config

// SelectorConfig 上下文筛选器配置
type SelectorConfig struct {
	// TokenBudget 默认 Token 预算
	TokenBudget int `koanf:"token_budget"`
	// DocumentLimit 文档检索条数
	DocumentLimit int `koanf:"document_limit"`
	// HistoryLimit 会话历史拉取条数
	HistoryLimit int `koanf:"history_limit"`
	// SimilarityThreshold 历史消息的相似度下限（严格截断）
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	// DocumentRelevance 文档候选的基线相关度
	DocumentRelevance float64 `koanf:"document_relevance"`
	// MinTruncateTokens 剩余预算超过该值时才截断下一个候选
	MinTruncateTokens int `koanf:"min_truncate_tokens"`
	// Weights 综合评分权重
	Weights ScoringWeights `koanf:"weights"`
}

// ScoringWeights 综合评分的四项权重
type ScoringWeights struct {
	Relevance float64 `koanf:"relevance"`
	Recency   float64 `koanf:"recency"`
	Type      float64 `koanf:"type"`
	Diversity float64 `koanf:"diversity"`
}

// IsZero 判断是否未配置任何权重
func (w ScoringWeights) IsZero() bool {
	return w == ScoringWeights{}
}

// DefaultScoringWeights 默认权重：相关度 0.5、新近度 0.2、类型 0.2、多样性 0.1
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{Relevance: 0.5, Recency: 0.2, Type: 0.2, Diversity: 0.1}
}

// Validate 验证筛选器配置
func (c *SelectorConfig) Validate() error {
	if c.TokenBudget <= 0 {
		return ErrInvalidTokenBudget
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return ErrInvalidThreshold
	}
	if c.DocumentRelevance < 0 || c.DocumentRelevance > 1 {
		return ErrInvalidThreshold
	}
	w := c.Weights
	if w.Relevance < 0 || w.Recency < 0 || w.Type < 0 || w.Diversity < 0 {
		return ErrInvalidWeights
	}
	return nil
}

// WithDefaults 返回带默认值的配置
func (c SelectorConfig) WithDefaults() SelectorConfig {
	if c.TokenBudget == 0 {
		c.TokenBudget = 4000
	}
	if c.DocumentLimit == 0 {
		c.DocumentLimit = 10
	}
	if c.HistoryLimit == 0 {
		c.HistoryLimit = 20
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.6
	}
	if c.DocumentRelevance == 0 {
		c.DocumentRelevance = 0.8
	}
	if c.MinTruncateTokens == 0 {
		c.MinTruncateTokens = 100
	}
	if c.Weights.IsZero() {
		c.Weights = DefaultScoringWeights()
	}
	return c
}

// OptimizerConfig 上下文优化器配置
type OptimizerConfig struct {
	// MinQuality 质量门槛
	MinQuality float64 `koanf:"min_quality"`
	// MaxPerType 每种类型保留的最大条目数
	MaxPerType int `koanf:"max_per_type"`
	// FallbackQuality 构建器在质量门槛失败后使用的放宽门槛
	FallbackQuality float64 `koanf:"fallback_quality"`
}

// Validate 验证优化器配置
func (c *OptimizerConfig) Validate() error {
	if c.MinQuality < 0 || c.MinQuality > 1 {
		return ErrInvalidThreshold
	}
	if c.FallbackQuality < 0 || c.FallbackQuality > 1 {
		return ErrInvalidThreshold
	}
	return nil
}

// WithDefaults 返回带默认值的配置
func (c OptimizerConfig) WithDefaults() OptimizerConfig {
	if c.MinQuality == 0 {
		c.MinQuality = 0.7
	}
	if c.MaxPerType == 0 {
		c.MaxPerType = 5
	}
	if c.FallbackQuality == 0 {
		c.FallbackQuality = 0.5
	}
	return c
}
