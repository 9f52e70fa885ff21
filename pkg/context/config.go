package context

import (
	"github.com/easyops/twinmcp/pkg/core/config"
)

// SelectorOptionsFromConfig 把配置转换为筛选器选项。
func SelectorOptionsFromConfig(cfg config.SelectorConfig) []SelectorOption {
	cfg = cfg.WithDefaults()
	return []SelectorOption{
		WithDefaultBudget(cfg.TokenBudget),
		WithMinTruncateTokens(cfg.MinTruncateTokens),
		WithScoringWeights(cfg.Weights),
	}
}

// OptimizerOptionsFromConfig 把配置转换为优化器选项。
func OptimizerOptionsFromConfig(cfg config.OptimizerConfig) []OptimizerOption {
	cfg = cfg.WithDefaults()
	return []OptimizerOption{
		WithMaxPerType(cfg.MaxPerType),
		WithDefaultMinQuality(cfg.MinQuality),
	}
}
