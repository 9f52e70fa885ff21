package llm

import (
	"fmt"

	"github.com/easyops/twinmcp/pkg/core/config"
)

// 兼容 OpenAI API 的默认端点
const (
	deepSeekBaseURL = "https://api.deepseek.com/v1"
	vllmBaseURL     = "http://localhost:8000/v1"
)

// FromConfig 从配置创建 LLM Provider
func FromConfig(cfg config.LLMConfig) (*OpenAIClient, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := []Option{
		WithModel(cfg.Model),
		WithTimeout(cfg.Timeout),
		WithMaxRetries(cfg.MaxRetries),
		WithRetryDelay(cfg.RetryDelay),
	}
	if cfg.APIKey != "" {
		opts = append(opts, WithAPIKey(cfg.APIKey))
	}

	baseURL := cfg.BaseURL
	switch cfg.Provider {
	case config.ProviderDeepSeek:
		if baseURL == "" {
			baseURL = deepSeekBaseURL
		}
	case config.ProviderVLLM:
		if baseURL == "" {
			baseURL = vllmBaseURL
		}
		// vLLM 默认不校验密钥
		if cfg.APIKey == "" {
			opts = append(opts, WithAPIKey("EMPTY"))
		}
	}
	if baseURL != "" {
		opts = append(opts, WithBaseURL(baseURL))
	}

	return newOpenAICompatible(string(cfg.Provider), opts...)
}

// MustFromConfig 从配置创建 Provider，失败时 panic
func MustFromConfig(cfg config.LLMConfig) *OpenAIClient {
	provider, err := FromConfig(cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to create provider from config: %v", err))
	}
	return provider
}
