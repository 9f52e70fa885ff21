package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Embedding.BatchSize != MaxEmbeddingBatchSize {
		t.Errorf("BatchSize = %d, want %d", cfg.Embedding.BatchSize, MaxEmbeddingBatchSize)
	}
	if cfg.Embedding.InterBatchDelay != 100*time.Millisecond {
		t.Errorf("InterBatchDelay = %v", cfg.Embedding.InterBatchDelay)
	}
	if cfg.Selector.TokenBudget != 4000 {
		t.Errorf("TokenBudget = %d, want 4000", cfg.Selector.TokenBudget)
	}
	if cfg.Selector.SimilarityThreshold != 0.6 {
		t.Errorf("SimilarityThreshold = %v, want 0.6", cfg.Selector.SimilarityThreshold)
	}
	if cfg.Optimizer.MinQuality != 0.7 {
		t.Errorf("MinQuality = %v, want 0.7", cfg.Optimizer.MinQuality)
	}
	if cfg.Cache.Backend != CacheMemory {
		t.Errorf("Backend = %q, want memory", cfg.Cache.Backend)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
llm:
  provider: deepseek
  model: deepseek-chat
embedding:
  model: text-embedding-3-large
  batch_size: 250
  inter_batch_delay: 50ms
  rate_limit:
    requests: 10
    window: 1s
selector:
  token_budget: 2000
cache:
  backend: redis
  redis_addr: cache:6379
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.LLM.Provider != ProviderDeepSeek {
		t.Errorf("Provider = %q", cfg.LLM.Provider)
	}
	if cfg.Embedding.Model != "text-embedding-3-large" {
		t.Errorf("Embedding.Model = %q", cfg.Embedding.Model)
	}
	// 超过上限的批大小被压到 100
	if cfg.Embedding.BatchSize != MaxEmbeddingBatchSize {
		t.Errorf("BatchSize = %d, want clamped to %d", cfg.Embedding.BatchSize, MaxEmbeddingBatchSize)
	}
	if cfg.Embedding.InterBatchDelay != 50*time.Millisecond {
		t.Errorf("InterBatchDelay = %v", cfg.Embedding.InterBatchDelay)
	}
	if cfg.Embedding.RateLimit.Requests != 10 || cfg.Embedding.RateLimit.Window != time.Second {
		t.Errorf("RateLimit = %+v", cfg.Embedding.RateLimit)
	}
	if cfg.Selector.TokenBudget != 2000 {
		t.Errorf("TokenBudget = %d", cfg.Selector.TokenBudget)
	}
	if cfg.Cache.Backend != CacheRedis || cfg.Cache.RedisAddr != "cache:6379" {
		t.Errorf("Cache = %+v", cfg.Cache)
	}
}

func TestLoad_JSONFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"optimizer": {"min_quality": 0.5, "max_per_type": 3}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Optimizer.MinQuality != 0.5 {
		t.Errorf("MinQuality = %v", cfg.Optimizer.MinQuality)
	}
	if cfg.Optimizer.MaxPerType != 3 {
		t.Errorf("MaxPerType = %d", cfg.Optimizer.MaxPerType)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Embedding.Model != "text-embedding-3-small" {
		t.Errorf("Embedding.Model = %q", cfg.Embedding.Model)
	}
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("x = 1"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := Load(path)
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("selector:\n  token_budget: 2000\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("TWINMCP_SELECTOR_TOKEN_BUDGET", "1500")
	t.Setenv("TWINMCP_EMBEDDING_RATE_LIMIT__REQUESTS", "7")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Selector.TokenBudget != 1500 {
		t.Errorf("TokenBudget = %d, want 1500", cfg.Selector.TokenBudget)
	}
	if cfg.Embedding.RateLimit.Requests != 7 {
		t.Errorf("RateLimit.Requests = %d, want 7", cfg.Embedding.RateLimit.Requests)
	}
}

func TestEnvKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"TWINMCP_LLM_API_KEY", "llm.api_key"},
		{"TWINMCP_EMBEDDING_RATE_LIMIT__WINDOW", "embedding.rate_limit.window"},
		{"TWINMCP_STORE", "store"},
	}
	for _, tt := range tests {
		if got := envKey(EnvPrefix, tt.in); got != tt.want {
			t.Errorf("envKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"bad provider", func(c *Config) { c.LLM.Provider = "unknown" }, ErrInvalidProvider},
		{"bad rate limit", func(c *Config) { c.Embedding.RateLimit.Window = -time.Second }, ErrInvalidRateLimit},
		{"bad budget", func(c *Config) { c.Selector.TokenBudget = -1 }, ErrInvalidTokenBudget},
		{"bad quality", func(c *Config) { c.Optimizer.MinQuality = 1.5 }, ErrInvalidThreshold},
		{"bad backend", func(c *Config) { c.Cache.Backend = "memcached" }, ErrInvalidCacheBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Errorf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}
