// Package config 提供配置加载和管理功能
//
// 加载顺序：内置默认值 → 配置文件（YAML/JSON）→ 环境变量（TWINMCP_ 前缀），
// 后加载的覆盖先加载的。
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "TWINMCP_"

// Config 全局配置结构
type Config struct {
	// LLM 意图分类与嵌入所用的提供商
	LLM LLMConfig `koanf:"llm"`
	// Embedding 嵌入缓存与限速
	Embedding EmbeddingConfig `koanf:"embedding"`
	// Selector 上下文筛选
	Selector SelectorConfig `koanf:"selector"`
	// Optimizer 上下文优化
	Optimizer OptimizerConfig `koanf:"optimizer"`
	// Cache 嵌入缓存后端
	Cache CacheConfig `koanf:"cache"`
	// Store 文档与会话存储
	Store StoreConfig `koanf:"store"`
	// Observability 可观测性配置
	Observability ObservabilityConfig `koanf:"observability"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	// Enabled 是否启用
	Enabled bool `koanf:"enabled"`
	// ServiceName 服务名称
	ServiceName string `koanf:"service_name"`
	// Exporter 导出器类型：otlp-grpc | otlp-http | stdout
	Exporter string `koanf:"exporter"`
	// TracerEndpoint 追踪端点
	TracerEndpoint string `koanf:"tracer_endpoint"`
	// MetricsEndpoint 指标端点
	MetricsEndpoint string `koanf:"metrics_endpoint"`
	// SampleRate 采样率 [0, 1]
	SampleRate float64 `koanf:"sample_rate"`
	// LogLevel 日志级别：debug | info | warn | error
	LogLevel string `koanf:"log_level"`
}

// WithDefaults 返回带默认值的配置
func (c ObservabilityConfig) WithDefaults() ObservabilityConfig {
	if c.ServiceName == "" {
		c.ServiceName = "twinmcp"
	}
	if c.Exporter == "" {
		c.Exporter = "stdout"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 1.0
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return c
}

// Loader 配置加载器
type Loader struct {
	k *koanf.Koanf
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{
		k: koanf.New("."),
	}
}

// LoadFile 从文件加载配置
//
// 文件不存在时不报错，沿用默认值。
func (l *Loader) LoadFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	if err := l.k.Load(file.Provider(path), parser); err != nil {
		return fmt.Errorf("load config file %s: %w", path, err)
	}
	return nil
}

// LoadEnv 从环境变量加载配置
//
// 第一个下划线分隔配置段，双下划线表示嵌套：
// TWINMCP_EMBEDDING_BATCH_SIZE -> embedding.batch_size，
// TWINMCP_EMBEDDING_RATE_LIMIT__REQUESTS -> embedding.rate_limit.requests。
func (l *Loader) LoadEnv(prefix string) error {
	return l.k.Load(env.Provider(prefix, ".", func(s string) string {
		return envKey(prefix, s)
	}), nil)
}

// envKey 将环境变量名转换为配置键
func envKey(prefix, name string) string {
	s := strings.ToLower(strings.TrimPrefix(name, prefix))
	section, rest, found := strings.Cut(s, "_")
	if !found {
		return section
	}
	return section + "." + strings.ReplaceAll(rest, "__", ".")
}

// Unmarshal 解析配置到结构体
func (l *Loader) Unmarshal(cfg *Config) error {
	return l.k.Unmarshal("", cfg)
}

// Get 获取配置值
func (l *Loader) Get(key string) interface{} {
	return l.k.Get(key)
}

// GetString 获取字符串配置值
func (l *Loader) GetString(key string) string {
	return l.k.String(key)
}

// GetInt 获取整数配置值
func (l *Loader) GetInt(key string) int {
	return l.k.Int(key)
}

// GetDuration 获取时间间隔配置值
func (l *Loader) GetDuration(key string) time.Duration {
	return l.k.Duration(key)
}

// Load 加载完整配置（文件 + 环境变量）并校验
func Load(configPath string) (*Config, error) {
	loader := NewLoader()

	if configPath != "" {
		if err := loader.LoadFile(configPath); err != nil {
			return nil, err
		}
	}

	// 环境变量优先级更高
	if err := loader.LoadEnv(EnvPrefix); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := loader.Unmarshal(cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 返回全部为默认值的配置
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults 为未设置的字段填充默认值
func (c *Config) ApplyDefaults() {
	c.LLM = c.LLM.WithDefaults()
	c.Embedding = c.Embedding.WithDefaults()
	c.Selector = c.Selector.WithDefaults()
	c.Optimizer = c.Optimizer.WithDefaults()
	c.Cache = c.Cache.WithDefaults()
	c.Store = c.Store.WithDefaults()
	c.Observability = c.Observability.WithDefaults()
}

// Validate 依次校验各配置段
func (c *Config) Validate() error {
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm: %w", err)
	}
	if err := c.Embedding.Validate(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := c.Selector.Validate(); err != nil {
		return fmt.Errorf("selector: %w", err)
	}
	if err := c.Optimizer.Validate(); err != nil {
		return fmt.Errorf("optimizer: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	return nil
}
