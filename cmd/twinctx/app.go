package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	twctx "github.com/easyops/twinmcp/pkg/context"
	"github.com/easyops/twinmcp/pkg/core/config"
	"github.com/easyops/twinmcp/pkg/core/llm"
	"github.com/easyops/twinmcp/pkg/embedding"
	"github.com/easyops/twinmcp/pkg/otel"
	"github.com/easyops/twinmcp/pkg/store"
)

// app 持有一次命令执行所需的全部组件
type app struct {
	cfg       *config.Config
	telemetry *otel.Provider
	logger    otel.Logger

	llm      *llm.OpenAIClient
	provider *otel.TracedProvider
	redis    *redis.Client
	store    *store.SQLiteStore
	embedder *embedding.Service
}

// newApp 加载配置并构建组件；withProvider 为 false 时只打开存储
func newApp(ctx context.Context, withProvider bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	telemetry, err := otel.NewProvider(ctx, telemetryConfig(cfg.Observability))
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}
	a := &app{cfg: cfg, telemetry: telemetry, logger: telemetry.Logger()}

	if a.store, err = store.Open(cfg.Store); err != nil {
		a.Close(ctx)
		return nil, err
	}
	if !withProvider {
		return a, nil
	}

	if a.llm, err = llm.FromConfig(cfg.LLM); err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.provider = otel.NewTracedProvider(a.llm,
		otel.WithTracedProviderTracer(telemetry.Tracer()),
		otel.WithTracedProviderMetrics(telemetry.Metrics()),
	)

	opts := embedding.OptionsFromConfig(cfg.Embedding)
	opts = append(opts,
		embedding.WithCache(a.newCache()),
		embedding.WithLogger(a.logger),
		embedding.WithMetrics(telemetry.Metrics()),
		embedding.WithTracer(telemetry.Tracer()),
	)
	a.embedder = embedding.NewService(a.provider, opts...)
	return a, nil
}

func (a *app) newCache() embedding.Cache {
	cfg := a.cfg.Cache
	if cfg.Backend == config.CacheRedis {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		a.logger.Debug("using redis embedding cache", "addr", cfg.RedisAddr)
		return embedding.NewRedisCache(a.redis, cfg.KeyPrefix)
	}
	return embedding.NewMemoryCache(cfg.MemorySize, a.cfg.Embedding.CacheTTL)
}

func (a *app) selector() *twctx.ContextSelector {
	sc := a.cfg.Selector
	opts := twctx.SelectorOptionsFromConfig(sc)
	opts = append(opts,
		twctx.WithClassifier(twctx.NewLLMClassifier(a.provider)),
		twctx.WithDocumentSource(twctx.NewDocumentSource(a.store, sc.DocumentLimit, sc.DocumentRelevance)),
		twctx.WithHistorySource(twctx.NewHistorySource(a.store, a.embedder, a.embedder.DefaultModel(), sc.HistoryLimit, sc.SimilarityThreshold)),
		twctx.WithSelectorLogger(a.logger),
		twctx.WithSelectorMetrics(a.telemetry.Metrics()),
		twctx.WithSelectorTracer(a.telemetry.Tracer()),
	)
	return twctx.NewContextSelector(opts...)
}

func (a *app) optimizer() *twctx.Optimizer {
	opts := twctx.OptimizerOptionsFromConfig(a.cfg.Optimizer)
	opts = append(opts,
		twctx.WithOptimizerLogger(a.logger),
		twctx.WithOptimizerMetrics(a.telemetry.Metrics()),
		twctx.WithOptimizerTracer(a.telemetry.Tracer()),
	)
	return twctx.NewOptimizer(opts...)
}

// Close 释放全部资源，关闭失败只记录日志
func (a *app) Close(ctx context.Context) {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn("close store", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis", "error", err)
		}
	}
	if a.provider != nil {
		if usage := a.provider.Usage(); !usage.IsZero() {
			a.logger.Info("llm token usage",
				"prompt_tokens", usage.PromptTokens,
				"completion_tokens", usage.CompletionTokens,
				"total_tokens", usage.TotalTokens,
			)
		}
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("shutdown observability", "error", err)
	}
}

// telemetryConfig 把全局配置中的可观测性段转换为 otel.Config
func telemetryConfig(c config.ObservabilityConfig) otel.Config {
	c = c.WithDefaults()
	oc := otel.DefaultConfig()
	oc.Enabled = c.Enabled
	oc.ServiceName = c.ServiceName
	oc.Tracing.Enabled = c.Enabled
	oc.Tracing.Exporter = otel.ExporterType(c.Exporter)
	oc.Tracing.SampleRate = c.SampleRate
	if c.TracerEndpoint != "" {
		oc.Tracing.Endpoint = c.TracerEndpoint
	}
	oc.Metrics.Enabled = c.Enabled
	oc.Metrics.Exporter = otel.ExporterType(c.Exporter)
	if c.MetricsEndpoint != "" {
		oc.Metrics.Endpoint = c.MetricsEndpoint
	}
	oc.Logging.Level = c.LogLevel
	return oc
}
