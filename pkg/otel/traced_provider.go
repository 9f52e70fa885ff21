package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/easyops/twinmcp/pkg/core/errors"
	"github.com/easyops/twinmcp/pkg/core/llm"
	"github.com/easyops/twinmcp/pkg/core/message"
)

// TracedProvider 为 LLM 提供商增加追踪与指标，并累计补全用量
type TracedProvider struct {
	provider llm.Provider
	tracer   Tracer
	metrics  Metrics

	mu    sync.Mutex
	usage message.TokenUsage
}

// TracedProviderOption 配置 TracedProvider
type TracedProviderOption func(*TracedProvider)

// WithTracedProviderTracer 设置追踪器
func WithTracedProviderTracer(tracer Tracer) TracedProviderOption {
	return func(p *TracedProvider) {
		p.tracer = tracer
	}
}

// WithTracedProviderMetrics 设置指标收集器
func WithTracedProviderMetrics(metrics Metrics) TracedProviderOption {
	return func(p *TracedProvider) {
		p.metrics = metrics
	}
}

// NewTracedProvider 包装 LLM 提供商
func NewTracedProvider(provider llm.Provider, opts ...TracedProviderOption) *TracedProvider {
	tp := &TracedProvider{
		provider: provider,
		tracer:   NewNoopTracer(),
		metrics:  NewNoopMetrics(),
	}

	for _, opt := range opts {
		opt(tp)
	}

	return tp
}

// Generate 带追踪的文本补全
func (p *TracedProvider) Generate(ctx context.Context, req llm.Request) (llm.Response, error) {
	ctx, span := p.tracer.Start(ctx, "llm.generate",
		WithSpanKind(SpanKindClient),
		WithAttributes(
			LLMProvider(p.provider.Name()),
			LLMModel(p.provider.Model()),
		),
	)

	start := time.Now()
	resp, err := p.provider.Generate(ctx, req)
	p.record(ctx, "generate", p.provider.Model(), resp.TokenUsage.TotalTokens, err, time.Since(start))

	if err == nil {
		p.mu.Lock()
		p.usage = p.usage.Plus(resp.TokenUsage)
		p.mu.Unlock()

		span.SetAttributes(LLMTokens(
			resp.TokenUsage.PromptTokens,
			resp.TokenUsage.CompletionTokens,
			resp.TokenUsage.TotalTokens,
		)...)
		span.AddEvent("llm.response", attribute.String("finish_reason", resp.FinishReason))
	}
	EndSpan(span, err)

	return resp, err
}

// CreateEmbeddings 带追踪的批量嵌入
func (p *TracedProvider) CreateEmbeddings(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	ctx, span := p.tracer.Start(ctx, "llm.embed",
		WithSpanKind(SpanKindClient),
		WithAttributes(
			LLMProvider(p.provider.Name()),
			EmbeddingModel(model),
			attribute.Int("input_count", len(inputs)),
		),
	)

	start := time.Now()
	result, err := p.provider.CreateEmbeddings(ctx, model, inputs)
	p.record(ctx, "embed", model, 0, err, time.Since(start))

	if err != nil {
		span.SetAttributes(ErrorAttrs("provider", err.Error(), errors.IsRetryable(err))...)
	} else {
		span.SetAttributes(attribute.Int("output_count", len(result)))
	}
	EndSpan(span, err)

	return result, err
}

// Usage 返回至今成功补全调用的累计用量
func (p *TracedProvider) Usage() message.TokenUsage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.usage
}

// Name 返回提供商名称
func (p *TracedProvider) Name() string {
	return p.provider.Name()
}

// Model 返回补全模型名称
func (p *TracedProvider) Model() string {
	return p.provider.Model()
}

// Close 关闭底层提供商
func (p *TracedProvider) Close() error {
	return p.provider.Close()
}

// record 记录一次调用的指标
func (p *TracedProvider) record(ctx context.Context, op, model string, tokens int, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "error"
		p.metrics.Counter(MetricLLMErrors).Add(ctx, 1,
			NewAttr("provider", p.provider.Name()),
			NewAttr("operation", op),
			NewAttr("rate_limited", errors.IsRateLimited(err)),
		)
	}

	p.metrics.Counter(MetricLLMRequests).Add(ctx, 1,
		NewAttr("provider", p.provider.Name()),
		NewAttr("model", model),
		NewAttr("operation", op),
		NewAttr("status", status),
	)
	if tokens > 0 {
		p.metrics.Counter(MetricLLMTokensTotal).Add(ctx, int64(tokens),
			NewAttr("provider", p.provider.Name()),
			NewAttr("model", model),
		)
	}
	p.metrics.Histogram(MetricLLMRequestDuration).Record(ctx, float64(d.Microseconds())/1000,
		NewAttr("provider", p.provider.Name()),
		NewAttr("operation", op),
	)
}

// compile-time interface check
var _ llm.Provider = (*TracedProvider)(nil)
