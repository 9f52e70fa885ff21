package context

import (
	"context"
	stderrors "errors"

	"github.com/easyops/twinmcp/pkg/otel"
)

// BuildInput 包含一次上下文构建的输入。
type BuildInput struct {
	// Query 当前查询。
	Query string

	// ConversationID 会话标识（可选）。
	ConversationID string

	// TokenBudget 筛选预算，0 表示使用筛选器默认值；同时作为优化的 Token 上限。
	TokenBudget int

	// Constraints 优化约束，MaxTokens 为空时使用 TokenBudget。
	Constraints Constraints
}

// Builder 串联筛选、组装和优化。
//
// 优化被质量门槛拒绝时，若启用降级，先用 fallbackQuality 重试，
// 仍失败则返回未经优化的组装结果并标记 Metadata.Fallback。
type Builder struct {
	selector        *ContextSelector
	optimizer       *Optimizer
	fallback        bool
	fallbackQuality float64
	logger          otel.Logger
}

// BuilderOption 配置 Builder。
type BuilderOption func(*Builder)

// WithFallback 启用降级并设置放宽后的质量门槛。
func WithFallback(quality float64) BuilderOption {
	return func(b *Builder) {
		b.fallback = true
		b.fallbackQuality = quality
	}
}

// WithBuilderLogger 设置日志。
func WithBuilderLogger(l otel.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = l
	}
}

// NewBuilder 创建构建器。
func NewBuilder(selector *ContextSelector, optimizer *Optimizer, opts ...BuilderOption) *Builder {
	b := &Builder{
		selector:  selector,
		optimizer: optimizer,
		logger:    otel.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build 构建上下文。
func (b *Builder) Build(ctx context.Context, input *BuildInput) (*AssembledContext, error) {
	var selectOpts []SelectOption
	if input.ConversationID != "" {
		selectOpts = append(selectOpts, WithConversationID(input.ConversationID))
	}
	if input.TokenBudget > 0 {
		selectOpts = append(selectOpts, WithTokenBudget(input.TokenBudget))
	}

	items, err := b.selector.SelectContext(ctx, input.Query, selectOpts...)
	if err != nil {
		return nil, err
	}
	assembled := Assemble(items)

	constraints := input.Constraints
	if constraints.MaxTokens == nil && input.TokenBudget > 0 {
		constraints = constraints.WithMaxTokens(input.TokenBudget)
	}

	out, err := b.optimizer.Optimize(ctx, assembled, constraints)
	if err == nil || !b.fallback {
		return out, err
	}

	var gateErr *QualityGateError
	if !stderrors.As(err, &gateErr) {
		return nil, err
	}
	logger := b.logger.WithContext(ctx)

	if gateErr.MinQuality > b.fallbackQuality {
		logger.Info("retrying optimization with relaxed quality",
			"score", gateErr.Assessment.Score,
			"min_quality", b.fallbackQuality,
		)
		out, err = b.optimizer.Optimize(ctx, assembled, constraints.WithMinQuality(b.fallbackQuality))
		if err == nil {
			out.Metadata.Fallback = true
			return out, nil
		}
		if !stderrors.As(err, &gateErr) {
			return nil, err
		}
	}

	// 降级结果仍需满足 Token 上限
	if constraints.MaxTokens != nil {
		full := assembled.Tokens
		assembled = Assemble(fitStrict(append([]*Item(nil), items...), *constraints.MaxTokens))
		assembled.Metadata.CompressionRatio = compressionRatio(full, assembled.Tokens)
	}

	logger.Warn("serving unoptimized context",
		"score", gateErr.Assessment.Score,
		"items", len(assembled.Items),
	)
	quality := Assess(assembled.Items)
	assembled.Metadata.Quality = &quality
	assembled.Metadata.Fallback = true
	return assembled, nil
}
