package context

import (
	"context"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/easyops/twinmcp/pkg/core/config"
	"github.com/easyops/twinmcp/pkg/core/errors"
	"github.com/easyops/twinmcp/pkg/core/token"
	"github.com/easyops/twinmcp/pkg/otel"
)

// ContextSelector 对查询分类意图、收集候选、评分并按预算截取。
type ContextSelector struct {
	classifier  IntentClassifier
	documents   Source
	history     Source
	examples    ExampleSource
	diversity   DiversityScorer
	weights     config.ScoringWeights
	budget      int
	minTruncate int
	now         func() time.Time

	logger  otel.Logger
	metrics otel.Metrics
	tracer  otel.Tracer
}

// SelectorOption 配置 ContextSelector。
type SelectorOption func(*ContextSelector)

// WithClassifier 设置意图分类器。
func WithClassifier(c IntentClassifier) SelectorOption {
	return func(s *ContextSelector) {
		s.classifier = c
	}
}

// WithDocumentSource 设置文档来源。
func WithDocumentSource(src Source) SelectorOption {
	return func(s *ContextSelector) {
		s.documents = src
	}
}

// WithHistorySource 设置历史来源。
func WithHistorySource(src Source) SelectorOption {
	return func(s *ContextSelector) {
		s.history = src
	}
}

// WithExampleSource 设置示例来源。
func WithExampleSource(src ExampleSource) SelectorOption {
	return func(s *ContextSelector) {
		s.examples = src
	}
}

// WithDiversityScorer 设置多样性评分器。
func WithDiversityScorer(d DiversityScorer) SelectorOption {
	return func(s *ContextSelector) {
		s.diversity = d
	}
}

// WithScoringWeights 设置评分权重。
func WithScoringWeights(w config.ScoringWeights) SelectorOption {
	return func(s *ContextSelector) {
		s.weights = w
	}
}

// WithDefaultBudget 设置默认 Token 预算。
func WithDefaultBudget(tokens int) SelectorOption {
	return func(s *ContextSelector) {
		s.budget = tokens
	}
}

// WithMinTruncateTokens 设置截断阈值：剩余预算超过该值时才截断溢出的候选。
func WithMinTruncateTokens(tokens int) SelectorOption {
	return func(s *ContextSelector) {
		s.minTruncate = tokens
	}
}

// WithSelectorClock 替换时钟（测试用）。
func WithSelectorClock(now func() time.Time) SelectorOption {
	return func(s *ContextSelector) {
		s.now = now
	}
}

// WithSelectorLogger 设置日志。
func WithSelectorLogger(l otel.Logger) SelectorOption {
	return func(s *ContextSelector) {
		s.logger = l
	}
}

// WithSelectorMetrics 设置指标。
func WithSelectorMetrics(m otel.Metrics) SelectorOption {
	return func(s *ContextSelector) {
		s.metrics = m
	}
}

// WithSelectorTracer 设置追踪器。
func WithSelectorTracer(t otel.Tracer) SelectorOption {
	return func(s *ContextSelector) {
		s.tracer = t
	}
}

// NewContextSelector 创建筛选器。未设置的来源不参与收集。
func NewContextSelector(opts ...SelectorOption) *ContextSelector {
	defaults := config.SelectorConfig{}.WithDefaults()

	s := &ContextSelector{
		classifier:  StaticClassifier{},
		examples:    NoopExampleSource{},
		diversity:   ConstantDiversity(DefaultDiversity),
		weights:     defaults.Weights,
		budget:      defaults.TokenBudget,
		minTruncate: defaults.MinTruncateTokens,
		now:         time.Now,
		logger:      otel.NewNoopLogger(),
		metrics:     otel.NewNoopMetrics(),
		tracer:      otel.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectOption 是单次筛选的参数。
type SelectOption func(*selectOptions)

type selectOptions struct {
	conversationID string
	budget         int
}

// WithConversationID 指定会话，启用历史来源。
func WithConversationID(id string) SelectOption {
	return func(o *selectOptions) {
		o.conversationID = id
	}
}

// WithTokenBudget 指定本次的 Token 预算。
func WithTokenBudget(tokens int) SelectOption {
	return func(o *selectOptions) {
		o.budget = tokens
	}
}

// SelectContext 返回按综合评分降序、总 Token 不超过预算的条目。
//
// 分类失败和单个来源失败都不会导致错误；只有上下文被取消时返回错误。
func (s *ContextSelector) SelectContext(ctx context.Context, query string, opts ...SelectOption) ([]*Item, error) {
	o := selectOptions{budget: s.budget}
	for _, opt := range opts {
		opt(&o)
	}
	if o.budget <= 0 {
		o.budget = s.budget
	}

	ctx, span := s.tracer.Start(ctx, "context.select",
		otel.WithAttributes(otel.ContextBudget(o.budget)),
	)
	logger := s.logger.WithContext(ctx)

	intent := s.classifier.Classify(ctx, query)
	if !intent.Parsed {
		logger.Debug("intent classification defaulted", "error", intent.Err)
	}
	span.SetAttributes(otel.ContextIntent(intent.Intent.PrimaryIntent))

	input := &GatherInput{
		Query:          query,
		ConversationID: o.conversationID,
		Intent:         intent.Intent,
	}
	candidates, err := s.gather(ctx, input)
	if err != nil {
		err = errors.WrapError(err, "select context")
		otel.EndSpan(span, err)
		return nil, err
	}

	scorer := NewCompositeScorer(s.weights, NewRecencyScorer(s.now), s.diversity)
	scorer.ScoreAll(candidates)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score() > candidates[j].Score()
	})

	selected := FitBudget(candidates, o.budget, s.minTruncate)

	s.metrics.Histogram(otel.MetricContextCandidates).Record(ctx, float64(len(candidates)))
	s.metrics.Histogram(otel.MetricContextSelected).Record(ctx, float64(len(selected)))
	span.SetAttributes(
		attribute.Int(otel.AttrContextCandidates, len(candidates)),
		attribute.Int(otel.AttrContextSelected, len(selected)),
	)
	logger.Debug("context selected",
		"candidates", len(candidates),
		"selected", len(selected),
		"budget", o.budget,
	)

	otel.EndSpan(span, nil)
	return selected, nil
}

func (s *ContextSelector) gather(ctx context.Context, input *GatherInput) ([]*Item, error) {
	sources := make([]Source, 0, 3)
	if s.documents != nil {
		sources = append(sources, s.documents)
	}
	if s.history != nil && input.ConversationID != "" {
		sources = append(sources, s.history)
	}
	if s.examples != nil {
		sources = append(sources, exampleGatherer{examples: s.examples})
	}
	return NewCompositeSource(s.logger, sources...).Gather(ctx, input)
}

// FitBudget 按顺序贪心选取条目，总 Token 不超过 budget。
//
// 遇到第一个放不下的条目时停止；若此时剩余预算大于 minTruncate，
// 先把该条目截断到恰好填满剩余预算再停止。被截断的条目是拷贝，
// 元数据中 truncated 为 true。
func FitBudget(items []*Item, budget, minTruncate int) []*Item {
	selected := make([]*Item, 0, len(items))
	used := 0

	for _, item := range items {
		if used+item.Tokens <= budget {
			selected = append(selected, item)
			used += item.Tokens
			continue
		}

		remaining := budget - used
		if remaining > minTruncate {
			truncated := item.Clone()
			truncated.Content = token.Truncate(item.Content, remaining)
			truncated.Tokens = min(token.Estimate(truncated.Content), remaining)
			truncated.SetMetadata("truncated", true)
			selected = append(selected, truncated)
		}
		break
	}
	return selected
}
