package context

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/easyops/twinmcp/pkg/core/config"
	"github.com/easyops/twinmcp/pkg/core/errors"
	"github.com/easyops/twinmcp/pkg/core/token"
	"github.com/easyops/twinmcp/pkg/otel"
)

// Constraints 是优化约束。
type Constraints struct {
	// MaxTokens 输出 Token 上限，nil 表示不限制。
	MaxTokens *int

	// MinQuality 质量门槛，nil 时使用优化器默认值。
	MinQuality *float64
}

// WithMaxTokens 返回设置了 Token 上限的约束。
func (c Constraints) WithMaxTokens(n int) Constraints {
	c.MaxTokens = &n
	return c
}

// WithMinQuality 返回设置了质量门槛的约束。
func (c Constraints) WithMinQuality(q float64) Constraints {
	c.MinQuality = &q
	return c
}

// QualityAssessment 是质量评估结果。
type QualityAssessment struct {
	Score        float64 `json:"score"`
	Relevance    float64 `json:"relevance"`
	Diversity    float64 `json:"diversity"`
	Completeness float64 `json:"completeness"`
}

// QualityGateError 表示优化结果低于质量门槛。
//
// Context 是被拒绝的优化结果，调用方可以自行决定是否降级使用。
type QualityGateError struct {
	Assessment QualityAssessment
	MinQuality float64
	Context    *AssembledContext
}

func (e *QualityGateError) Error() string {
	return fmt.Sprintf("%s: score %.3f < %.3f", errors.ErrQualityGate, e.Assessment.Score, e.MinQuality)
}

func (e *QualityGateError) Unwrap() error {
	return errors.ErrQualityGate
}

// Optimizer 对已组装的上下文去重、重排、限类型、截预算并做质量把关。
//
// 只处理传入的条目，不调用任何外部服务。
type Optimizer struct {
	maxPerType int
	minQuality float64

	logger  otel.Logger
	metrics otel.Metrics
	tracer  otel.Tracer
}

// OptimizerOption 配置 Optimizer。
type OptimizerOption func(*Optimizer)

// WithMaxPerType 设置每种类型保留的最大条目数。
func WithMaxPerType(n int) OptimizerOption {
	return func(o *Optimizer) {
		o.maxPerType = n
	}
}

// WithDefaultMinQuality 设置约束未指定时的质量门槛。
func WithDefaultMinQuality(q float64) OptimizerOption {
	return func(o *Optimizer) {
		o.minQuality = q
	}
}

// WithOptimizerLogger 设置日志。
func WithOptimizerLogger(l otel.Logger) OptimizerOption {
	return func(o *Optimizer) {
		o.logger = l
	}
}

// WithOptimizerMetrics 设置指标。
func WithOptimizerMetrics(m otel.Metrics) OptimizerOption {
	return func(o *Optimizer) {
		o.metrics = m
	}
}

// WithOptimizerTracer 设置追踪器。
func WithOptimizerTracer(t otel.Tracer) OptimizerOption {
	return func(o *Optimizer) {
		o.tracer = t
	}
}

// NewOptimizer 创建优化器。
func NewOptimizer(opts ...OptimizerOption) *Optimizer {
	defaults := config.OptimizerConfig{}.WithDefaults()

	o := &Optimizer{
		maxPerType: defaults.MaxPerType,
		minQuality: defaults.MinQuality,
		logger:     otel.NewNoopLogger(),
		metrics:    otel.NewNoopMetrics(),
		tracer:     otel.NewNoopTracer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Optimize 依次执行句子去重、按时间倒序、类型限额、预算截取和质量把关。
//
// 输入不会被修改。质量分低于门槛时返回 *QualityGateError。
func (o *Optimizer) Optimize(ctx context.Context, in *AssembledContext, c Constraints) (*AssembledContext, error) {
	if in == nil {
		in = &AssembledContext{}
	}
	minQuality := o.minQuality
	if c.MinQuality != nil {
		minQuality = *c.MinQuality
	}

	ctx, span := o.tracer.Start(ctx, "context.optimize",
		otel.WithAttributes(attribute.Int(otel.AttrContextCandidates, len(in.Items))),
	)

	var out *AssembledContext
	if len(in.Items) == 0 {
		out = o.optimizeContent(in.Content, c.MaxTokens)
	} else {
		items := dedupeItems(in.Items)
		items = sortByRecency(items)
		items = capPerType(items, o.maxPerType)
		if c.MaxTokens != nil {
			items = fitStrict(items, *c.MaxTokens)
		}
		content := Render(items)
		out = &AssembledContext{
			Content: content,
			Items:   items,
			Tokens:  token.Estimate(content),
		}
	}

	quality := Assess(out.Items)
	out.Metadata = AssemblyMetadata{
		ItemCount:        len(out.Items),
		CompressionRatio: compressionRatio(inputTokens(in), out.Tokens),
		Quality:          &quality,
	}

	o.metrics.Histogram(otel.MetricContextQualityScore).Record(ctx, quality.Score)
	span.SetAttributes(
		attribute.Int(otel.AttrContextSelected, len(out.Items)),
		attribute.Int(otel.AttrContextTokens, out.Tokens),
		attribute.Float64(otel.AttrContextQuality, quality.Score),
	)

	if quality.Score < minQuality {
		o.metrics.Counter(otel.MetricContextQualityRejections).Add(ctx, 1)
		o.logger.WithContext(ctx).Warn("context rejected by quality gate",
			"score", quality.Score,
			"min_quality", minQuality,
			"items", len(out.Items),
		)
		err := &QualityGateError{Assessment: quality, MinQuality: minQuality, Context: out}
		otel.EndSpan(span, err)
		return nil, err
	}

	otel.EndSpan(span, nil)
	return out, nil
}

// optimizeContent 处理只有文本没有条目的输入。
func (o *Optimizer) optimizeContent(content string, maxTokens *int) *AssembledContext {
	content, _ = DedupeSentences(content, make(map[string]bool))
	if maxTokens != nil {
		content = token.Truncate(content, *maxTokens)
	}
	return &AssembledContext{Content: content, Tokens: token.Estimate(content)}
}

// Assess 计算质量评估。
func Assess(items []*Item) QualityAssessment {
	q := QualityAssessment{Relevance: 0.5}
	if n := len(items); n > 0 {
		total := 0.0
		types := make(map[ItemType]bool)
		for _, it := range items {
			total += it.RelevanceScore
			types[it.Type] = true
		}
		q.Relevance = total / float64(n)
		q.Diversity = min(1.0, float64(len(types))/4)
		q.Completeness = min(1.0, float64(n)/3)
	}
	q.Score = (q.Relevance + q.Diversity + q.Completeness) / 3
	return q
}

var sentencePattern = regexp.MustCompile(`[^.!?。！？]+[.!?。！？]*`)

// DedupeSentences 按终止标点切句，丢弃在 seen 中出现过的句子并登记新句子。
//
// 没有重复时原样返回文本；changed 表示是否删除了句子。
func DedupeSentences(text string, seen map[string]bool) (result string, changed bool) {
	var kept []string
	for _, raw := range sentencePattern.FindAllString(text, -1) {
		sentence := strings.TrimSpace(raw)
		if sentence == "" {
			continue
		}
		if seen[sentence] {
			changed = true
			continue
		}
		seen[sentence] = true
		kept = append(kept, sentence)
	}
	if !changed {
		return text, false
	}
	return strings.Join(kept, " "), true
}

// dedupeItems 跨条目去除完全相同的句子，只改写文本不增删条目。
//
// 句子全部重复的条目保留在结果中，内容为空、Token 数为 0，渲染时不输出。
func dedupeItems(items []*Item) []*Item {
	seen := make(map[string]bool)
	out := make([]*Item, len(items))
	for i, it := range items {
		clone := it.Clone()
		if content, changed := DedupeSentences(it.Content, seen); changed {
			clone.Content = content
			clone.Tokens = token.Estimate(content)
		}
		out[i] = clone
	}
	return out
}

// sortByRecency 按时间戳倒序稳定排序，没有时间戳的排在最后。
func sortByRecency(items []*Item) []*Item {
	sort.SliceStable(items, func(i, j int) bool {
		ti, iok := items[i].Timestamp()
		tj, jok := items[j].Timestamp()
		if iok != jok {
			return iok
		}
		return iok && ti.After(tj)
	})
	return items
}

// capPerType 每种类型最多保留 limit 个，超出的直接丢弃。
func capPerType(items []*Item, limit int) []*Item {
	if limit <= 0 {
		return items
	}
	counts := make(map[ItemType]int)
	out := items[:0]
	for _, it := range items {
		if counts[it.Type] >= limit {
			continue
		}
		counts[it.Type]++
		out = append(out, it)
	}
	return out
}

// fitStrict 按顺序贪心选取，遇到第一个放不下的条目即停止，不做截断。
//
// 预算按渲染后的文本计算，分段标题和分隔符也计入。
func fitStrict(items []*Item, maxTokens int) []*Item {
	for i := range items {
		if token.Estimate(Render(items[:i+1])) > maxTokens {
			return items[:i]
		}
	}
	return items
}

func inputTokens(in *AssembledContext) int {
	if in.Tokens > 0 {
		return in.Tokens
	}
	if len(in.Items) > 0 {
		return token.Estimate(Render(in.Items))
	}
	return token.Estimate(in.Content)
}

func compressionRatio(in, out int) float64 {
	if in == 0 {
		return 1.0
	}
	return float64(out) / float64(in)
}
