package context

import (
	"context"
	"math"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/easyops/twinmcp/pkg/core/errors"
	"github.com/easyops/twinmcp/pkg/otel"
	"github.com/easyops/twinmcp/pkg/store"
)

// GatherInput 包含收集候选所需的输入。
type GatherInput struct {
	// Query 当前查询。
	Query string

	// ConversationID 会话标识，为空时不读取历史。
	ConversationID string

	// Intent 分类得到的意图。
	Intent QueryIntent
}

// Source 定义候选条目来源。
type Source interface {
	// Name 返回来源名称，用于日志。
	Name() string

	// Gather 收集候选条目。
	Gather(ctx context.Context, input *GatherInput) ([]*Item, error)
}

// DocumentSource 从文档库按关键词检索，命中文档成为 documentation 条目。
type DocumentSource struct {
	store     store.DocumentStore
	limit     int
	relevance float64
}

// NewDocumentSource 创建文档来源；relevance 是所有命中共用的基线相关度。
func NewDocumentSource(s store.DocumentStore, limit int, relevance float64) *DocumentSource {
	if limit <= 0 {
		limit = store.DefaultSearchLimit
	}
	return &DocumentSource{store: s, limit: limit, relevance: relevance}
}

// Name 返回来源名称。
func (s *DocumentSource) Name() string { return "documents" }

// Gather 检索文档。
func (s *DocumentSource) Gather(ctx context.Context, input *GatherInput) ([]*Item, error) {
	docs, err := s.store.Search(ctx, input.Query, s.limit)
	if err != nil {
		return nil, errors.WrapError(err, "search documents")
	}

	items := make([]*Item, 0, len(docs))
	for _, doc := range docs {
		content := doc.Content
		if doc.Title != "" {
			content = doc.Title + "\n" + content
		}

		item := NewItem(ItemTypeDocumentation, content,
			WithItemID(doc.ID),
			WithRelevance(s.relevance),
			WithMetadata(doc.Metadata),
			WithMetadata(map[string]any{"source": doc.Source}),
		)
		if !doc.UpdatedAt.IsZero() {
			item.SetMetadata(MetaTimestamp, doc.UpdatedAt)
		}
		items = append(items, item)
	}
	return items, nil
}

// Embedder 为一组文本生成向量，返回值与 texts 一一对应，空文本对应 nil。
type Embedder interface {
	Embed(ctx context.Context, model string, texts []string) ([][]float32, error)
}

// HistorySource 按与查询的余弦相似度筛选会话历史。
//
// 相似度低于阈值的消息直接排除，保留下来的消息以相似度作为相关度。
type HistorySource struct {
	store     store.HistoryStore
	embedder  Embedder
	model     string
	limit     int
	threshold float64
}

// NewHistorySource 创建历史来源；model 为空时使用嵌入服务的默认模型。
func NewHistorySource(s store.HistoryStore, embedder Embedder, model string, limit int, threshold float64) *HistorySource {
	if limit <= 0 {
		limit = store.DefaultHistoryLimit
	}
	return &HistorySource{
		store:     s,
		embedder:  embedder,
		model:     model,
		limit:     limit,
		threshold: threshold,
	}
}

// Name 返回来源名称。
func (s *HistorySource) Name() string { return "history" }

// Gather 读取最近消息并计算相似度。
func (s *HistorySource) Gather(ctx context.Context, input *GatherInput) ([]*Item, error) {
	if input.ConversationID == "" {
		return nil, nil
	}

	msgs, err := s.store.Messages(ctx, input.ConversationID, s.limit)
	if err != nil {
		return nil, errors.WrapError(err, "load history")
	}
	if len(msgs) == 0 {
		return nil, nil
	}

	// 查询与所有消息一次嵌入，第 0 个是查询
	texts := make([]string, 0, len(msgs)+1)
	texts = append(texts, input.Query)
	for _, m := range msgs {
		texts = append(texts, m.Content)
	}

	vectors, err := s.embedder.Embed(ctx, s.model, texts)
	if err != nil {
		return nil, errors.WrapError(err, "embed history")
	}
	queryVec := vectors[0]
	if queryVec == nil {
		return nil, nil
	}

	var items []*Item
	for i, m := range msgs {
		sim := CosineSimilarity(queryVec, vectors[i+1])
		if sim < s.threshold {
			continue
		}

		opts := []ItemOption{
			WithRelevance(sim),
			WithMetadata(map[string]any{
				"role":            string(m.Role),
				"conversation_id": m.ConversationID,
				"similarity":      sim,
			}),
		}
		if m.ID != "" {
			opts = append(opts, WithItemID(m.ID))
		}
		if !m.Timestamp.IsZero() {
			opts = append(opts, WithTimestamp(m.Timestamp))
		}
		items = append(items, NewItem(ItemTypeHistory, m.Content, opts...))
	}
	return items, nil
}

// CosineSimilarity 计算两个向量的余弦相似度，长度不同或零向量时为 0。
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ExampleSource 示例库扩展点。
type ExampleSource interface {
	Examples(ctx context.Context, query string, intent QueryIntent) ([]*Item, error)
}

// NoopExampleSource 是默认示例库，总是返回空。
type NoopExampleSource struct{}

// Examples 返回空结果。
func (NoopExampleSource) Examples(context.Context, string, QueryIntent) ([]*Item, error) {
	return nil, nil
}

// exampleGatherer 把 ExampleSource 适配为 Source。
type exampleGatherer struct {
	examples ExampleSource
}

func (g exampleGatherer) Name() string { return "examples" }

func (g exampleGatherer) Gather(ctx context.Context, input *GatherInput) ([]*Item, error) {
	items, err := g.examples.Examples(ctx, input.Query, input.Intent)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		if it.Type == "" {
			it.Type = ItemTypeExample
		}
	}
	return items, nil
}

// CompositeSource 并发调用多个来源并按来源顺序拼接结果。
//
// 单个来源失败只记录日志，不影响其他来源。
type CompositeSource struct {
	sources []Source
	logger  otel.Logger
}

// NewCompositeSource 创建组合来源。
func NewCompositeSource(logger otel.Logger, sources ...Source) *CompositeSource {
	if logger == nil {
		logger = otel.NewNoopLogger()
	}
	return &CompositeSource{sources: sources, logger: logger}
}

// Name 返回来源名称。
func (c *CompositeSource) Name() string {
	names := make([]string, len(c.sources))
	for i, s := range c.sources {
		names[i] = s.Name()
	}
	return strings.Join(names, "+")
}

// Gather 并发收集。
//
// 来源失败不取消其他来源，只有调用方取消时整体返回错误。
func (c *CompositeSource) Gather(ctx context.Context, input *GatherInput) ([]*Item, error) {
	results := make([][]*Item, len(c.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range c.sources {
		i, src := i, src
		g.Go(func() error {
			start := time.Now()
			items, err := src.Gather(gctx, input)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.logger.WithContext(ctx).Warn("context source failed",
					"source", src.Name(),
					"error", err,
				)
				return nil
			}
			c.logger.WithContext(ctx).Debug("context source gathered",
				"source", src.Name(),
				"items", len(items),
				"duration", time.Since(start),
			)
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []*Item
	for _, items := range results {
		all = append(all, items...)
	}
	return all, nil
}

// 编译时接口检查
var _ Source = (*DocumentSource)(nil)
var _ Source = (*HistorySource)(nil)
var _ Source = exampleGatherer{}
var _ Source = (*CompositeSource)(nil)
var _ ExampleSource = NoopExampleSource{}
