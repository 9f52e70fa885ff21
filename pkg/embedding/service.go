package embedding

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/easyops/twinmcp/pkg/core/config"
	"github.com/easyops/twinmcp/pkg/core/errors"
	"github.com/easyops/twinmcp/pkg/core/retry"
	"github.com/easyops/twinmcp/pkg/core/token"
	"github.com/easyops/twinmcp/pkg/otel"
)

// Provider 嵌入提供商
//
// 限速错误必须能被 errors.IsRateLimited 识别。
type Provider interface {
	CreateEmbeddings(ctx context.Context, model string, inputs []string) ([][]float32, error)
}

// Service 带缓存与限速的批量嵌入服务
type Service struct {
	provider Provider
	cache    Cache
	limiter  RateLimiter
	stats    *StatsLog
	costs    CostTable

	model           string
	batchSize       int
	maxChunkChars   int
	ttl             time.Duration
	interBatchDelay time.Duration
	maxRetries      int
	retryDelay      time.Duration

	logger  otel.Logger
	metrics otel.Metrics
	tracer  otel.Tracer

	sleep func(ctx context.Context, d time.Duration) error
}

// NewService 创建嵌入服务
func NewService(provider Provider, opts ...Option) *Service {
	defaults := config.EmbeddingConfig{}.WithDefaults()

	s := &Service{
		provider:        provider,
		costs:           CostTable(defaults.CostPer1K),
		model:           defaults.Model,
		batchSize:       MaxBatchSize,
		maxChunkChars:   defaults.MaxChunkChars,
		ttl:             defaults.CacheTTL,
		interBatchDelay: defaults.InterBatchDelay,
		maxRetries:      defaults.MaxRetries,
		retryDelay:      defaults.RetryDelay,
		logger:          otel.NewNoopLogger(),
		metrics:         otel.NewNoopMetrics(),
		tracer:          otel.NewNoopTracer(),
		sleep:           sleepContext,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cache == nil {
		s.cache = NewMemoryCache(0, s.ttl)
	}
	if s.limiter == nil {
		s.limiter = NewSlidingWindowLimiter(defaults.RateLimit.Requests, defaults.RateLimit.Window)
	}
	if s.stats == nil {
		s.stats = NewStatsLog(DefaultStatsCapacity)
	}

	return s
}

// DefaultModel 返回默认嵌入模型
func (s *Service) DefaultModel() string {
	return s.model
}

// GenerateEmbeddings 为请求中的分块生成嵌入
//
// 被提供商拒绝的批次中未命中缓存的分块记入 Outcome.Failures，命中的照常返回，其余批次照常处理。
// 只有调用方取消上下文时才返回错误，此时 Outcome 包含已完成的部分。
func (s *Service) GenerateEmbeddings(ctx context.Context, req *Request) (*Outcome, error) {
	model := req.Model
	if model == "" {
		model = s.model
	}
	batchSize := s.batchSize
	if req.BatchSize != 0 {
		batchSize = clampBatchSize(req.BatchSize)
	}

	chunks := s.validate(req.Chunks)
	batches := splitBatches(chunks, batchSize)

	ctx, span := s.tracer.Start(ctx, "embedding.generate",
		otel.WithAttributes(
			otel.EmbeddingModel(model),
			otel.EmbeddingChunks(len(chunks)),
			attribute.Int(otel.AttrEmbeddingBatches, len(batches)),
			attribute.Int(otel.AttrEmbeddingBatchSize, batchSize),
		),
	)

	outcome := &Outcome{}
	for i, batch := range batches {
		if i > 0 && s.interBatchDelay > 0 {
			if err := s.sleep(ctx, s.interBatchDelay); err != nil {
				err = errors.WrapError(err, "generate embeddings")
				otel.EndSpan(span, err)
				return outcome, err
			}
		}

		results, failed, err := s.processBatch(ctx, i, model, batch)
		outcome.Results = append(outcome.Results, results...)
		if err != nil {
			if ctx.Err() != nil {
				err = errors.WrapError(ctx.Err(), "generate embeddings")
				otel.EndSpan(span, err)
				return outcome, err
			}
			outcome.Failures = append(outcome.Failures, BatchError{
				Batch:    i,
				ChunkIDs: failed,
				Err:      err,
			})
		}
	}

	span.SetAttributes(attribute.Int(otel.AttrEmbeddingFailures, outcome.FailedChunks()))
	otel.EndSpan(span, nil)
	return outcome, nil
}

// Embed 为一组文本生成向量，返回值与 texts 一一对应
//
// 空文本对应 nil 向量；任一批次失败时返回第一个失败原因。
func (s *Service) Embed(ctx context.Context, model string, texts []string) ([][]float32, error) {
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = Chunk{ID: strconv.Itoa(i), Content: text}
	}

	outcome, err := s.GenerateEmbeddings(ctx, &Request{Chunks: chunks, Model: model})
	if err != nil {
		return nil, err
	}
	if len(outcome.Failures) > 0 {
		return nil, fmt.Errorf("%w: %v", errors.ErrEmbeddingFailed, outcome.Failures[0])
	}

	vectors := make([][]float32, len(texts))
	for _, r := range outcome.Results {
		if i, err := strconv.Atoi(r.ChunkID); err == nil && i >= 0 && i < len(vectors) {
			vectors[i] = r.Embedding
		}
	}
	return vectors, nil
}

// GetEmbeddingStats 汇总尾随 window 内的统计
func (s *Service) GetEmbeddingStats(window time.Duration) Stats {
	return s.stats.Summarize(window)
}

// validate 丢弃空白分块，截断超长分块，补全缺失的 ID
func (s *Service) validate(chunks []Chunk) []Chunk {
	valid := make([]Chunk, 0, len(chunks))
	for _, c := range chunks {
		if strings.TrimSpace(c.Content) == "" {
			s.logger.Debug("dropping empty chunk", "chunk", c.ID)
			continue
		}
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if s.maxChunkChars > 0 && utf8.RuneCountInString(c.Content) > s.maxChunkChars {
			s.logger.Warn("truncating oversized chunk",
				"chunk", c.ID,
				"chars", utf8.RuneCountInString(c.Content),
				"max", s.maxChunkChars,
			)
			c.Content = truncateRunes(c.Content, s.maxChunkChars)
		}
		valid = append(valid, c)
	}
	return valid
}

// processBatch 处理一个批次：查缓存、限速、调用提供商、写缓存、记录统计
//
// 提供商失败时仍返回缓存命中的结果，failed 为未拿到向量的分块 ID。
func (s *Service) processBatch(ctx context.Context, batchIdx int, model string, batch []Chunk) ([]Result, []string, error) {
	start := time.Now()
	found := make([]*Result, len(batch))

	misses := make([]int, 0, len(batch))
	for i, c := range batch {
		cached, ok, err := s.cache.Get(ctx, Key(c.Content, model))
		if err != nil {
			s.logger.Warn("embedding cache read failed", "chunk", c.ID, "error", err)
		}
		if ok {
			cached.ChunkID = c.ID
			found[i] = cached
			continue
		}
		misses = append(misses, i)
	}

	hits := len(batch) - len(misses)
	s.tracer.SpanFromContext(ctx).AddEvent("embedding.batch",
		attribute.Int("batch", batchIdx),
		attribute.Int(otel.AttrEmbeddingCacheHits, hits),
	)
	s.metrics.Counter(otel.MetricEmbeddingCacheHits).Add(ctx, int64(hits), otel.NewAttr("model", model))
	s.metrics.Counter(otel.MetricEmbeddingCacheMisses).Add(ctx, int64(len(misses)), otel.NewAttr("model", model))

	if len(misses) == 0 {
		s.stats.Append(BatchStat{Model: model, Chunks: len(batch), CacheHits: hits})
		return collect(found), nil, nil
	}

	inputs := make([]string, len(misses))
	for j, i := range misses {
		inputs[j] = batch[i].Content
	}

	vectors, err := s.callProvider(ctx, batchIdx, model, inputs)
	if err == nil && len(vectors) != len(inputs) {
		err = fmt.Errorf("%w: got %d vectors for %d inputs", errors.ErrInvalidResponse, len(vectors), len(inputs))
	}
	if err != nil {
		failed := make([]string, len(misses))
		for j, i := range misses {
			failed[j] = batch[i].ID
		}
		s.stats.Append(BatchStat{
			Model:          model,
			Chunks:         hits,
			CacheHits:      hits,
			Errors:         len(misses),
			ProviderCalled: true,
		})
		s.metrics.Counter(otel.MetricEmbeddingBatchErrors).Add(ctx, 1, otel.NewAttr("model", model))
		if ctx.Err() == nil {
			s.logger.WithContext(ctx).Error("dropping embedding batch",
				"batch", batchIdx,
				"model", model,
				"chunks", len(misses),
				"cache_hits", hits,
				"error", err,
			)
		}
		return collect(found), failed, err
	}

	elapsed := time.Since(start)
	perChunk := elapsed / time.Duration(len(misses))

	var tokens int
	var cost float64
	for j, i := range misses {
		c := batch[i]
		n := token.Estimate(c.Content)
		r := Result{
			ChunkID:        c.ID,
			Embedding:      vectors[j],
			Model:          model,
			Tokens:         n,
			Cost:           s.costs.Cost(model, n),
			ProcessingTime: perChunk,
		}
		if err := s.cache.SetNX(ctx, Key(c.Content, model), &r, s.ttl); err != nil {
			s.logger.Warn("embedding cache write failed", "chunk", c.ID, "error", err)
		}
		found[i] = &r
		tokens += n
		cost += r.Cost
	}

	s.stats.Append(BatchStat{
		Model:             model,
		Chunks:            len(batch),
		Tokens:            tokens,
		Cost:              cost,
		AvgProcessingTime: perChunk,
		CacheHits:         hits,
		ProviderCalled:    true,
	})
	s.metrics.Counter(otel.MetricEmbeddingTokens).Add(ctx, int64(tokens), otel.NewAttr("model", model))
	s.metrics.Histogram(otel.MetricEmbeddingBatchDuration).Record(ctx, float64(elapsed.Microseconds())/1000,
		otel.NewAttr("model", model),
	)

	return collect(found), nil, nil
}

// collect 按批次顺序取出已拿到的结果
func collect(found []*Result) []Result {
	results := make([]Result, 0, len(found))
	for _, r := range found {
		if r != nil {
			results = append(results, *r)
		}
	}
	return results
}

// callProvider 限速后调用提供商；被限速时按退避重提交同一批次
func (s *Service) callProvider(ctx context.Context, batchIdx int, model string, inputs []string) ([][]float32, error) {
	policy := retry.Policy{
		MaxRetries: s.maxRetries,
		BaseDelay:  s.retryDelay,
		Retryable:  errors.IsRateLimited,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			s.logger.Warn("embedding provider rate limited, resubmitting batch",
				"batch", batchIdx,
				"model", model,
				"attempt", attempt,
				"wait", wait,
			)
		},
	}

	var vectors [][]float32
	err := policy.Do(ctx, func() error {
		waited, err := s.limiter.Wait(ctx, model)
		if waited > 0 {
			s.metrics.Counter(otel.MetricEmbeddingRateLimitWaits).Add(ctx, 1, otel.NewAttr("model", model))
			s.logger.Debug("rate limiter wait", "model", model, "waited", waited)
		}
		if err != nil {
			return err
		}
		if r, ok := s.limiter.(WindowReporter); ok {
			s.metrics.Gauge(otel.MetricEmbeddingRateLimitInFlight).Set(ctx, float64(r.InFlight(model)), otel.NewAttr("model", model))
		}

		s.metrics.Counter(otel.MetricEmbeddingRequests).Add(ctx, 1, otel.NewAttr("model", model))
		vectors, err = s.provider.CreateEmbeddings(ctx, model, inputs)
		return err
	})
	return vectors, err
}

// splitBatches 按 size 切分
func splitBatches(chunks []Chunk, size int) [][]Chunk {
	var batches [][]Chunk
	for start := 0; start < len(chunks); start += size {
		end := start + size
		if end > len(chunks) {
			end = len(chunks)
		}
		batches = append(batches, chunks[start:end])
	}
	return batches
}

// truncateRunes 截断到至多 n 个字符
func truncateRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
