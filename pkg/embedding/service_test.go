package embedding

import (
	"context"
	"crypto/sha256"
	stderrors "errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/easyops/twinmcp/pkg/core/errors"
	"github.com/easyops/twinmcp/pkg/otel"
)

// fakeProvider 记录调用并按脚本返回错误
type fakeProvider struct {
	mu     sync.Mutex
	calls  int
	inputs [][]string
	errs   []error
	hook   func(call int)
}

func (f *fakeProvider) CreateEmbeddings(_ context.Context, model string, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.inputs = append(f.inputs, append([]string(nil), inputs...))
	hook := f.hook
	var err error
	if call < len(f.errs) {
		err = f.errs[call]
	}
	f.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if err != nil {
		return nil, err
	}

	out := make([][]float32, len(inputs))
	for i, in := range inputs {
		out[i] = vectorFor(model, in)
	}
	return out, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func vectorFor(model, content string) []float32 {
	h := sha256.Sum256([]byte(model + "|" + content))
	return []float32{float32(h[0]) / 255, float32(h[1]) / 255, float32(h[2]) / 255}
}

func newTestService(p Provider, opts ...Option) *Service {
	base := []Option{
		WithInterBatchDelay(0),
		WithRetry(3, time.Millisecond),
		WithRateLimiter(NewSlidingWindowLimiter(1000, time.Minute)),
	}
	return NewService(p, append(base, opts...)...)
}

func makeChunks(n int) []Chunk {
	chunks := make([]Chunk, n)
	for i := range chunks {
		chunks[i] = Chunk{ID: fmt.Sprintf("c%d", i), Content: fmt.Sprintf("chunk content %d", i)}
	}
	return chunks
}

func sameVector(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}

func TestGenerateEmbeddings_SingleChunkThenCached(t *testing.T) {
	provider := &fakeProvider{}
	cache := NewMemoryCache(100, time.Hour)
	svc := newTestService(provider, WithCache(cache))
	ctx := context.Background()

	req := &Request{Chunks: []Chunk{{ID: "a", Content: "hello world"}}, Model: "m1"}

	first, err := svc.GenerateEmbeddings(ctx, req)
	if err != nil {
		t.Fatalf("GenerateEmbeddings: %v", err)
	}
	if provider.callCount() != 1 {
		t.Fatalf("expected 1 provider call, got %d", provider.callCount())
	}
	if cache.Len() != 1 {
		t.Fatalf("expected 1 cache entry, got %d", cache.Len())
	}
	if len(first.Results) != 1 || first.Results[0].ChunkID != "a" {
		t.Fatalf("unexpected results %+v", first.Results)
	}
	if first.Results[0].Tokens != 3 {
		t.Fatalf("expected 3 tokens for 'hello world', got %d", first.Results[0].Tokens)
	}

	second, err := svc.GenerateEmbeddings(ctx, req)
	if err != nil {
		t.Fatalf("GenerateEmbeddings: %v", err)
	}
	if provider.callCount() != 1 {
		t.Fatalf("expected no additional provider calls, got %d total", provider.callCount())
	}
	if !sameVector(first.Results[0].Embedding, second.Results[0].Embedding) {
		t.Fatal("cached vector differs from original")
	}
}

func TestGenerateEmbeddings_CacheKeyedByModel(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(provider)
	ctx := context.Background()

	chunks := []Chunk{{ID: "a", Content: "same text"}}
	if _, err := svc.GenerateEmbeddings(ctx, &Request{Chunks: chunks, Model: "m1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GenerateEmbeddings(ctx, &Request{Chunks: chunks, Model: "m2"}); err != nil {
		t.Fatal(err)
	}
	if provider.callCount() != 2 {
		t.Fatalf("expected a provider call per model, got %d", provider.callCount())
	}
}

func TestGenerateEmbeddings_Validation(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(provider, WithMaxChunkChars(10))

	out, err := svc.GenerateEmbeddings(context.Background(), &Request{
		Chunks: []Chunk{
			{ID: "empty", Content: ""},
			{ID: "blank", Content: "   \n\t"},
			{ID: "long", Content: strings.Repeat("字", 25)},
			{Content: "no id"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	if len(out.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out.Results))
	}
	if len(provider.inputs) != 1 || len(provider.inputs[0]) != 2 {
		t.Fatalf("unexpected provider inputs %v", provider.inputs)
	}
	if provider.inputs[0][0] != strings.Repeat("字", 10) {
		t.Fatalf("long chunk not truncated to 10 chars: %q", provider.inputs[0][0])
	}
	if out.Results[1].ChunkID == "" {
		t.Fatal("missing chunk id should be generated")
	}
	if out.Results[0].Model != svc.DefaultModel() {
		t.Fatalf("expected default model %s, got %s", svc.DefaultModel(), out.Results[0].Model)
	}
}

func TestGenerateEmbeddings_BatchSizeClamped(t *testing.T) {
	tests := []struct {
		name      string
		batchSize int
		wantSizes []int
	}{
		{"above ceiling", 500, []int{100, 100, 50}},
		{"non-positive", -1, []int{100, 100, 50}},
		{"smaller", 120, []int{100, 100, 50}},
		{"caller size", 80, []int{80, 80, 80, 10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{}
			svc := newTestService(provider)

			out, err := svc.GenerateEmbeddings(context.Background(), &Request{
				Chunks:    makeChunks(250),
				BatchSize: tt.batchSize,
			})
			if err != nil {
				t.Fatal(err)
			}
			if len(out.Results) != 250 {
				t.Fatalf("expected 250 results, got %d", len(out.Results))
			}
			if len(provider.inputs) != len(tt.wantSizes) {
				t.Fatalf("expected %d calls, got %d", len(tt.wantSizes), len(provider.inputs))
			}
			for i, size := range tt.wantSizes {
				if len(provider.inputs[i]) != size {
					t.Errorf("batch %d size = %d, want %d", i, len(provider.inputs[i]), size)
				}
			}
		})
	}
}

func TestGenerateEmbeddings_OnlyMissesSentToProvider(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(provider)
	ctx := context.Background()

	chunks := makeChunks(4)
	if _, err := svc.GenerateEmbeddings(ctx, &Request{Chunks: chunks[:2]}); err != nil {
		t.Fatal(err)
	}
	out, err := svc.GenerateEmbeddings(ctx, &Request{Chunks: chunks})
	if err != nil {
		t.Fatal(err)
	}

	if len(out.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(out.Results))
	}
	last := provider.inputs[len(provider.inputs)-1]
	if len(last) != 2 || last[0] != chunks[2].Content || last[1] != chunks[3].Content {
		t.Fatalf("expected only misses, got %v", last)
	}
	// 结果保持请求顺序
	for i, r := range out.Results {
		if r.ChunkID != chunks[i].ID {
			t.Errorf("result %d = %s, want %s", i, r.ChunkID, chunks[i].ID)
		}
	}
}

func TestGenerateEmbeddings_RateLimitedBatchResubmitted(t *testing.T) {
	provider := &fakeProvider{errs: []error{errors.ErrRateLimited, errors.ErrRateLimited}}
	metrics := otel.NewInMemoryMetrics()
	svc := newTestService(provider, WithMetrics(metrics))

	out, err := svc.GenerateEmbeddings(context.Background(), &Request{Chunks: makeChunks(3)})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Results) != 3 || len(out.Failures) != 0 {
		t.Fatalf("expected full success, got %d results %d failures", len(out.Results), len(out.Failures))
	}
	if provider.callCount() != 3 {
		t.Fatalf("expected 3 calls, got %d", provider.callCount())
	}
	if got := metrics.CounterTotal(otel.MetricEmbeddingRequests); got != 3 {
		t.Fatalf("expected 3 request metrics, got %d", got)
	}
	// 每次重提交都在窗口内占一个名额
	inflight, ok := metrics.GaugeValue(otel.MetricEmbeddingRateLimitInFlight, otel.NewAttr("model", svc.DefaultModel()))
	if !ok || inflight != 3 {
		t.Fatalf("in-flight gauge = %v (set %v), want 3", inflight, ok)
	}
}

func TestGenerateEmbeddings_RateLimitRetriesBounded(t *testing.T) {
	limited := fmt.Errorf("openai: %w", errors.ErrRateLimited)
	provider := &fakeProvider{errs: []error{limited, limited, limited, limited, limited}}
	svc := newTestService(provider, WithRetry(2, time.Millisecond))

	out, err := svc.GenerateEmbeddings(context.Background(), &Request{Chunks: makeChunks(2)})
	if err != nil {
		t.Fatal(err)
	}
	if provider.callCount() != 3 {
		t.Fatalf("expected 1 call + 2 retries, got %d", provider.callCount())
	}
	if len(out.Results) != 0 || len(out.Failures) != 1 {
		t.Fatalf("expected the batch to fail, got %+v", out)
	}
	if !errors.IsRateLimited(out.Failures[0].Err) {
		t.Fatalf("expected rate limited failure, got %v", out.Failures[0].Err)
	}
}

func TestGenerateEmbeddings_PermanentErrorDropsBatch(t *testing.T) {
	provider := &fakeProvider{errs: []error{nil, errors.ErrInvalidRequest}}
	metrics := otel.NewInMemoryMetrics()
	svc := newTestService(provider, WithMetrics(metrics))

	out, err := svc.GenerateEmbeddings(context.Background(), &Request{
		Chunks:    makeChunks(6),
		BatchSize: 2,
	})
	if err != nil {
		t.Fatalf("permanent errors must not propagate: %v", err)
	}
	if provider.callCount() != 3 {
		t.Fatalf("expected no retry on permanent error, got %d calls", provider.callCount())
	}
	if len(out.Results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(out.Results))
	}
	if len(out.Failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(out.Failures))
	}

	f := out.Failures[0]
	if f.Batch != 1 || len(f.ChunkIDs) != 2 || f.ChunkIDs[0] != "c2" || f.ChunkIDs[1] != "c3" {
		t.Fatalf("unexpected failure %+v", f)
	}
	if !stderrors.Is(f, errors.ErrInvalidRequest) {
		t.Fatalf("failure should unwrap to provider error: %v", f)
	}
	if _, ok := out.ResultFor("c2"); ok {
		t.Fatal("failed chunk should not appear in results")
	}
	if out.FailedChunks() != 2 {
		t.Fatalf("FailedChunks = %d", out.FailedChunks())
	}
	if metrics.CounterTotal(otel.MetricEmbeddingBatchErrors) != 1 {
		t.Fatal("batch error metric not recorded")
	}
}

func TestGenerateEmbeddings_FailedBatchKeepsCacheHits(t *testing.T) {
	provider := &fakeProvider{errs: []error{nil, errors.ErrInvalidRequest}}
	svc := newTestService(provider)
	chunks := makeChunks(2)

	if _, err := svc.GenerateEmbeddings(context.Background(), &Request{Chunks: chunks[:1]}); err != nil {
		t.Fatal(err)
	}

	out, err := svc.GenerateEmbeddings(context.Background(), &Request{Chunks: chunks, BatchSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if provider.callCount() != 2 {
		t.Fatalf("expected 2 provider calls, got %d", provider.callCount())
	}

	r, ok := out.ResultFor("c0")
	if !ok || len(out.Results) != 1 {
		t.Fatalf("cached chunk should survive the failed batch, got %+v", out.Results)
	}
	if fmt.Sprint(r.Embedding) != fmt.Sprint(vectorFor(svc.DefaultModel(), chunks[0].Content)) {
		t.Errorf("unexpected cached vector %v", r.Embedding)
	}
	if len(out.Failures) != 1 || fmt.Sprint(out.Failures[0].ChunkIDs) != "[c1]" {
		t.Fatalf("only the miss should fail, got %+v", out.Failures)
	}
	if out.FailedChunks() != 1 {
		t.Errorf("FailedChunks = %d", out.FailedChunks())
	}

	stats := svc.GetEmbeddingStats(time.Hour)
	if stats.TotalChunks != 2 || !approx(stats.CacheHitRate, 0.5) || !approx(stats.ErrorRate, 1.0/3) {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestGenerateEmbeddings_InterBatchDelay(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(provider, WithInterBatchDelay(100*time.Millisecond))

	var delays []time.Duration
	svc.sleep = func(_ context.Context, d time.Duration) error {
		delays = append(delays, d)
		return nil
	}

	if _, err := svc.GenerateEmbeddings(context.Background(), &Request{Chunks: makeChunks(5), BatchSize: 2}); err != nil {
		t.Fatal(err)
	}
	if len(delays) != 2 {
		t.Fatalf("expected a delay between each of 3 batches, got %v", delays)
	}
	for _, d := range delays {
		if d != 100*time.Millisecond {
			t.Fatalf("unexpected delay %v", d)
		}
	}
}

func TestGenerateEmbeddings_CancelReturnsPartialOutcome(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	provider := &fakeProvider{hook: func(call int) {
		if call == 0 {
			cancel()
		}
	}}
	svc := newTestService(provider, WithInterBatchDelay(10*time.Millisecond))

	out, err := svc.GenerateEmbeddings(ctx, &Request{Chunks: makeChunks(4), BatchSize: 2})
	if !stderrors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("expected first batch results, got %d", len(out.Results))
	}
	if provider.callCount() != 1 {
		t.Fatalf("expected 1 call, got %d", provider.callCount())
	}
}

func TestEmbed_AlignsWithInput(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(provider)

	vectors, err := svc.Embed(context.Background(), "m1", []string{"alpha", "", "beta"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 3 {
		t.Fatalf("expected 3 vectors, got %d", len(vectors))
	}
	if !sameVector(vectors[0], vectorFor("m1", "alpha")) || !sameVector(vectors[2], vectorFor("m1", "beta")) {
		t.Fatal("vectors out of order")
	}
	if vectors[1] != nil {
		t.Fatal("empty text should map to nil vector")
	}
}

func TestEmbed_FailureReturnsError(t *testing.T) {
	provider := &fakeProvider{errs: []error{errors.ErrInvalidAPIKey}}
	svc := newTestService(provider)

	_, err := svc.Embed(context.Background(), "m1", []string{"alpha"})
	if !stderrors.Is(err, errors.ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
}

func TestGetEmbeddingStats(t *testing.T) {
	provider := &fakeProvider{}
	svc := newTestService(provider, WithDefaultModel("text-embedding-3-small"))
	ctx := context.Background()

	if stats := svc.GetEmbeddingStats(time.Hour); stats.TotalChunks != 0 || stats.CacheHitRate != 0 || len(stats.ModelUsage) != 0 {
		t.Fatalf("expected zero stats, got %+v", stats)
	}

	req := &Request{Chunks: []Chunk{{ID: "a", Content: "hello world"}}}
	if _, err := svc.GenerateEmbeddings(ctx, req); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.GenerateEmbeddings(ctx, req); err != nil {
		t.Fatal(err)
	}

	stats := svc.GetEmbeddingStats(time.Hour)
	if stats.TotalChunks != 2 {
		t.Errorf("TotalChunks = %d, want 2", stats.TotalChunks)
	}
	if stats.TotalTokens != 3 {
		t.Errorf("TotalTokens = %d, want 3", stats.TotalTokens)
	}
	wantCost := 3.0 / 1000 * 0.00002
	if math.Abs(stats.TotalCost-wantCost) > 1e-15 {
		t.Errorf("TotalCost = %g, want %g", stats.TotalCost, wantCost)
	}
	if stats.CacheHitRate != 0.5 {
		t.Errorf("CacheHitRate = %v, want 0.5", stats.CacheHitRate)
	}
	usage := stats.ModelUsage["text-embedding-3-small"]
	if usage.Requests != 1 || usage.Tokens != 3 {
		t.Errorf("ModelUsage = %+v", usage)
	}
	if stats.ErrorRate != 0 {
		t.Errorf("ErrorRate = %v, want 0", stats.ErrorRate)
	}
}

func TestGenerateEmbeddings_WaitsOnLimiter(t *testing.T) {
	provider := &fakeProvider{}
	clock := newFakeClock()
	limiter := NewSlidingWindowLimiter(1, time.Second, WithClock(clock.Now, clock.Sleep))
	metrics := otel.NewInMemoryMetrics()
	svc := newTestService(provider, WithRateLimiter(limiter), WithMetrics(metrics))

	if _, err := svc.GenerateEmbeddings(context.Background(), &Request{Chunks: makeChunks(3), BatchSize: 1}); err != nil {
		t.Fatal(err)
	}
	if provider.callCount() != 3 {
		t.Fatalf("expected 3 calls, got %d", provider.callCount())
	}
	if clock.Elapsed() != 2*time.Second {
		t.Fatalf("expected 2s of limiter waits, got %v", clock.Elapsed())
	}
	if metrics.CounterTotal(otel.MetricEmbeddingRateLimitWaits) != 2 {
		t.Fatalf("expected 2 wait metrics, got %d", metrics.CounterTotal(otel.MetricEmbeddingRateLimitWaits))
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}
