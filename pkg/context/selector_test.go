package context_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	twctx "github.com/easyops/twinmcp/pkg/context"
	"github.com/easyops/twinmcp/pkg/core/config"
	"github.com/easyops/twinmcp/pkg/otel"
	"github.com/easyops/twinmcp/pkg/store"
)

var testNow = time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)

func newTestSelector(t *testing.T, mem *store.MemoryStore, embedder twctx.Embedder, opts ...twctx.SelectorOption) *twctx.ContextSelector {
	t.Helper()
	base := []twctx.SelectorOption{
		twctx.WithDocumentSource(twctx.NewDocumentSource(mem, 10, 0.8)),
		twctx.WithHistorySource(twctx.NewHistorySource(mem, embedder, "m1", 20, 0.6)),
		twctx.WithSelectorClock(func() time.Time { return testNow }),
	}
	return twctx.NewContextSelector(append(base, opts...)...)
}

func putDoc(t *testing.T, mem *store.MemoryStore, id, content string, updated time.Time) {
	t.Helper()
	if _, err := mem.PutDocument(context.Background(), store.Document{ID: id, Content: content, UpdatedAt: updated}); err != nil {
		t.Fatal(err)
	}
}

func TestSelectContext_NoConversationNoHistory(t *testing.T) {
	mem := store.NewMemoryStore()
	seedHistory(t, mem, "conv-1", "redis ttl question", "redis ttl answer")
	putDoc(t, mem, "d1", "Redis TTL guide.", testNow.Add(-time.Hour))
	embedder := &fakeEmbedder{vectors: map[string][]float32{"redis ttl": {1, 0}}}

	selector := newTestSelector(t, mem, embedder)
	items, err := selector.SelectContext(context.Background(), "redis ttl")
	if err != nil {
		t.Fatal(err)
	}

	for _, it := range items {
		if it.Type == twctx.ItemTypeHistory {
			t.Fatalf("history item selected without a conversation id: %+v", it)
		}
	}
	if len(items) != 1 {
		t.Errorf("expected only the document, got %d items", len(items))
	}
	if embedder.calls != 0 {
		t.Error("history embeddings should not be computed")
	}
}

func TestSelectContext_ScoresAndRanks(t *testing.T) {
	mem := store.NewMemoryStore()
	putDoc(t, mem, "d1", "Redis TTL guide.", testNow.Add(-2*time.Hour))
	seedHistory(t, mem, "conv-1", "we discussed redis ttl", "unrelated chatter")

	embedder := &fakeEmbedder{vectors: map[string][]float32{
		"redis ttl":              {1, 0},
		"we discussed redis ttl": unitWithCosine(0.9),
		"unrelated chatter":      unitWithCosine(0.1),
	}}

	selector := newTestSelector(t, mem, embedder)
	items, err := selector.SelectContext(context.Background(), "redis ttl", twctx.WithConversationID("conv-1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}

	// history: 0.9*0.5 + 1.0*0.2 + 0.7*0.2 + 0.7*0.1 = 0.86
	// documentation: 0.8*0.5 + 1.0*0.2 + 0.9*0.2 + 0.7*0.1 = 0.85
	if items[0].Type != twctx.ItemTypeHistory || items[1].Type != twctx.ItemTypeDocumentation {
		t.Fatalf("unexpected order: %s, %s", items[0].Type, items[1].Type)
	}
	if !approxEqual(items[0].Score(), 0.86) {
		t.Errorf("history score = %v, want 0.86", items[0].Score())
	}
	if !approxEqual(items[1].Score(), 0.85) {
		t.Errorf("documentation score = %v, want 0.85", items[1].Score())
	}
}

func TestSelectContext_RecencyBuckets(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want float64
	}{
		{time.Hour, 1.0},
		{3 * 24 * time.Hour, 0.8},
		{10 * 24 * time.Hour, 0.6},
		{90 * 24 * time.Hour, 0.4},
	}

	for _, tt := range tests {
		t.Run(tt.age.String(), func(t *testing.T) {
			mem := store.NewMemoryStore()
			putDoc(t, mem, "d1", "kafka consumer groups", testNow.Add(-tt.age))

			items, err := newTestSelector(t, mem, &fakeEmbedder{}).
				SelectContext(context.Background(), "kafka")
			if err != nil || len(items) != 1 {
				t.Fatalf("items=%v err=%v", items, err)
			}
			want := 0.8*0.5 + tt.want*0.2 + 0.9*0.2 + 0.7*0.1
			if !approxEqual(items[0].Score(), want) {
				t.Errorf("score = %v, want %v", items[0].Score(), want)
			}
		})
	}
}

func TestSelectContext_ClassifierFailureIsNotFatal(t *testing.T) {
	mem := store.NewMemoryStore()
	putDoc(t, mem, "d1", "grpc deadlines", testNow)
	metrics := otel.NewInMemoryMetrics()

	selector := newTestSelector(t, mem, &fakeEmbedder{},
		twctx.WithClassifier(twctx.NewLLMClassifier(&fakeLLM{content: "not json at all"})),
		twctx.WithSelectorMetrics(metrics),
	)
	items, err := selector.SelectContext(context.Background(), "grpc deadlines")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Errorf("expected 1 item, got %d", len(items))
	}
	if got := metrics.HistogramValues(otel.MetricContextSelected); len(got) != 1 || got[0] != 1 {
		t.Errorf("selected metric = %v", got)
	}
}

func TestSelectContext_RespectsBudget(t *testing.T) {
	mem := store.NewMemoryStore()
	for i := 0; i < 8; i++ {
		putDoc(t, mem, fmt.Sprintf("d%d", i), "postgres "+strings.Repeat("x", 200), testNow)
	}

	selector := newTestSelector(t, mem, &fakeEmbedder{}, twctx.WithMinTruncateTokens(10))
	items, err := selector.SelectContext(context.Background(), "postgres", twctx.WithTokenBudget(130))
	if err != nil {
		t.Fatal(err)
	}

	total := 0
	for _, it := range items {
		total += it.Tokens
	}
	if total > 130 {
		t.Fatalf("selected %d tokens, budget 130", total)
	}
	// 每篇 53 Token：两篇完整 + 一篇截断到 24
	if len(items) != 3 || items[2].Tokens != 24 || items[2].Metadata["truncated"] != true {
		t.Errorf("unexpected selection: %d items, last %+v", len(items), items[len(items)-1])
	}
}

func TestSelectContext_DefaultBudgetFromConfig(t *testing.T) {
	mem := store.NewMemoryStore()
	putDoc(t, mem, "d1", "nats "+strings.Repeat("y", 400), testNow)

	opts := twctx.SelectorOptionsFromConfig(config.SelectorConfig{TokenBudget: 20})
	items, err := newTestSelector(t, mem, &fakeEmbedder{}, opts...).
		SelectContext(context.Background(), "nats")
	if err != nil {
		t.Fatal(err)
	}
	// 剩余 20 不超过截断阈值 100，直接停止
	if len(items) != 0 {
		t.Errorf("expected nothing to fit, got %d items", len(items))
	}
}

func tokenItems(tokens ...int) []*twctx.Item {
	items := make([]*twctx.Item, len(tokens))
	for i, n := range tokens {
		items[i] = twctx.NewItem(twctx.ItemTypeDocumentation, strings.Repeat("z", n*4), twctx.WithItemID(fmt.Sprint(n)))
	}
	return items
}

func TestFitBudget(t *testing.T) {
	tests := []struct {
		name        string
		tokens      []int
		budget      int
		minTruncate int
		wantTokens  []int
	}{
		{"remaining below threshold stops", []int{100, 150, 80, 90}, 300, 100, []int{100, 150}},
		{"remaining equal to threshold stops", []int{100, 150, 200}, 350, 100, []int{100, 150}},
		{"truncates when remaining exceeds threshold", []int{100, 150, 200, 10}, 360, 100, []int{100, 150, 110}},
		{"stops after first overflow", []int{100, 500, 10}, 200, 100, []int{100}},
		{"everything fits", []int{10, 20}, 100, 100, []int{10, 20}},
		{"empty", nil, 100, 100, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := twctx.FitBudget(tokenItems(tt.tokens...), tt.budget, tt.minTruncate)
			gotTokens := make([]int, len(got))
			for i, it := range got {
				gotTokens[i] = it.Tokens
			}
			if fmt.Sprint(gotTokens) != fmt.Sprint(tt.wantTokens) {
				t.Errorf("tokens = %v, want %v", gotTokens, tt.wantTokens)
			}
		})
	}
}

func TestFitBudget_TruncationDoesNotMutateInput(t *testing.T) {
	items := tokenItems(100, 200)
	original := items[1].Content

	got := twctx.FitBudget(items, 250, 100)
	if got[1] == items[1] {
		t.Fatal("truncated item should be a copy")
	}
	if items[1].Content != original || items[1].Tokens != 200 {
		t.Error("input item was modified")
	}
	if got[1].Tokens != 150 || len(got[1].Content) != 600 {
		t.Errorf("truncated to %d tokens / %d chars", got[1].Tokens, len(got[1].Content))
	}
}
