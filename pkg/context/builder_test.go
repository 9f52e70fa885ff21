package context_test

import (
	"context"
	"errors"
	"testing"
	"time"

	twctx "github.com/easyops/twinmcp/pkg/context"
	coreerrors "github.com/easyops/twinmcp/pkg/core/errors"
	"github.com/easyops/twinmcp/pkg/store"
)

func newBuilderWithDoc(t *testing.T, relevance float64, opts ...twctx.BuilderOption) *twctx.Builder {
	t.Helper()
	mem := store.NewMemoryStore()
	putDoc(t, mem, "d1", "Redis TTL guide.", testNow.Add(-time.Hour))

	selector := twctx.NewContextSelector(
		twctx.WithDocumentSource(twctx.NewDocumentSource(mem, 10, relevance)),
		twctx.WithSelectorClock(func() time.Time { return testNow }),
	)
	return twctx.NewBuilder(selector, twctx.NewOptimizer(), opts...)
}

func TestBuild_QualityGateWithoutFallback(t *testing.T) {
	builder := newBuilderWithDoc(t, 0.8)

	out, err := builder.Build(context.Background(), &twctx.BuildInput{Query: "redis ttl"})
	if out != nil {
		t.Error("expected no context")
	}
	var gateErr *twctx.QualityGateError
	if !errors.As(err, &gateErr) {
		t.Fatalf("expected *QualityGateError, got %v", err)
	}
	if !errors.Is(err, coreerrors.ErrQualityGate) {
		t.Error("gate error should match ErrQualityGate")
	}
}

func TestBuild_FallbackRetriesWithRelaxedQuality(t *testing.T) {
	builder := newBuilderWithDoc(t, 0.8, twctx.WithFallback(0.4))

	out, err := builder.Build(context.Background(), &twctx.BuildInput{Query: "redis ttl"})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Metadata.Fallback {
		t.Error("relaxed result should be marked as fallback")
	}
	// (0.8 + 0.25 + 1/3) / 3
	if q := out.Metadata.Quality; q == nil || !approxEqual(q.Score, (0.8+0.25+1.0/3)/3) {
		t.Errorf("quality = %+v", out.Metadata.Quality)
	}
	if len(out.Items) != 1 {
		t.Errorf("expected 1 item, got %d", len(out.Items))
	}
}

func TestBuild_FallbackServesUnoptimized(t *testing.T) {
	builder := newBuilderWithDoc(t, 0.1, twctx.WithFallback(0.5))

	out, err := builder.Build(context.Background(), &twctx.BuildInput{Query: "redis ttl", TokenBudget: 1000})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Metadata.Fallback {
		t.Error("unoptimized result should be marked as fallback")
	}
	if len(out.Items) != 1 || out.Tokens > 1000 {
		t.Errorf("unexpected fallback context: %d items, %d tokens", len(out.Items), out.Tokens)
	}
	if out.Metadata.Quality == nil || out.Metadata.Quality.Score >= 0.5 {
		t.Errorf("quality = %+v", out.Metadata.Quality)
	}
}

func TestBuild_PassesWithoutFallback(t *testing.T) {
	builder := newBuilderWithDoc(t, 0.8, twctx.WithFallback(0.1))

	out, err := builder.Build(context.Background(), &twctx.BuildInput{
		Query:       "redis ttl",
		Constraints: twctx.Constraints{}.WithMinQuality(0.3),
	})
	if err != nil {
		t.Fatal(err)
	}
	if out.Metadata.Fallback {
		t.Error("passing result should not be marked as fallback")
	}
}
