package embedding

import (
	"testing"
	"time"
)

func TestStatsLog_BoundedCapacity(t *testing.T) {
	log := NewStatsLog(3)
	for i := 1; i <= 5; i++ {
		log.Append(BatchStat{Model: "m1", Chunks: i, ProviderCalled: true})
	}

	if log.Len() != 3 {
		t.Fatalf("Len = %d, want 3", log.Len())
	}
	// 保留最新的 3、4、5
	if got := log.Summarize(0).TotalChunks; got != 12 {
		t.Fatalf("TotalChunks = %d, want 12", got)
	}
}

func TestStatsLog_Window(t *testing.T) {
	log := NewStatsLog(10)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	log.now = func() time.Time { return now }

	log.Append(BatchStat{Timestamp: now.Add(-2 * time.Hour), Model: "m1", Chunks: 10, Tokens: 100, ProviderCalled: true})
	log.Append(BatchStat{Timestamp: now.Add(-10 * time.Minute), Model: "m1", Chunks: 4, Tokens: 40, CacheHits: 1, AvgProcessingTime: 20 * time.Millisecond, ProviderCalled: true})
	log.Append(BatchStat{Timestamp: now.Add(-5 * time.Minute), Model: "m2", Errors: 4, ProviderCalled: true})
	log.Append(BatchStat{Timestamp: now.Add(-time.Minute), Model: "m1", Chunks: 2, CacheHits: 2})

	stats := log.Summarize(time.Hour)
	if stats.TotalChunks != 6 {
		t.Errorf("TotalChunks = %d, want 6", stats.TotalChunks)
	}
	if stats.TotalTokens != 40 {
		t.Errorf("TotalTokens = %d, want 40", stats.TotalTokens)
	}
	if stats.CacheHitRate != 0.5 {
		t.Errorf("CacheHitRate = %v, want 0.5", stats.CacheHitRate)
	}
	if stats.ErrorRate != 0.4 {
		t.Errorf("ErrorRate = %v, want 0.4", stats.ErrorRate)
	}
	if stats.AvgProcessingTime != 20*time.Millisecond {
		t.Errorf("AvgProcessingTime = %v", stats.AvgProcessingTime)
	}
	if stats.ModelUsage["m1"].Requests != 1 || stats.ModelUsage["m2"].Requests != 1 {
		t.Errorf("ModelUsage = %+v", stats.ModelUsage)
	}

	if all := log.Summarize(0); all.TotalChunks != 16 {
		t.Errorf("all-time TotalChunks = %d, want 16", all.TotalChunks)
	}
}

func TestStatsLog_EmptyWindow(t *testing.T) {
	stats := NewStatsLog(0).Summarize(time.Minute)
	if stats.TotalChunks != 0 || stats.TotalCost != 0 || stats.ErrorRate != 0 || stats.ModelUsage == nil {
		t.Fatalf("expected zero stats with empty usage map, got %+v", stats)
	}
}

func TestCostTable(t *testing.T) {
	costs := CostTable{"m1": 0.1}
	if got := costs.Cost("m1", 2000); got != 0.2 {
		t.Errorf("Cost(m1) = %v, want 0.2", got)
	}
	if got := costs.Cost("unknown", 2000); got != 0 {
		t.Errorf("Cost(unknown) = %v, want 0", got)
	}
}
