package embedding

import (
	"sync"
	"time"
)

// DefaultStatsCapacity 统计日志默认保留条目数
const DefaultStatsCapacity = 1000

// BatchStat 单个批次的统计记录
type BatchStat struct {
	Timestamp time.Time
	Model     string
	// Chunks 拿到结果的分块数（含缓存命中）
	Chunks int
	// Tokens 本批新嵌入的 Token 数（不含缓存命中）
	Tokens int
	Cost   float64
	// AvgProcessingTime 新嵌入分块的平均处理时间
	AvgProcessingTime time.Duration
	CacheHits         int
	// Errors 被丢弃的分块数
	Errors int
	// ProviderCalled 本批是否调用了提供商
	ProviderCalled bool
}

// ModelUsage 单个模型的用量
type ModelUsage struct {
	Requests int     `json:"requests"`
	Tokens   int     `json:"tokens"`
	Cost     float64 `json:"cost"`
}

// Stats 统计窗口内的汇总
type Stats struct {
	TotalChunks       int                   `json:"total_chunks"`
	TotalTokens       int                   `json:"total_tokens"`
	TotalCost         float64               `json:"total_cost"`
	AvgProcessingTime time.Duration         `json:"avg_processing_time"`
	ModelUsage        map[string]ModelUsage `json:"model_usage"`
	CacheHitRate      float64               `json:"cache_hit_rate"`
	ErrorRate         float64               `json:"error_rate"`
}

// StatsLog 有界的滚动统计日志，超出容量时丢弃最旧的记录
type StatsLog struct {
	entries  []BatchStat
	capacity int
	now      func() time.Time
	mu       sync.Mutex
}

// NewStatsLog 创建统计日志
func NewStatsLog(capacity int) *StatsLog {
	if capacity <= 0 {
		capacity = DefaultStatsCapacity
	}
	return &StatsLog{
		entries:  make([]BatchStat, 0, capacity),
		capacity: capacity,
		now:      time.Now,
	}
}

// Append 追加一条记录，Timestamp 为空时取当前时间
func (l *StatsLog) Append(stat BatchStat) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if stat.Timestamp.IsZero() {
		stat.Timestamp = l.now()
	}
	if len(l.entries) >= l.capacity {
		n := copy(l.entries, l.entries[len(l.entries)-l.capacity+1:])
		l.entries = l.entries[:n]
	}
	l.entries = append(l.entries, stat)
}

// Len 返回当前记录数
func (l *StatsLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Summarize 汇总尾随 window 内的记录；window <= 0 表示全部
func (l *StatsLog) Summarize(window time.Duration) Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := Stats{ModelUsage: make(map[string]ModelUsage)}

	var cutoff time.Time
	if window > 0 {
		cutoff = l.now().Add(-window)
	}

	var hits, errs, timed int
	var totalTime time.Duration
	for _, e := range l.entries {
		if !cutoff.IsZero() && e.Timestamp.Before(cutoff) {
			continue
		}

		stats.TotalChunks += e.Chunks
		stats.TotalTokens += e.Tokens
		stats.TotalCost += e.Cost
		hits += e.CacheHits
		errs += e.Errors

		if e.ProviderCalled {
			usage := stats.ModelUsage[e.Model]
			usage.Requests++
			usage.Tokens += e.Tokens
			usage.Cost += e.Cost
			stats.ModelUsage[e.Model] = usage

			if e.AvgProcessingTime > 0 {
				totalTime += e.AvgProcessingTime
				timed++
			}
		}
	}

	if timed > 0 {
		stats.AvgProcessingTime = totalTime / time.Duration(timed)
	}
	if stats.TotalChunks > 0 {
		stats.CacheHitRate = float64(hits) / float64(stats.TotalChunks)
	}
	if attempted := stats.TotalChunks + errs; attempted > 0 {
		stats.ErrorRate = float64(errs) / float64(attempted)
	}
	return stats
}
