package context

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/easyops/twinmcp/pkg/core/token"
)

// ItemType 表示上下文条目的类别。
type ItemType string

const (
	// ItemTypeDocumentation 来自文档库的条目。
	ItemTypeDocumentation ItemType = "documentation"

	// ItemTypeHistory 来自会话历史的条目。
	ItemTypeHistory ItemType = "history"

	// ItemTypeExample 来自示例库的条目。
	ItemTypeExample ItemType = "example"

	// ItemTypeCode 代码片段。
	ItemTypeCode ItemType = "code"
)

// MetaTimestamp 是 Item.Metadata 中时间戳的键。
const MetaTimestamp = "timestamp"

// Affinity 返回类型的先验权重，未知类型为 0.5。
func (t ItemType) Affinity() float64 {
	switch t {
	case ItemTypeDocumentation:
		return 0.9
	case ItemTypeExample:
		return 0.85
	case ItemTypeCode:
		return 0.8
	case ItemTypeHistory:
		return 0.7
	default:
		return 0.5
	}
}

// Item 表示一个带评分的上下文条目，只在单次请求内存活。
type Item struct {
	// ID 条目标识。
	ID string `json:"id"`

	// Type 条目类别。
	Type ItemType `json:"type"`

	// Content 条目文本。
	Content string `json:"content"`

	// Metadata 附加数据，可包含 MetaTimestamp。
	Metadata map[string]any `json:"metadata,omitempty"`

	// RelevanceScore 与查询的相关度（0.0-1.0）。
	RelevanceScore float64 `json:"relevance_score"`

	// Tokens 估算的 Token 数。
	Tokens int `json:"tokens"`

	// FinalScore 由筛选器计算的综合评分，未评分时为 nil。
	FinalScore *float64 `json:"final_score,omitempty"`
}

// ItemOption 配置 Item。
type ItemOption func(*Item)

// WithItemID 设置条目 ID。
func WithItemID(id string) ItemOption {
	return func(it *Item) {
		it.ID = id
	}
}

// WithTimestamp 在元数据中记录时间戳。
func WithTimestamp(ts time.Time) ItemOption {
	return func(it *Item) {
		it.SetMetadata(MetaTimestamp, ts)
	}
}

// WithRelevance 设置相关度。
func WithRelevance(score float64) ItemOption {
	return func(it *Item) {
		it.RelevanceScore = score
	}
}

// WithMetadata 合并元数据。
func WithMetadata(metadata map[string]any) ItemOption {
	return func(it *Item) {
		for k, v := range metadata {
			it.SetMetadata(k, v)
		}
	}
}

// WithTokens 设置 Token 数（跳过自动估算）。
func WithTokens(n int) ItemOption {
	return func(it *Item) {
		it.Tokens = n
	}
}

// NewItem 创建条目。未提供 ID 时生成 UUID，未提供 Token 数时按内容估算。
func NewItem(itemType ItemType, content string, opts ...ItemOption) *Item {
	it := &Item{
		Type:     itemType,
		Content:  content,
		Metadata: make(map[string]any),
	}
	for _, opt := range opts {
		opt(it)
	}

	if it.ID == "" {
		it.ID = uuid.NewString()
	}
	if it.Tokens == 0 {
		it.Tokens = token.Estimate(content)
	}
	return it
}

// Clone 创建条目的拷贝，元数据按浅拷贝复制。
func (it *Item) Clone() *Item {
	clone := *it
	clone.Metadata = make(map[string]any, len(it.Metadata))
	for k, v := range it.Metadata {
		clone.Metadata[k] = v
	}
	if it.FinalScore != nil {
		score := *it.FinalScore
		clone.FinalScore = &score
	}
	return &clone
}

// SetMetadata 设置元数据值。
func (it *Item) SetMetadata(key string, value any) {
	if it.Metadata == nil {
		it.Metadata = make(map[string]any)
	}
	it.Metadata[key] = value
}

// Timestamp 解析元数据中的时间戳。
//
// 支持 time.Time、RFC3339 字符串和 Unix 秒（整数或数字字符串）。
func (it *Item) Timestamp() (time.Time, bool) {
	v, ok := it.Metadata[MetaTimestamp]
	if !ok {
		return time.Time{}, false
	}

	switch ts := v.(type) {
	case time.Time:
		return ts, !ts.IsZero()
	case *time.Time:
		if ts == nil || ts.IsZero() {
			return time.Time{}, false
		}
		return *ts, true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			return t, true
		}
		if sec, err := strconv.ParseInt(ts, 10, 64); err == nil {
			return time.Unix(sec, 0), true
		}
	case int64:
		return time.Unix(ts, 0), true
	case int:
		return time.Unix(int64(ts), 0), true
	case float64:
		return time.Unix(int64(ts), 0), true
	}
	return time.Time{}, false
}

// Score 返回综合评分，未评分时为 0。
func (it *Item) Score() float64 {
	if it.FinalScore == nil {
		return 0
	}
	return *it.FinalScore
}
