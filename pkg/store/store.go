// Package store 提供上下文筛选器读取的文档库与会话历史库。
//
// SQLiteStore 用于持久化部署，MemoryStore 用于测试和单进程场景，
// 两者检索语义一致：按查询关键词命中数排序。
package store

import (
	"context"
	"time"

	"github.com/easyops/twinmcp/pkg/core/message"
)

// 默认返回条数
const (
	DefaultSearchLimit  = 10
	DefaultHistoryLimit = 20
)

// DocumentStore 文档检索接口
type DocumentStore interface {
	// Search 按关键词检索文档，结果按相关度降序
	Search(ctx context.Context, query string, limit int) ([]Document, error)
}

// HistoryStore 会话历史接口
type HistoryStore interface {
	// Messages 返回会话最近的 limit 条消息，按时间升序
	Messages(ctx context.Context, conversationID string, limit int) ([]message.Message, error)
}

// Document 文档结构
type Document struct {
	ID       string         `json:"id"`
	Title    string         `json:"title,omitempty"`
	Content  string         `json:"content"`
	Source   string         `json:"source,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	// Score 命中的查询关键词占比，只在检索结果中有值
	Score     float64   `json:"score,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
