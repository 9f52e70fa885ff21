package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/easyops/twinmcp/pkg/core/message"
)

// MemoryStore 内存文档与会话存储
type MemoryStore struct {
	docs     map[string]Document
	messages map[string][]message.Message
	mu       sync.RWMutex
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:     make(map[string]Document),
		messages: make(map[string][]message.Message),
	}
}

// PutDocument 写入或覆盖文档，返回文档 ID
func (s *MemoryStore) PutDocument(_ context.Context, doc Document) (string, error) {
	if doc.Content == "" {
		return "", ErrInvalidInput
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if existing, ok := s.docs[doc.ID]; ok {
		doc.CreatedAt = existing.CreatedAt
	} else if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	if doc.UpdatedAt.IsZero() {
		doc.UpdatedAt = now
	}
	doc.Score = 0
	s.docs[doc.ID] = doc
	return doc.ID, nil
}

// Search 按关键词检索文档
func (s *MemoryStore) Search(_ context.Context, query string, limit int) ([]Document, error) {
	words := keywords(query)
	if len(words) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		doc   Document
		count int
	}
	var hits []hit
	for _, doc := range s.docs {
		if n := matchCount(doc.Title+"\n"+doc.Content, words); n > 0 {
			hits = append(hits, hit{doc: doc, count: n})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].count != hits[j].count {
			return hits[i].count > hits[j].count
		}
		if !hits[i].doc.UpdatedAt.Equal(hits[j].doc.UpdatedAt) {
			return hits[i].doc.UpdatedAt.After(hits[j].doc.UpdatedAt)
		}
		return hits[i].doc.ID < hits[j].doc.ID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	results := make([]Document, len(hits))
	for i, h := range hits {
		results[i] = h.doc
		results[i].Score = float64(h.count) / float64(len(words))
	}
	return results, nil
}

// AppendMessage 追加会话消息
func (s *MemoryStore) AppendMessage(_ context.Context, msg message.Message) error {
	if msg.ConversationID == "" {
		return ErrInvalidInput
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := append(s.messages[msg.ConversationID], msg)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.Before(msgs[j].Timestamp)
	})
	s.messages[msg.ConversationID] = msgs
	return nil
}

// Messages 返回会话最近的 limit 条消息
func (s *MemoryStore) Messages(_ context.Context, conversationID string, limit int) ([]message.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := s.messages[conversationID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]message.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Close 无操作
func (s *MemoryStore) Close() error {
	return nil
}

// Compile-time interface check
var (
	_ DocumentStore = (*MemoryStore)(nil)
	_ HistoryStore  = (*MemoryStore)(nil)
)
