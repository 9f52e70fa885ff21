package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/easyops/twinmcp/pkg/core/config"
	"github.com/easyops/twinmcp/pkg/core/message"
)

// SQLiteStore SQLite 文档与会话存储
//
// 文档检索是 LIKE 关键词匹配，不依赖 FTS 扩展。
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore 打开（必要时创建）SQLite 数据库
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 内存库每个连接都是独立的数据库
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}
	return s, nil
}

// Open 按配置打开存储
func Open(cfg config.StoreConfig) (*SQLiteStore, error) {
	cfg = cfg.WithDefaults()
	return NewSQLiteStore(cfg.SQLitePath)
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_updated_at ON documents(updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		metadata TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	`
	_, err := s.db.Exec(query)
	return err
}

// PutDocument 写入或覆盖文档，返回文档 ID
func (s *SQLiteStore) PutDocument(ctx context.Context, doc Document) (string, error) {
	if doc.Content == "" {
		return "", ErrInvalidInput
	}
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}

	metadata, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return "", err
	}

	now := time.Now().UnixMilli()
	createdAt, updatedAt := now, now
	if !doc.CreatedAt.IsZero() {
		createdAt = doc.CreatedAt.UnixMilli()
	}
	if !doc.UpdatedAt.IsZero() {
		updatedAt = doc.UpdatedAt.UnixMilli()
	}

	query := `
	INSERT INTO documents (id, title, content, source, metadata, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		content = excluded.content,
		source = excluded.source,
		metadata = excluded.metadata,
		updated_at = excluded.updated_at
	`
	_, err = s.db.ExecContext(ctx, query, doc.ID, doc.Title, doc.Content, doc.Source, metadata, createdAt, updatedAt)
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}

// Search 按关键词检索文档
//
// 每个关键词在标题或正文中出现记一分，按得分、更新时间降序返回。
// SQLite 的 LIKE 只对 ASCII 字母忽略大小写。
func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	words := keywords(query)
	if len(words) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	terms := make([]string, len(words))
	args := make([]any, 0, len(words)*2+1)
	for i, w := range words {
		terms[i] = `(CASE WHEN title LIKE ? ESCAPE '\' OR content LIKE ? ESCAPE '\' THEN 1 ELSE 0 END)`
		pattern := "%" + escapeLike(w) + "%"
		args = append(args, pattern, pattern)
	}
	args = append(args, limit)

	sqlQuery := fmt.Sprintf(`
	SELECT id, title, content, source, metadata, created_at, updated_at, score FROM (
		SELECT id, title, content, source, metadata, created_at, updated_at, %s AS score
		FROM documents
	) WHERE score > 0
	ORDER BY score DESC, updated_at DESC, id ASC
	LIMIT ?`, strings.Join(terms, " + "))

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var doc Document
		var metadataStr sql.NullString
		var createdAt, updatedAt int64
		var score int

		if err := rows.Scan(&doc.ID, &doc.Title, &doc.Content, &doc.Source, &metadataStr, &createdAt, &updatedAt, &score); err != nil {
			return nil, err
		}
		if err := unmarshalMetadata(metadataStr, &doc.Metadata); err != nil {
			continue // 跳过无效记录
		}

		doc.Score = float64(score) / float64(len(words))
		doc.CreatedAt = time.UnixMilli(createdAt)
		doc.UpdatedAt = time.UnixMilli(updatedAt)
		results = append(results, doc)
	}
	return results, rows.Err()
}

// AppendMessage 追加会话消息
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg message.Message) error {
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

	metadata, err := marshalMetadata(msg.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO messages (id, conversation_id, role, content, metadata, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query, msg.ID, msg.ConversationID, string(msg.Role), msg.Content, metadata, msg.Timestamp.UnixMilli())
	return err
}

// Messages 返回会话最近的 limit 条消息，按时间升序
func (s *SQLiteStore) Messages(ctx context.Context, conversationID string, limit int) ([]message.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	query := `
	SELECT id, conversation_id, role, content, metadata, created_at
	FROM messages WHERE conversation_id = ?
	ORDER BY created_at DESC, rowid DESC
	LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []message.Message
	for rows.Next() {
		var msg message.Message
		var role string
		var metadataStr sql.NullString
		var createdAt int64

		if err := rows.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &metadataStr, &createdAt); err != nil {
			return nil, err
		}
		if err := unmarshalMetadata(metadataStr, &msg.Metadata); err != nil {
			continue
		}
		msg.Role = message.Role(role)
		msg.Timestamp = time.UnixMilli(createdAt)
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// Close 关闭连接
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func marshalMetadata(m map[string]any) (sql.NullString, error) {
	if len(m) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalMetadata(s sql.NullString, out *map[string]any) error {
	if !s.Valid || s.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(s.String), out)
}

// Compile-time interface check
var (
	_ DocumentStore = (*SQLiteStore)(nil)
	_ HistoryStore  = (*SQLiteStore)(nil)
)
