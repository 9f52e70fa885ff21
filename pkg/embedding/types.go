package embedding

import (
	"fmt"
	"strings"
	"time"
)

// Chunk 待嵌入的文本分块
type Chunk struct {
	ID       string         `json:"id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Request 批量嵌入请求
type Request struct {
	// Chunks 待嵌入分块
	Chunks []Chunk
	// Model 嵌入模型，为空时使用服务默认模型
	Model string
	// BatchSize 调用方期望的批大小，会被压到 MaxBatchSize 以内
	BatchSize int
}

// Result 单个分块的嵌入结果
type Result struct {
	ChunkID        string        `json:"chunk_id"`
	Embedding      []float32     `json:"embedding"`
	Model          string        `json:"model"`
	Tokens         int           `json:"tokens"`
	Cost           float64       `json:"cost"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// clone 深拷贝，缓存内外互不共享向量
func (r *Result) clone() *Result {
	c := *r
	c.Embedding = append([]float32(nil), r.Embedding...)
	return &c
}

// BatchError 描述一个被整体丢弃的批次
type BatchError struct {
	// Batch 批次序号（从 0 开始）
	Batch int
	// ChunkIDs 该批次包含的分块
	ChunkIDs []string
	// Err 提供商返回的错误
	Err error
}

// Error 实现 error 接口
func (e BatchError) Error() string {
	return fmt.Sprintf("batch %d (%s): %v", e.Batch, strings.Join(e.ChunkIDs, ","), e.Err)
}

// Unwrap 返回底层错误
func (e BatchError) Unwrap() error {
	return e.Err
}

// Outcome 一次 GenerateEmbeddings 的结果
//
// Results 只包含成功的分块；失败批次的分块出现在 Failures 中。
type Outcome struct {
	Results  []Result
	Failures []BatchError
}

// FailedChunks 返回失败分块总数
func (o *Outcome) FailedChunks() int {
	n := 0
	for _, f := range o.Failures {
		n += len(f.ChunkIDs)
	}
	return n
}

// ResultFor 按分块 ID 查找结果
func (o *Outcome) ResultFor(chunkID string) (Result, bool) {
	for _, r := range o.Results {
		if r.ChunkID == chunkID {
			return r, true
		}
	}
	return Result{}, false
}
