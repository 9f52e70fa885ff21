// Package llm 提供 LLM 服务的统一接口
package llm

import (
	"context"

	"github.com/easyops/twinmcp/pkg/core/message"
)

// Provider 定义 LLM 提供商接口
//
// 上下文流水线只依赖两类调用：意图分类使用的文本补全，
// 以及嵌入缓存使用的批量嵌入。
type Provider interface {
	// Generate 生成响应（非流式）
	Generate(ctx context.Context, req Request) (Response, error)

	// CreateEmbeddings 使用指定模型为一批文本生成嵌入向量
	//
	// 返回的向量与 inputs 一一对应。限速错误可通过
	// errors.IsRateLimited 识别，调用方据此决定是否等待后重提交。
	CreateEmbeddings(ctx context.Context, model string, inputs []string) ([][]float32, error)

	// Name 返回提供商名称
	Name() string

	// Model 返回当前补全模型名称
	Model() string

	// Close 关闭客户端连接
	Close() error
}

// Request LLM 请求
type Request struct {
	// Messages 消息历史
	Messages []message.Message
	// Temperature 温度参数（可选）
	Temperature *float64
	// MaxTokens 最大输出 token（可选）
	MaxTokens *int
	// JSONMode 要求模型输出 JSON 对象
	JSONMode bool
	// Stop 停止序列（可选）
	Stop []string
}

// Response LLM 响应
type Response struct {
	// ID 响应标识
	ID string `json:"id"`
	// Content 响应文本内容
	Content string `json:"content"`
	// TokenUsage Token 使用统计
	TokenUsage message.TokenUsage `json:"token_usage"`
	// FinishReason 结束原因
	FinishReason string `json:"finish_reason"`
}
