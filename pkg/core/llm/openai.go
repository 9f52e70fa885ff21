package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"

	openai "github.com/sashabaranov/go-openai"

	"github.com/easyops/twinmcp/pkg/core/errors"
	"github.com/easyops/twinmcp/pkg/core/message"
	"github.com/easyops/twinmcp/pkg/core/retry"
)

// OpenAIClient OpenAI 兼容客户端
//
// 同时适用于 OpenAI、DeepSeek、vLLM 等兼容 OpenAI API 的服务。
type OpenAIClient struct {
	client  *openai.Client
	options *Options
	name    string
}

// NewOpenAI 创建 OpenAI 客户端
func NewOpenAI(opts ...Option) (*OpenAIClient, error) {
	return newOpenAICompatible("openai", opts...)
}

func newOpenAICompatible(name string, opts ...Option) (*OpenAIClient, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	if options.APIKey == "" {
		return nil, errors.ErrInvalidAPIKey
	}
	if options.Model == "" {
		options.Model = "gpt-4o-mini"
	}

	config := openai.DefaultConfig(options.APIKey)
	if options.BaseURL != "" {
		config.BaseURL = options.BaseURL
	}
	if options.Timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: options.Timeout}
	}

	return &OpenAIClient{
		client:  openai.NewClientWithConfig(config),
		options: options,
		name:    name,
	}, nil
}

// Name 返回提供商名称
func (c *OpenAIClient) Name() string {
	return c.name
}

// Model 返回当前模型名称
func (c *OpenAIClient) Model() string {
	return c.options.Model
}

// Close 关闭客户端连接
func (c *OpenAIClient) Close() error {
	return nil
}

// Generate 生成响应（非流式，带重试）
func (c *OpenAIClient) Generate(ctx context.Context, req Request) (Response, error) {
	chatReq := c.buildChatRequest(req)

	var resp openai.ChatCompletionResponse
	policy := retry.DefaultPolicy()
	policy.MaxRetries = c.options.MaxRetries
	policy.BaseDelay = c.options.RetryDelay

	err := policy.Do(ctx, func() error {
		var callErr error
		resp, callErr = c.client.CreateChatCompletion(ctx, chatReq)
		return mapOpenAIError(callErr)
	})
	if err != nil {
		return Response{}, err
	}

	return parseOpenAIResponse(resp), nil
}

// CreateEmbeddings 生成文本嵌入向量
//
// 不在此处重试：限速错误原样返回，由嵌入缓存的限速器统一处理。
func (c *OpenAIClient) CreateEmbeddings(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, nil
	}

	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: inputs,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs",
			errors.ErrInvalidResponse, len(resp.Data), len(inputs))
	}

	result := make([][]float32, len(inputs))
	for _, data := range resp.Data {
		if data.Index < 0 || data.Index >= len(inputs) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", errors.ErrInvalidResponse, data.Index)
		}
		result[data.Index] = data.Embedding
	}

	return result, nil
}

// buildChatRequest 构建 OpenAI 请求
func (c *OpenAIClient) buildChatRequest(req Request) openai.ChatCompletionRequest {
	chatReq := openai.ChatCompletionRequest{
		Model:    c.options.Model,
		Messages: convertMessages(req.Messages),
	}

	if req.Temperature != nil {
		chatReq.Temperature = float32(*req.Temperature)
	} else {
		chatReq.Temperature = float32(c.options.Temperature)
	}

	if req.MaxTokens != nil {
		chatReq.MaxTokens = *req.MaxTokens
	} else {
		chatReq.MaxTokens = c.options.MaxTokens
	}

	if len(req.Stop) > 0 {
		chatReq.Stop = req.Stop
	}

	if req.JSONMode {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	return chatReq
}

// convertMessages 转换消息格式
func convertMessages(msgs []message.Message) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		result = append(result, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	return result
}

// parseOpenAIResponse 解析 OpenAI 响应
func parseOpenAIResponse(resp openai.ChatCompletionResponse) Response {
	if len(resp.Choices) == 0 {
		return Response{}
	}

	choice := resp.Choices[0]
	return Response{
		ID:           resp.ID,
		Content:      choice.Message.Content,
		FinishReason: string(choice.FinishReason),
		TokenUsage: message.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}

// mapOpenAIError 映射 OpenAI 错误到框架错误
func mapOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if !stderrors.As(err, &apiErr) {
		var reqErr *openai.RequestError
		if stderrors.As(err, &reqErr) {
			return mapStatusCode(reqErr.HTTPStatusCode, err)
		}
		return errors.WrapError(err, "openai request failed")
	}

	return mapStatusCode(apiErr.HTTPStatusCode, err)
}

// mapStatusCode 按 HTTP 状态码分类错误
func mapStatusCode(code int, err error) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %v", errors.ErrInvalidAPIKey, err)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", errors.ErrModelNotFound, err)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", errors.ErrRateLimited, err)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %v", errors.ErrProviderUnavailable, err)
	default:
		return fmt.Errorf("openai error (code=%d): %w", code, err)
	}
}

// 编译时接口检查
var _ Provider = (*OpenAIClient)(nil)
