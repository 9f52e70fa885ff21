package message

// TokenUsage 补全接口返回的用量，也用于累计多次调用
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Plus 返回两份用量之和
//
// 提供商未给出 TotalTokens 时按输入加输出补齐。
func (u TokenUsage) Plus(other TokenUsage) TokenUsage {
	total := other.TotalTokens
	if total == 0 {
		total = other.PromptTokens + other.CompletionTokens
	}
	return TokenUsage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + total,
	}
}

// IsZero 没有记录到任何用量
func (u TokenUsage) IsZero() bool {
	return u == TokenUsage{}
}
