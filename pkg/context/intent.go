package context

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/easyops/twinmcp/pkg/core/errors"
	"github.com/easyops/twinmcp/pkg/core/llm"
	"github.com/easyops/twinmcp/pkg/core/message"
)

// QueryIntent 描述查询意图。
type QueryIntent struct {
	PrimaryIntent        string     `json:"primary_intent"`
	RequiredContextTypes []ItemType `json:"required_context_types"`
	Libraries            []string   `json:"libraries"`
	ComplexityLevel      string     `json:"complexity_level"`
}

// Requires 判断意图是否要求给定类型的上下文。
func (q QueryIntent) Requires(t ItemType) bool {
	for _, rt := range q.RequiredContextTypes {
		if rt == t {
			return true
		}
	}
	return false
}

// IntentResult 是分类结果：Parsed 为 true 时 Intent 来自分类器，
// 否则 Intent 是空意图，Err 记录原因。
type IntentResult struct {
	Intent QueryIntent
	Parsed bool
	Err    error
}

// DefaultIntent 返回带原因的空意图结果。
func DefaultIntent(err error) IntentResult {
	return IntentResult{Err: err}
}

// IntentClassifier 意图分类器，实现不得返回错误，失败时返回 DefaultIntent。
type IntentClassifier interface {
	Classify(ctx context.Context, query string) IntentResult
}

// ParseIntent 解析分类器输出。
//
// 容忍 Markdown 代码块和前后的说明文字；RequiredContextTypes 去重。
func ParseIntent(output string) IntentResult {
	raw := extractJSONObject(output)
	if raw == "" {
		return DefaultIntent(fmt.Errorf("%w: no JSON object found", errors.ErrClassifierOutput))
	}

	var intent QueryIntent
	if err := json.Unmarshal([]byte(raw), &intent); err != nil {
		return DefaultIntent(fmt.Errorf("%w: %v", errors.ErrClassifierOutput, err))
	}

	seen := make(map[ItemType]bool, len(intent.RequiredContextTypes))
	types := intent.RequiredContextTypes[:0]
	for _, t := range intent.RequiredContextTypes {
		t = ItemType(strings.ToLower(strings.TrimSpace(string(t))))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		types = append(types, t)
	}
	intent.RequiredContextTypes = types

	return IntentResult{Intent: intent, Parsed: true}
}

// extractJSONObject 返回文本中第一个配平的 JSON 对象。
func extractJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

const intentPrompt = `Classify the developer query below. Respond with a single JSON object and nothing else:
{"primary_intent": string, "required_context_types": ["documentation"|"example"|"code"|"history"], "libraries": [string], "complexity_level": "low"|"medium"|"high"}

Query: %s`

// LLMClassifier 使用 LLM 补全做意图分类。
type LLMClassifier struct {
	provider llm.Provider
}

// NewLLMClassifier 创建 LLM 意图分类器。
func NewLLMClassifier(provider llm.Provider) *LLMClassifier {
	return &LLMClassifier{provider: provider}
}

// Classify 调用 LLM 并解析输出，调用失败同样退回空意图。
func (c *LLMClassifier) Classify(ctx context.Context, query string) IntentResult {
	temperature := 0.0
	resp, err := c.provider.Generate(ctx, llm.Request{
		Messages:    []message.Message{message.NewUserMessage(fmt.Sprintf(intentPrompt, query))},
		Temperature: &temperature,
		JSONMode:    true,
	})
	if err != nil {
		return DefaultIntent(errors.WrapError(err, "classify intent"))
	}
	return ParseIntent(resp.Content)
}

// StaticClassifier 总是返回固定的意图，用于测试或禁用分类。
type StaticClassifier struct {
	Result IntentResult
}

// Classify 返回固定结果。
func (c StaticClassifier) Classify(context.Context, string) IntentResult {
	return c.Result
}

// 编译时接口检查
var _ IntentClassifier = (*LLMClassifier)(nil)
var _ IntentClassifier = StaticClassifier{}
