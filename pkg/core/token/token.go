// Package token 提供整个上下文流水线共用的 Token 估算。
//
// 嵌入缓存、上下文筛选器和上下文优化器必须使用同一个估算函数，
// 这样各阶段的预算计算才能叠加而不产生偏差。
package token

import "unicode/utf8"

// CharsPerToken 是每个 Token 的平均字符数。
const CharsPerToken = 4

// Counter 定义 Token 计数接口。
type Counter interface {
	// Count 返回给定文本的 Token 数量。
	Count(text string) int
}

// EstimatedCounter 使用字符长度估算 Token 数量：ceil(字符数 / 4)。
type EstimatedCounter struct{}

// NewEstimatedCounter 创建新的 EstimatedCounter。
func NewEstimatedCounter() *EstimatedCounter {
	return &EstimatedCounter{}
}

// Count 返回估算的 Token 数量。
func (c *EstimatedCounter) Count(text string) int {
	return Estimate(text)
}

// Estimate 按 ceil(字符数/4) 估算 Token 数量，字符按 rune 计。
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + CharsPerToken - 1) / CharsPerToken
}

// Truncate 将文本截断到至多 tokens 个 Token。
//
// 截断后的文本满足 Estimate(result) <= tokens，当原文足够长时恰好相等。
func Truncate(text string, tokens int) string {
	if tokens <= 0 {
		return ""
	}
	maxRunes := tokens * CharsPerToken
	if utf8.RuneCountInString(text) <= maxRunes {
		return text
	}

	count := 0
	for i := range text {
		if count == maxRunes {
			return text[:i]
		}
		count++
	}
	return text
}

// 编译时接口检查
var _ Counter = (*EstimatedCounter)(nil)
