package context

import (
	"strings"

	"github.com/easyops/twinmcp/pkg/core/token"
)

// AssembledContext 是交给下游提示词组装的上下文块。
type AssembledContext struct {
	// Content 分段拼接后的文本。
	Content string `json:"content"`

	// Items 有序条目。
	Items []*Item `json:"items"`

	// Tokens 是 Content 的估算 Token 数，包含分段标题和分隔符。
	Tokens int `json:"tokens"`

	// Metadata 汇总信息。
	Metadata AssemblyMetadata `json:"metadata"`
}

// AssemblyMetadata 汇总信息。
type AssemblyMetadata struct {
	ItemCount        int                `json:"item_count"`
	CompressionRatio float64            `json:"compression_ratio"`
	Quality          *QualityAssessment `json:"quality,omitempty"`
	// Fallback 为 true 表示构建器在质量门槛失败后降级产出
	Fallback bool `json:"fallback,omitempty"`
}

// sectionOrder 是渲染时各类型分段的顺序。
var sectionOrder = []struct {
	itemType ItemType
	title    string
}{
	{ItemTypeDocumentation, "[Documentation]"},
	{ItemTypeExample, "[Examples]"},
	{ItemTypeCode, "[Code]"},
	{ItemTypeHistory, "[Conversation]"},
}

// Assemble 把条目组装为 AssembledContext，压缩比为 1。
func Assemble(items []*Item) *AssembledContext {
	content := Render(items)
	return &AssembledContext{
		Content: content,
		Items:   items,
		Tokens:  token.Estimate(content),
		Metadata: AssemblyMetadata{
			ItemCount:        len(items),
			CompressionRatio: 1.0,
		},
	}
}

// Render 按类型分段渲染条目，段内保持条目顺序；未知类型归入 [Other]。
// 内容为空的条目不输出，全部为空的分段整段省略。
func Render(items []*Item) string {
	if len(items) == 0 {
		return ""
	}

	groups := make(map[ItemType][]*Item)
	for _, it := range items {
		groups[it.Type] = append(groups[it.Type], it)
	}

	var sections []string
	known := make(map[ItemType]bool, len(sectionOrder))
	for _, sec := range sectionOrder {
		known[sec.itemType] = true
		if body := joinItems(groups[sec.itemType]); body != "" {
			sections = append(sections, sec.title+"\n"+body)
		}
	}

	var other []*Item
	for _, it := range items {
		if !known[it.Type] {
			other = append(other, it)
		}
	}
	if body := joinItems(other); body != "" {
		sections = append(sections, "[Other]\n"+body)
	}

	return strings.Join(sections, "\n\n")
}

// joinItems 用空行连接条目内容。
func joinItems(items []*Item) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if it.Content != "" {
			parts = append(parts, it.Content)
		}
	}
	return strings.Join(parts, "\n\n")
}
