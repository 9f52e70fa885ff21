// Package context 为下游 LLM 调用准备有界、排序、去重的上下文。
//
// 流水线分为两步：
//
//   - ContextSelector：意图分类，从文档库、会话历史和示例库并发收集候选，
//     按 相关度×0.5 + 新近度×0.2 + 类型×0.2 + 多样性×0.1 评分，
//     再按 Token 预算贪心截取。
//   - Optimizer：句子级去重、按时间倒序、每类最多 5 条、按 Token 上限截取，
//     最后做质量把关，低于门槛时返回 *QualityGateError。
//
// # 基本用法
//
//	selector := context.NewContextSelector(
//	    context.WithClassifier(context.NewLLMClassifier(provider)),
//	    context.WithDocumentSource(context.NewDocumentSource(docs, 10, 0.8)),
//	    context.WithHistorySource(context.NewHistorySource(history, embeddings, "", 20, 0.6)),
//	)
//	items, err := selector.SelectContext(ctx, "如何配置 Redis 缓存？",
//	    context.WithConversationID(convID),
//	    context.WithTokenBudget(4000),
//	)
//
//	optimized, err := context.NewOptimizer().Optimize(ctx, context.Assemble(items),
//	    context.Constraints{}.WithMaxTokens(3000))
//	var gateErr *context.QualityGateError
//	if errors.As(err, &gateErr) {
//	    // 放宽门槛重试，或使用 gateErr.Context
//	}
//
// Builder 把以上步骤和降级策略打包在一起。
//
// 所有 Token 数都由 token.Estimate 计算，保证各阶段的预算可以直接相加。
package context
