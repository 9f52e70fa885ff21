// Package embedding 提供带缓存、限速和用量统计的批量嵌入服务。
//
// 处理流程：
//
//	校验分块 → 按批拆分 → 逐块查缓存 → 限速等待 → 调用提供商 → 写缓存 → 记录统计
//
// 缓存键由 (内容哈希, 模型) 决定，条目写入后不再修改，只随 TTL 过期。
// 限速器与统计日志是注入到 Service 的显式对象，只在单进程内生效。
package embedding
