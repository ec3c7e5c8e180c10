// Package prompts 构建生成、修复、优化与建议四类请求发送给上游模型的消息。
//
// 所有提示词都要求模型只输出一个 mermaid 围栏代码块（建议接口除外，它要求纯 JSON），
// 以便 streaming.FenceExtractor 增量提取。
package prompts
