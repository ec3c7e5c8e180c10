// Package api 定义 DiagramFlow HTTP API 的请求与响应结构。
//
// # API Overview
//
//   - POST /api/generate-mermaid            文本 → 图表（流式）
//   - POST /api/fix-mermaid                 修复语法错误（流式）
//   - POST /api/optimize-mermaid            按指令优化（流式，默认 SSE）
//   - POST /api/optimize-mermaid/suggestions 优化建议
//   - GET  /api/models                      可选模型
//   - POST /api/verify-password             访问密码校验
//   - GET  /api/generate-mermaid/ws         WebSocket 流式生成
//
// 流式接口的线上帧格式见子包 frame。
//
// # Authentication
//
// 请求体中的 aiConfig（apiUrl、apiKey、modelName 三项齐全）直接使用调用方的上游；
// 否则可通过 accessPassword 携带访问密码或 verify-password 签发的令牌。
package api
