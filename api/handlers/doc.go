// 版权所有 2024 DiagramFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
Package handlers 提供 DiagramFlow HTTP API 的请求处理器实现。

# 概述

handlers 包实现了图表生成、修复、优化三条流式接口，优化建议、模型列表、
访问密码校验、WebSocket 生成以及健康检查，并提供统一的响应/错误处理。
所有 Handler 均遵循标准 net/http 接口。

# 核心类型

  - DiagramHandler   — 流式接口与建议接口；准入检查（凭据解析、每日用量）后交给 relay
  - ModelsHandler    — /api/models
  - AccessHandler    — /api/verify-password，签发访问令牌
  - HealthHandler    — /health、/healthz、/ready、/version
  - Response         — 统一 JSON 响应结构（success + data + error + timestamp）
  - ResponseWriter   — 捕获状态码与字节数，透传 Flush 与 Hijack

# 流式响应

准入失败在流开始之前以 JSON 错误响应返回；流一旦开始，状态码固定为 200，
之后的失败以唯一的 Error 帧报告。下行帧格式按 ?format、Accept、路由默认值选择：
generate-mermaid 与 fix-mermaid 默认裸 JSON 帧，optimize-mermaid 默认 SSE。
*/
package handlers
