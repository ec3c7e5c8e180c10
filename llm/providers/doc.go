// Copyright 2026 DiagramFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供 OpenAI 兼容上游的公共线上格式与错误语义，
供 openaicompat 子包构造请求、解析响应与映射失败。

# 核心类型

  - OpenAICompat* 系列 — chat/completions 的请求、响应与错误结构体

# 核心函数

  - MapHTTPError — 将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - ReadErrorMessage — 从上游错误响应体中提取可读消息，读取量有上限
  - ChatCompletionsURL — 由用户填写的 API 地址拼出 chat/completions 端点
  - ConvertMessagesToOpenAI — 统一消息格式转换
*/
package providers
