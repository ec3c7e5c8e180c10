// Copyright (c) DiagramFlow Authors.
// Licensed under the MIT License.

/*
Package types 提供 DiagramFlow 服务的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 llm、api、relay 等上层模块
提供统一的错误码与 context 传播约定，以避免循环依赖。

# 核心类型

  - Error / ErrorCode — 结构化错误体系，含 HTTP 状态码、Retryable 标记与 Cause
  - AsError / GetErrorCode / IsRetryable — 沿错误链提取结构化错误

# Context 传播

  - WithRequestID / RequestID — HTTP 请求 ID（由 RequestID 中间件注入）
  - WithStreamID / StreamID   — 单条流的 ID（由 relay 生成）
  - WithRoute / Route         — 逻辑路由名（generate、fix、optimize）
*/
package types
