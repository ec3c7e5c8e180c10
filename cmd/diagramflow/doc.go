// Copyright (c) DiagramFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 DiagramFlow 服务端程序入口。

# 概述

cmd/diagramflow 是 DiagramFlow 的可执行入口，提供图表流式 API 服务、
健康检查和版本查询等子命令。程序支持 YAML 配置文件与环境变量加载、
结构化日志（zap）、Prometheus 指标采集以及 OpenTelemetry 追踪。

# 核心类型

  - Server      — 主服务器，装配上游客户端、凭据解析、用量限额与 handlers
  - Middleware  — HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve（启动服务）、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、MetricsMiddleware、
    SecurityHeaders、RequestLogger、CORS、RateLimiter（基于客户端 IP）
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus），端口为 0 时关闭
  - 优雅关闭：SIGINT/SIGTERM → 并发关闭 HTTP 与 Metrics → 释放限额器 → 刷新遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
