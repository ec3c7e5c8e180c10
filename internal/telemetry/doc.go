// Package telemetry 封装 OpenTelemetry SDK 初始化，
// 为 relay 与 HTTP 追踪中间件提供 TracerProvider，并通过 OTLP 导出指标。
// 禁用时使用 noop 实现，不连接任何外部服务。
package telemetry
