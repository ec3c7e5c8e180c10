// 版权所有 2024 DiagramFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的指标采集，覆盖 HTTP 请求与下行流两个维度。

# 核心类型

  - Collector：指标收集器，使用 promauto 注册，所有指标按 namespace 隔离。
    它实现 relay.Observer，由 Relay 在每条流开始与结束时回调。

# 指标

  - HTTP：请求总数、耗时、请求/响应体大小，按 method/path/status 分组，
    状态码归类为 2xx/3xx/4xx/5xx。
  - 流：活跃流数量、按 route/outcome 的流总数与耗时、chunk 帧数与字节数。
  - 上游：被跳过的畸形 SSE 行、非流式调用次数。
  - 用量：因每日额度被拒绝的请求数。
*/
package metrics
