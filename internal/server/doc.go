// 版权所有 2024 DiagramFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供 HTTP 服务器生命周期管理：非阻塞启动、异步错误传播与优雅关闭。

# 核心类型

  - Manager：封装 net/http.Server 与 net.Listener，提供
    Start/Run/Shutdown 等生命周期方法。
  - Config：监听地址、读写与空闲超时、最大请求头大小与关闭超时。
    流式服务的 WriteTimeout 为 0，单条流的时长不受固定写截止时间限制。

# 关闭

Shutdown 在 ShutdownTimeout 内等待进行中的请求结束，超时后强制关闭连接；
被断开的流按下游断开处理，上游请求随请求 ctx 取消。
Run 把 Start 与 Shutdown 组合为一个阻塞调用，主服务与指标服务
由 errgroup 并发运行、同时关闭。
*/
package server
