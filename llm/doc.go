// 版权所有 2024 DiagramFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供上游模型接入层的公共类型：消息、结构化错误与凭据解析。

# 概述

DiagramFlow 只对接 OpenAI 兼容的 chat/completions 接口，但凭据按请求决定：
调用方可以自带 endpoint/key/model，也可以使用服务端默认配置。
本包把这一决策集中在 [Resolver] 中，在流开始之前完成，流期间凭据不可变。

# 核心类型

  - [Message] / [Role]：发送给上游的对话消息
  - [Error] / [ErrorCode]：上游失败的结构化错误，含 HTTP 状态与可重试标记
  - [Credentials]：endpoint/key/model 三元组，String 与 MarshalJSON 会屏蔽密钥
  - [Resolver] / [Resolution]：按“显式配置 → 访问令牌 → 服务端默认”解析凭据
  - [TokenChecker]：访问令牌校验接口，由 internal/access 实现

# 相关子包

- llm/providers：OpenAI 兼容线上格式、错误映射与端点拼接。
- llm/providers/openaicompat：流式与非流式上游客户端。
- llm/streaming：围栏代码块增量提取与启发式兜底。
- llm/prompts：四类请求的提示词构造。
*/
package llm
