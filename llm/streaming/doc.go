// 版权所有 2024 DiagramFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 streaming 提供从 LLM 流式输出中增量提取围栏代码块的原语。

# 概述

模型以任意大小的增量输出文本，```mermaid 围栏可能被切分在任意字节处。
本包在上游仍在输出时识别第一个围栏代码块，并只暴露围栏内部的内容：

  - FenceExtractor — 三态（Searching / Collecting / Done）增量状态机，
    Feed 返回本次可安全输出的内容，结果与分块方式无关。
  - Fallback — 流结束而围栏未闭合时，对完整原始文本做正则与逐行启发式提取。

# 使用方式

	ext := streaming.NewFenceExtractor()
	for delta := range deltas {
	    if out := ext.Feed(delta); out != "" {
	        send(out)
	    }
	}
	if tail := ext.Flush(); tail != "" {
	    send(tail)
	}
	if ext.State() != streaming.StateDone {
	    final = streaming.NewFallback(cfg).Extract(raw)
	}

两者均不做 I/O，也不持有锁；每条流各自创建实例。
*/
package streaming
