package frame

import (
	"fmt"
	"strings"
)

// Frame 是下行流中的一个逻辑帧：Chunk、Final 或 Error 之一。
// 每条流最多一个终止帧（Final 或 Error），且它总在最后。
type Frame interface {
	isFrame()
	// Terminal 报告该帧是否结束流。
	Terminal() bool
}

// Chunk 携带一段增量输出。
type Chunk struct {
	Payload string
}

// Final 携带最终结果并结束流。
type Final struct {
	Payload string
}

// Error 携带错误信息并结束流。
type Error struct {
	Message string
}

func (Chunk) isFrame() {}
func (Final) isFrame() {}
func (Error) isFrame() {}

func (Chunk) Terminal() bool { return false }
func (Final) Terminal() bool { return true }
func (Error) Terminal() bool { return true }

func (c Chunk) String() string { return fmt.Sprintf("Chunk(%q)", c.Payload) }
func (f Final) String() string { return fmt.Sprintf("Final(%q)", f.Payload) }
func (e Error) String() string { return fmt.Sprintf("Error(%q)", e.Message) }

// =============================================================================
// Format
// =============================================================================

// Format 是帧在连接上的编码方式，每条连接固定一种。
type Format int

const (
	// FormatBare 把每帧编码为紧邻拼接的独立 JSON 对象。
	FormatBare Format = iota
	// FormatEvent 把每帧编码为一条 "data: <json>\n\n" SSE 记录。
	FormatEvent
)

func (f Format) String() string {
	switch f {
	case FormatBare:
		return "bare"
	case FormatEvent:
		return "event"
	default:
		return "unknown"
	}
}

// ContentType 返回该编码对应的响应 Content-Type。
func (f Format) ContentType() string {
	if f == FormatEvent {
		return "text/event-stream"
	}
	return "application/json"
}

// ParseFormat 解析 "bare" / "event"（也接受 "json" / "sse"），大小写不敏感。
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bare", "json":
		return FormatBare, true
	case "event", "sse":
		return FormatEvent, true
	default:
		return FormatBare, false
	}
}
