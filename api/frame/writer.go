package frame

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrTerminated 在终止帧之后继续写帧时返回。
var ErrTerminated = errors.New("frame: stream already terminated")

// bareFrame 是 FormatBare 的线上结构。解码时兼容旧字段 mermaidCode / fixedCode。
type bareFrame struct {
	Chunk       *string `json:"chunk,omitempty"`
	Final       *string `json:"final,omitempty"`
	MermaidCode *string `json:"mermaidCode,omitempty"`
	FixedCode   *string `json:"fixedCode,omitempty"`
	Error       *string `json:"error,omitempty"`
	Done        bool    `json:"done"`
}

// eventFrame 是 FormatEvent 每条记录 data 字段中的 JSON 结构。
type eventFrame struct {
	Type    string  `json:"type"`
	Data    *string `json:"data,omitempty"`
	Message string  `json:"message,omitempty"`
	OK      *bool   `json:"ok,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// MarshalBare 把帧编码为一个独立 JSON 对象。
func MarshalBare(f Frame) ([]byte, error) {
	var out bareFrame
	switch v := f.(type) {
	case Chunk:
		out = bareFrame{Chunk: &v.Payload}
	case Final:
		out = bareFrame{Final: &v.Payload, Done: true}
	case Error:
		out = bareFrame{Error: &v.Message, Done: true}
	default:
		return nil, fmt.Errorf("frame: unsupported frame %T", f)
	}
	return json.Marshal(out)
}

// MarshalEvent 把帧编码为事件 JSON 对象（不含 "data: " 前缀）。
// WebSocket 传输直接把它作为一条文本消息发送。
func MarshalEvent(f Frame) ([]byte, error) {
	var out eventFrame
	switch v := f.(type) {
	case Chunk:
		out = eventFrame{Type: "chunk", Data: &v.Payload}
	case Final:
		ok := true
		out = eventFrame{Type: "final", Data: &v.Payload, OK: &ok}
	case Error:
		ok := false
		out = eventFrame{Type: "error", Message: v.Message, OK: &ok}
	default:
		return nil, fmt.Errorf("frame: unsupported frame %T", f)
	}
	return json.Marshal(out)
}

// Encode 按格式编码一帧的完整线上字节。
func Encode(format Format, f Frame) ([]byte, error) {
	switch format {
	case FormatBare:
		return MarshalBare(f)
	case FormatEvent:
		payload, err := MarshalEvent(f)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		buf.Grow(len(payload) + 8)
		buf.WriteString("data: ")
		buf.Write(payload)
		buf.WriteString("\n\n")
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("frame: unknown format %d", format)
	}
}

// PrepareHeaders 设置流式响应头。必须在第一次写入之前调用。
func PrepareHeaders(h http.Header, format Format) {
	h.Set("Content-Type", format.ContentType())
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // 禁用 nginx 缓冲
}

// Writer 以固定格式逐帧写出，并在目标实现 http.Flusher 时每帧刷新。
// Writer 不是并发安全的，每条流一个。
type Writer struct {
	w          io.Writer
	flusher    http.Flusher
	format     Format
	terminated bool
}

// NewWriter 创建帧写出器。
func NewWriter(w io.Writer, format Format) *Writer {
	fw := &Writer{w: w, format: format}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}
	return fw
}

// Format 返回连接的编码格式。
func (w *Writer) Format() Format { return w.format }

// Terminated 报告终止帧是否已写出。
func (w *Writer) Terminated() bool { return w.terminated }

// Write 编码并写出一帧。终止帧之后的任何调用都返回 ErrTerminated。
// 写失败时 Writer 也视为已终止：连接已不可用。
func (w *Writer) Write(f Frame) error {
	if w.terminated {
		return ErrTerminated
	}
	if f == nil {
		return errors.New("frame: nil frame")
	}
	data, err := Encode(w.format, f)
	if err != nil {
		return err
	}
	if f.Terminal() {
		w.terminated = true
	}
	if _, err := w.w.Write(data); err != nil {
		w.terminated = true
		return fmt.Errorf("frame: write: %w", err)
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
