package frame

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformed 表示一条记录无法解码为帧。
var ErrMalformed = errors.New("frame: malformed record")

// DecodeObject 把一个 FormatBare JSON 对象解码为帧。
func DecodeObject(obj []byte) (Frame, error) {
	var in bareFrame
	if err := json.Unmarshal(obj, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch {
	case in.Error != nil:
		return Error{Message: *in.Error}, nil
	case in.Final != nil:
		return Final{Payload: *in.Final}, nil
	case in.MermaidCode != nil:
		return Final{Payload: *in.MermaidCode}, nil
	case in.FixedCode != nil:
		return Final{Payload: *in.FixedCode}, nil
	case in.Chunk != nil:
		return Chunk{Payload: *in.Chunk}, nil
	case in.Done:
		return Final{}, nil
	default:
		return nil, fmt.Errorf("%w: no frame field in %s", ErrMalformed, truncate(obj))
	}
}

// DecodeEventPayload 解码一条事件 JSON 对象（SSE 记录的 data，或一条 WebSocket 消息）。
func DecodeEventPayload(data []byte) (Frame, error) {
	var in eventFrame
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	switch in.Type {
	case "chunk":
		if in.Data == nil {
			return Chunk{}, nil
		}
		return Chunk{Payload: *in.Data}, nil
	case "final", "done":
		if in.Data == nil {
			return Final{}, nil
		}
		return Final{Payload: *in.Data}, nil
	case "error":
		return Error{Message: firstNonEmpty(in.Message, in.Error)}, nil
	}
	if in.Error != "" {
		return Error{Message: in.Error}, nil
	}
	return nil, fmt.Errorf("%w: unknown event type %q", ErrMalformed, in.Type)
}

// DecodeEvent 把一条 SSE 记录解码为帧。"[DONE]" 记录不对应任何帧，返回 (nil, nil)。
func DecodeEvent(ev Event) (Frame, error) {
	data := strings.TrimSpace(ev.Data)
	if data == "[DONE]" {
		return nil, nil
	}
	if ev.Name == "error" {
		var in struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal([]byte(data), &in); err != nil {
			return Error{Message: data}, nil
		}
		return Error{Message: firstNonEmpty(in.Error, in.Message, data)}, nil
	}
	return DecodeEventPayload([]byte(data))
}

// =============================================================================
// Decoder
// =============================================================================

// Decoder 从 io.Reader 中按格式逐帧解码。无法解码的记录被丢弃并计数。
type Decoder struct {
	r      io.Reader
	format Format
	buf    []byte

	objects ObjectSplitter
	events  EventSplitter

	queue     []Frame
	malformed int
	err       error
}

// NewDecoder 创建解码器。
func NewDecoder(r io.Reader, format Format) *Decoder {
	return &Decoder{r: r, format: format, buf: make([]byte, 4096)}
}

// Next 返回下一帧。读到流末尾时返回 io.EOF；底层读错误原样返回。
// Next 只在缓冲中没有完整帧时才读取底层 Reader。
func (d *Decoder) Next() (Frame, error) {
	for {
		if len(d.queue) > 0 {
			f := d.queue[0]
			d.queue = d.queue[1:]
			return f, nil
		}
		if d.err != nil {
			return nil, d.err
		}

		n, err := d.r.Read(d.buf)
		if n > 0 {
			d.feed(d.buf[:n])
		}
		if err != nil {
			d.err = err
		}
	}
}

// Malformed 返回迄今被丢弃的记录数。
func (d *Decoder) Malformed() int { return d.malformed }

func (d *Decoder) feed(p []byte) {
	switch d.format {
	case FormatEvent:
		for _, ev := range d.events.Feed(p) {
			f, err := DecodeEvent(ev)
			if err != nil {
				d.malformed++
				continue
			}
			if f != nil {
				d.queue = append(d.queue, f)
			}
		}
	default:
		for _, obj := range d.objects.Feed(p) {
			f, err := DecodeObject(obj)
			if err != nil {
				d.malformed++
				continue
			}
			d.queue = append(d.queue, f)
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(b []byte) string {
	const limit = 64
	if len(b) <= limit {
		return string(b)
	}
	return string(b[:limit]) + "..."
}
