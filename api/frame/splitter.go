package frame

import (
	"bytes"
	"strings"
)

// ObjectSplitter 从任意切分的字节流中切出紧邻拼接的顶层 JSON 对象。
//
// 花括号深度只在字符串字面量之外计数；字符串内的 \ 转义紧随其后的一个字节。
// 对象之间的字节（空白、杂散文本）被丢弃。扫描状态跨 Feed 保留，
// 每个字节只检查一次。零值可直接使用。
type ObjectSplitter struct {
	buf      []byte
	pos      int // 下一个待扫描字节
	start    int // 当前对象起点，仅 inObject 时有效
	depth    int
	inObject bool
	inString bool
	escape   bool
}

// Feed 追加数据并返回本次完成的对象（每个都是独立副本）。
func (s *ObjectSplitter) Feed(p []byte) [][]byte {
	s.buf = append(s.buf, p...)

	var out [][]byte
	for ; s.pos < len(s.buf); s.pos++ {
		c := s.buf[s.pos]
		if !s.inObject {
			if c == '{' {
				s.inObject = true
				s.start = s.pos
				s.depth = 1
			}
			continue
		}
		if s.inString {
			switch {
			case s.escape:
				s.escape = false
			case c == '\\':
				s.escape = true
			case c == '"':
				s.inString = false
			}
			continue
		}
		switch c {
		case '"':
			s.inString = true
		case '{':
			s.depth++
		case '}':
			s.depth--
			if s.depth == 0 {
				out = append(out, bytes.Clone(s.buf[s.start:s.pos+1]))
				s.inObject = false
			}
		}
	}

	s.compact()
	return out
}

// Buffered 返回尚未构成完整对象的字节数。
func (s *ObjectSplitter) Buffered() int { return len(s.buf) }

func (s *ObjectSplitter) compact() {
	if !s.inObject {
		s.buf = s.buf[:0]
		s.pos = 0
		return
	}
	if s.start > 0 {
		n := copy(s.buf, s.buf[s.start:])
		s.buf = s.buf[:n]
		s.pos -= s.start
		s.start = 0
	}
}

// =============================================================================
// EventSplitter
// =============================================================================

// Event 是一条已完整接收的 SSE 记录。
type Event struct {
	// Name 是可选的 event 字段。
	Name string
	// Data 是所有 data 行以 "\n" 拼接的结果。
	Data string
}

// EventSplitter 把字节流切分为以空行结束的 SSE 记录。
// 接受 \n 与 \r\n 行尾；以 ':' 开头的注释行被忽略；未结束的记录在缓冲中等待。
// 零值可直接使用。
type EventSplitter struct {
	buf     []byte
	scanned int

	name    string
	data    []string
	hasData bool
}

// Feed 追加数据并返回本次完成的记录。
func (s *EventSplitter) Feed(p []byte) []Event {
	s.buf = append(s.buf, p...)

	var out []Event
	lineStart := 0
	for {
		idx := bytes.IndexByte(s.buf[s.scanned:], '\n')
		if idx < 0 {
			s.scanned = len(s.buf)
			break
		}
		end := s.scanned + idx
		line := strings.TrimSuffix(string(s.buf[lineStart:end]), "\r")
		lineStart = end + 1
		s.scanned = lineStart

		if ev, ok := s.processLine(line); ok {
			out = append(out, ev)
		}
	}

	if lineStart > 0 {
		n := copy(s.buf, s.buf[lineStart:])
		s.buf = s.buf[:n]
		s.scanned -= lineStart
	}
	return out
}

// Buffered 返回尚未处理的字节数（不含已解析但未结束的记录字段）。
func (s *EventSplitter) Buffered() int { return len(s.buf) }

func (s *EventSplitter) processLine(line string) (Event, bool) {
	if line == "" {
		if !s.hasData {
			s.name = ""
			return Event{}, false
		}
		ev := Event{Name: s.name, Data: strings.Join(s.data, "\n")}
		s.name, s.data, s.hasData = "", s.data[:0], false
		return ev, true
	}
	if strings.HasPrefix(line, ":") {
		return Event{}, false
	}

	field, value, _ := strings.Cut(line, ":")
	value = strings.TrimPrefix(value, " ")
	switch field {
	case "data":
		s.data = append(s.data, value)
		s.hasData = true
	case "event":
		s.name = value
	}
	return Event{}, false
}
