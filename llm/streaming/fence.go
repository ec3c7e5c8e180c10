package streaming

import (
	"strings"
)

const fenceMarker = "```"

// State 是 FenceExtractor 的状态，只会单调前进：Searching → Collecting → Done。
type State int

const (
	// StateSearching 正在寻找开围栏行。
	StateSearching State = iota
	// StateCollecting 已越过开围栏行，正在输出围栏内容。
	StateCollecting
	// StateDone 已遇到闭围栏，后续输入全部忽略。
	StateDone
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateCollecting:
		return "collecting"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// FenceExtractor 从增量到达的文本中提取第一个 ``` 围栏代码块的内容。
//
// 输出与输入的分块方式无关：同一段文本无论怎样切分喂入，
// 各次 Feed/Flush 返回值拼接后都相同。
// 单个 FenceExtractor 只服务一条流，不可并发使用。
type FenceExtractor struct {
	state State

	// pending 在 Searching 状态下保存尚未结束的当前行，
	// 在 Collecting 状态下保存可能构成闭围栏前缀的尾部反引号（最多 2 个）。
	pending string
	// scanned 是 pending 中已确认不含换行的前缀长度。
	scanned int

	content strings.Builder
}

// NewFenceExtractor 创建处于 StateSearching 的提取器。
func NewFenceExtractor() *FenceExtractor {
	return &FenceExtractor{}
}

// State 返回当前状态。
func (e *FenceExtractor) State() State { return e.state }

// Content 返回迄今为止输出的全部围栏内容（未裁剪空白）。
func (e *FenceExtractor) Content() string { return e.content.String() }

// Feed 喂入一个增量，返回本次新确认可输出的内容，没有则返回 ""。
func (e *FenceExtractor) Feed(delta string) string {
	switch e.state {
	case StateSearching:
		e.pending += delta
		if !e.searchOpening() {
			return ""
		}
		return e.collect()
	case StateCollecting:
		e.pending += delta
		return e.collect()
	default:
		return ""
	}
}

// Flush 在上游结束时调用。若仍处于 Collecting，释放保留的尾部反引号；
// 状态保持不变，由调用方判断围栏是否闭合。
func (e *FenceExtractor) Flush() string {
	if e.state != StateCollecting || e.pending == "" {
		return ""
	}
	out := e.pending
	e.pending = ""
	e.content.WriteString(out)
	return out
}

// searchOpening 逐个检查 pending 中的完整行，找到开围栏行时切换到 Collecting。
// 非开围栏的完整行直接丢弃；未以换行结束的末行保留等待后续输入。
func (e *FenceExtractor) searchOpening() bool {
	for {
		idx := strings.IndexByte(e.pending[e.scanned:], '\n')
		if idx < 0 {
			e.scanned = len(e.pending)
			return false
		}
		end := e.scanned + idx
		line := e.pending[:end]
		e.pending = e.pending[end+1:]
		e.scanned = 0
		if isOpeningLine(line) {
			e.state = StateCollecting
			return true
		}
	}
}

// collect 在 Collecting 状态下处理 pending。
func (e *FenceExtractor) collect() string {
	if idx := strings.Index(e.pending, fenceMarker); idx >= 0 {
		out := e.pending[:idx]
		e.pending = ""
		e.state = StateDone
		e.content.WriteString(out)
		return out
	}

	// 仅保留可能成为闭围栏开头的尾部反引号。
	// 连续 3 个已在上面命中，这里至多 2 个。
	keep := 0
	for keep < len(e.pending) && e.pending[len(e.pending)-1-keep] == '`' {
		keep++
	}
	out := e.pending[:len(e.pending)-keep]
	e.pending = e.pending[len(e.pending)-keep:]
	e.content.WriteString(out)
	return out
}

// isOpeningLine 报告一行是否为开围栏行：去掉行首空格/制表符后以 ``` 开头，
// 其后的语言标记中不含反引号。
func isOpeningLine(line string) bool {
	line = strings.TrimSuffix(line, "\r")
	line = strings.TrimLeft(line, " \t")
	if !strings.HasPrefix(line, fenceMarker) {
		return false
	}
	return !strings.Contains(line[len(fenceMarker):], "`")
}
