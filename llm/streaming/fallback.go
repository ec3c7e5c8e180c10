package streaming

import (
	"regexp"
	"strings"
)

// fencedBlock 匹配整段文本中的第一个围栏代码块。语言标记可选，独占开围栏行；
// 同一行紧跟代码时只识别 mermaid 标记。
var fencedBlock = regexp.MustCompile("(?s)```(?:[\\w+.-]*[ \\t]*\\r?\\n|mermaid\\s+)?(.*?)```")

// FallbackConfig 配置启发式提取使用的关键字。
type FallbackConfig struct {
	// Markers 命中任一标记（不区分大小写）的行视为说明文字并丢弃。
	Markers []string `yaml:"markers" json:"markers"`
	// Tokens 含有任一结构标记（不区分大小写）的行才会保留。
	Tokens []string `yaml:"tokens" json:"tokens"`
}

// DefaultFallbackConfig 返回默认关键字。
func DefaultFallbackConfig() FallbackConfig {
	return FallbackConfig{
		Markers: []string{"修复", "问题", "说明", "explanation", "note:", "here is", "here's"},
		Tokens: []string{
			"flowchart", "graph", "sequenceDiagram", "classDiagram", "stateDiagram",
			"erDiagram", "gantt", "pie", "mindmap", "subgraph",
			"-->", "---", "->>", "==>", "-.->", "[", "]",
		},
	}
}

// Fallback 在流结束而围栏未闭合（或从未出现）时，从完整原始文本中提取最终结果。
// 零值不可用，请使用 NewFallback。
type Fallback struct {
	markers []string
	tokens  []string
}

// NewFallback 创建 Fallback。两组关键字都为空时使用默认值。
func NewFallback(cfg FallbackConfig) *Fallback {
	def := DefaultFallbackConfig()
	if len(cfg.Markers) == 0 {
		cfg.Markers = def.Markers
	}
	if len(cfg.Tokens) == 0 {
		cfg.Tokens = def.Tokens
	}
	return &Fallback{
		markers: lowerAll(cfg.Markers),
		tokens:  lowerAll(cfg.Tokens),
	}
}

// Extract 从原始文本中提取图表代码：
//  1. 优先取第一个围栏代码块的内部内容（裁剪空白）；
//  2. 否则逐行过滤，丢弃空行与说明行，仅保留含结构标记的行；
//  3. 一行都没留下时原样返回输入。
//
// 非空输入永远得到非空结果。
func (f *Fallback) Extract(text string) string {
	if m := fencedBlock.FindStringSubmatch(text); m != nil {
		if inner := strings.TrimSpace(m[1]); inner != "" {
			return inner
		}
	}

	var kept []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lower := strings.ToLower(line)
		if containsAny(lower, f.markers) || !containsAny(lower, f.tokens) {
			continue
		}
		kept = append(kept, line)
	}

	if out := strings.TrimSpace(strings.Join(kept, "\n")); out != "" {
		return out
	}
	return text
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
