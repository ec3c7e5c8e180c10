package prompts

import (
	"fmt"
	"strings"

	"github.com/BaSui01/diagramflow/llm"
)

const fence = "```"

// 默认的复杂度限制与流程图方向。
const (
	DefaultMaxNodes      = 40
	DefaultMaxEdges      = 80
	DefaultFlowDirection = "TD"
)

// Options 控制生成提示词。零值字段使用默认值。
type Options struct {
	// DiagramType 为空或 "auto" 时由模型自选 flowchart、sequence、class 之一
	DiagramType string
	// Language 取 "zh"（默认）或 "en"
	Language      string
	MaxNodes      int
	MaxEdges      int
	FlowDirection string
}

func (o Options) withDefaults() Options {
	if o.MaxNodes <= 0 {
		o.MaxNodes = DefaultMaxNodes
	}
	if o.MaxEdges <= 0 {
		o.MaxEdges = DefaultMaxEdges
	}
	switch strings.ToUpper(strings.TrimSpace(o.FlowDirection)) {
	case "TD", "LR", "BT", "RL":
		o.FlowDirection = strings.ToUpper(strings.TrimSpace(o.FlowDirection))
	default:
		o.FlowDirection = DefaultFlowDirection
	}
	o.DiagramType = strings.TrimSpace(o.DiagramType)
	return o
}

func (o Options) zh() bool { return o.Language != "en" }

type section struct {
	title string
	body  string
}

// GenerateSystemPrompt 构建文本转图表的系统提示词。
func GenerateSystemPrompt(opts Options) string {
	o := opts.withDefaults()
	t := pick(o.zh())

	sections := []section{
		{t("目的与目标", "Goals"), t(
			"目的与目标：\n- 将用户输入准确映射为可编译的 Mermaid 图。\n- 覆盖关键实体/步骤与关系，保持清晰、可读、无冗余。",
			"Goals:\n- Map user input into a compilable Mermaid diagram.\n- Cover key entities/steps and relations; keep it clear and readable.")},
		{t("图类型规则", "Diagram Type Rule"), typeRule(o, t)},
		{t("语法与转义", "Syntax & Escaping"), t(
			"语法与转义：\n- 节点 ID 不包含空格与特殊字符；展示文本使用引号包裹。\n- HTML 特殊字符 < > & # 使用实体编码。\n- 使用 %% 表示注释；边标签使用 |label| 语法。\n"+
				fmt.Sprintf("- 若使用 flowchart，默认方向为 %[1]s（示例：flowchart %[1]s）。", o.FlowDirection),
			"Syntax & Escaping:\n- Node IDs contain no spaces/special chars; show text inside quotes.\n- HTML special chars < > & # must be HTML-encoded.\n- Use %% for comments; edge labels use |label| syntax.\n"+
				fmt.Sprintf("- If using flowchart, default direction is %[1]s (e.g., flowchart %[1]s).", o.FlowDirection))},
		{t("风格与复杂度", "Style & Complexity"), t(
			fmt.Sprintf("风格与复杂度：\n- 节点不超过 %d 个、边不超过 %d 条；超限请抽象/分组（subgraph）。\n", o.MaxNodes, o.MaxEdges)+
				"- 如需颜色/层级区分，应使用 classDef/class：\n  示例：\n  classDef group fill:#eef,stroke:#55f;\n  class A,B group",
			fmt.Sprintf("Style & Complexity:\n- Up to %d nodes and %d edges; if exceeded, abstract/group with subgraph.\n", o.MaxNodes, o.MaxEdges)+
				"- For color/hierarchy, use classDef/class:\n  Example:\n  classDef group fill:#eef,stroke:#55f;\n  class A,B group")},
		{t("输出格式", "Output Contract"), t(
			"输出格式（严格）：\n- 仅输出一个以 mermaid 标注的 fenced code block（"+fence+"mermaid 开始，"+fence+" 结束）。\n- 不得包含任何额外文字、解释或前后缀。",
			"Output contract (strict):\n- Output exactly one fenced code block labeled mermaid ("+fence+"mermaid ... "+fence+").\n- No extra text, explanations, or wrappers.")},
		{t("自检清单", "Self-checklist"), t(
			"自检（不要输出自检过程）：\n- 关键实体/步骤是否覆盖？主要关系是否完整？\n- Mermaid 语法是否可编译？是否只包含一个 mermaid fenced code？",
			"Self-check (do not output):\n- Are key entities/steps covered and relations complete?\n- Does it compile as Mermaid? Exactly one mermaid fenced code?")},
		{t("示例", "Examples"), examples(o, t)},
	}

	parts := make([]string, 0, len(sections))
	for _, s := range sections {
		parts = append(parts, s.title+"\n"+s.body)
	}
	return strings.Join(parts, "\n\n")
}

func typeRule(o Options, t func(zh, en string) string) string {
	if o.DiagramType != "" && o.DiagramType != "auto" {
		return t(
			fmt.Sprintf("图类型：\n- 必须使用 %s 类型（不得更换类型）。", o.DiagramType),
			fmt.Sprintf("Diagram type:\n- You MUST use type %s (do not switch types).", o.DiagramType))
	}
	return t(
		"图类型：\n- 根据内容选择最合适的一种：flowchart、sequence 或 class（仅一种）。",
		"Diagram type:\n- Choose exactly one best fit: flowchart, sequence, or class.")
}

func examples(o Options, t func(zh, en string) string) string {
	lines := []string{
		t("示例（极简）：", "Examples (minimal):"),
		"- flowchart:",
		fence + "mermaid",
		"flowchart " + o.FlowDirection,
		t("A[开始] --> B[处理]", "A[Start] --> B[Process]"),
		t("B --> C{分支}", "B --> C{Branch}"),
		t("C -->|是| D[成功]", "C -->|Yes| D[Success]"),
		t("C -->|否| E[失败]", "C -->|No| E[Fail]"),
		fence,
		"- sequence:",
		fence + "mermaid",
		"sequenceDiagram",
		t("Alice->>Bob: 请求", "Alice->>Bob: Request"),
		t("Bob-->>Alice: 响应", "Bob-->>Alice: Response"),
		fence,
		"- class:",
		fence + "mermaid",
		"classDiagram",
		"class User {",
		"  +id: string",
		"  +name: string",
		"}",
		"User <|-- Admin",
		fence,
	}
	return strings.Join(lines, "\n")
}

func pick(zh bool) func(zh, en string) string {
	return func(z, e string) string {
		if zh {
			return z
		}
		return e
	}
}

// GenerateMessages 返回生成请求的消息列表。
func GenerateMessages(text string, opts Options) []llm.Message {
	return []llm.Message{
		llm.SystemMessage(GenerateSystemPrompt(opts)),
		llm.UserMessage(text),
	}
}

// =============================================================================
// 修复 / 优化 / 建议
// =============================================================================

const fixSystemPrompt = "你是一个专业的Mermaid图表代码修复专家。你的任务是分析和修复Mermaid代码中的各种问题。"

// FixMessages 返回修复请求的消息列表。errorMessage 为空时省略错误信息段落。
func FixMessages(code, errorMessage string) []llm.Message {
	var b strings.Builder
	b.WriteString("请修复以下Mermaid代码中的问题。请直接返回修复后的代码，且不要返回其他的内容，也不要有修改说明的相关注释，并使用" + fence + "mermaid包裹。\n")
	b.WriteString("mermaid代码为：\n\"" + code + "\"\n")
	if msg := strings.TrimSpace(errorMessage); msg != "" {
		b.WriteString("错误信息为：\n\"" + msg + "\"\n")
	}
	b.WriteString("你的主要修改思路是：\n" +
		"1. 分析错误信息，理解错误原因\n" +
		"2. 检查是否有特殊字符，如果有，使用引号包裹\n" +
		"3. 检查是否有关键字，如果有则使用别的字符代替\n" +
		"4. 修复其他问题\n")

	return []llm.Message{
		llm.SystemMessage(fixSystemPrompt),
		llm.UserMessage(b.String()),
	}
}

var optimizeSystemPrompt = strings.Join([]string{
	"你是资深的 Mermaid 代码优化专家。",
	"目标：在不改变语义的前提下，提升可读性、布局稳定性与一致性。",
	"允许：合理的方向(flowchart TD/LR 切换)、节点命名规范化(显示文本不变)、subgraph 分组、classDef 样式、边标签规整。",
	"禁止：凭空增加/删除实体或关系；输出额外解释；输出多于一个代码块。",
	"输出契约：仅输出一个以 mermaid 标注的 fenced code block。",
}, "\n")

// OptimizeMessages 返回优化请求的消息列表。
func OptimizeMessages(code, instruction string) []llm.Message {
	parts := []string{
		"请优化以下 Mermaid 代码：",
		fence + "mermaid",
		code,
		fence,
	}
	if ins := strings.TrimSpace(instruction); ins != "" {
		parts = append(parts, "附加优化需求：\n"+ins)
	}
	parts = append(parts, "仅输出优化后的一个 mermaid fenced code。")

	return []llm.Message{
		llm.SystemMessage(optimizeSystemPrompt),
		llm.UserMessage(strings.Join(parts, "\n")),
	}
}

// MaxSuggestions 是建议接口返回的最大条数。
const MaxSuggestions = 8

// SuggestionMessages 返回建议请求的消息列表，要求模型只返回 JSON。
func SuggestionMessages(code string) []llm.Message {
	user := strings.Join([]string{
		fmt.Sprintf("基于以下Mermaid代码，输出最多%d条可执行的优化建议，以JSON返回：", MaxSuggestions),
		"- 每条建议包含 title(中文短标题) 与 instruction(简洁的执行指令)。",
		`- 只返回JSON：{"suggestions":[{"title":"...","instruction":"..."}]}。`,
		"- 领域示例：改进布局方向、合并重复节点、使用subgraph分组、添加classDef样式、规范边标签、优化节点命名/换行等。",
		"代码如下：\n" + fence + "mermaid\n",
		code,
		"\n" + fence,
	}, "\n")

	return []llm.Message{
		llm.SystemMessage("你是资深的 Mermaid 代码优化专家。严格返回JSON，不要输出任何解释。"),
		llm.UserMessage(user),
	}
}
