package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/BaSui01/diagramflow/api"
	"github.com/BaSui01/diagramflow/api/frame"
	"github.com/BaSui01/diagramflow/internal/usage"
	"github.com/BaSui01/diagramflow/llm"
	"github.com/BaSui01/diagramflow/llm/prompts"
	"github.com/BaSui01/diagramflow/llm/providers/openaicompat"
	"github.com/BaSui01/diagramflow/llm/streaming"
	"github.com/BaSui01/diagramflow/relay"
	"github.com/BaSui01/diagramflow/types"
	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"
)

// 路由名，同时用作指标与日志中的 route 标签
const (
	RouteGenerate    = "generate-mermaid"
	RouteFix         = "fix-mermaid"
	RouteOptimize    = "optimize-mermaid"
	RouteSuggestions = "optimize-mermaid/suggestions"
)

// DefaultMaxChars 单次请求文本的默认字符上限
const DefaultMaxChars = 20000

// =============================================================================
// 🔌 依赖
// =============================================================================

// Upstream 是上游 chat completions 的抽象。
type Upstream interface {
	Stream(ctx context.Context, creds llm.Credentials, msgs []llm.Message) (relay.DeltaSource, error)
	Completion(ctx context.Context, creds llm.Credentials, msgs []llm.Message) (string, error)
}

// FromProvider 把 OpenAI 兼容客户端适配为 Upstream。
func FromProvider(p *openaicompat.Provider) Upstream {
	return providerUpstream{p}
}

type providerUpstream struct {
	p *openaicompat.Provider
}

func (u providerUpstream) Stream(ctx context.Context, creds llm.Credentials, msgs []llm.Message) (relay.DeltaSource, error) {
	s, err := u.p.Stream(ctx, creds, msgs)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (u providerUpstream) Completion(ctx context.Context, creds llm.Credentials, msgs []llm.Message) (string, error) {
	return u.p.Completion(ctx, creds, msgs)
}

// Recorder 接收请求层的计数，由指标收集器实现。
type Recorder interface {
	RecordUsageRejection()
	RecordCompletion(operation, status string)
}

type nopRecorder struct{}

func (nopRecorder) RecordUsageRejection()           {}
func (nopRecorder) RecordCompletion(string, string) {}

// DiagramConfig 汇集 DiagramHandler 的协作者。
type DiagramConfig struct {
	Upstream Upstream
	Resolver *llm.Resolver
	Relay    *relay.Relay
	// Limiter 为 nil 时不限制用量
	Limiter  usage.Limiter
	Recorder Recorder
	// MaxChars 为 0 时使用 DefaultMaxChars
	MaxChars int
	// WSOriginPatterns 允许跨域 WebSocket 握手的 Origin 主机模式
	WSOriginPatterns []string
}

// =============================================================================
// 🧭 图表接口 Handler
// =============================================================================

// DiagramHandler 处理生成、修复、优化三条流式接口与建议接口。
type DiagramHandler struct {
	upstream Upstream
	resolver *llm.Resolver
	relay    *relay.Relay
	limiter  usage.Limiter
	recorder Recorder
	maxChars int
	origins  []string
	logger   *zap.Logger
}

// NewDiagramHandler 创建图表处理器
func NewDiagramHandler(cfg DiagramConfig, logger *zap.Logger) *DiagramHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Recorder == nil {
		cfg.Recorder = nopRecorder{}
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = DefaultMaxChars
	}
	if cfg.Relay == nil {
		cfg.Relay = relay.New(streaming.DefaultFallbackConfig(), logger)
	}
	return &DiagramHandler{
		upstream: cfg.Upstream,
		resolver: cfg.Resolver,
		relay:    cfg.Relay,
		limiter:  cfg.Limiter,
		recorder: cfg.Recorder,
		maxChars: cfg.MaxChars,
		origins:  cfg.WSOriginPatterns,
		logger:   logger.With(zap.String("component", "diagram_handler")),
	}
}

// HandleGenerate 处理文本生成图表请求
// @Summary 生成 Mermaid 图表
// @Description 流式返回图表代码，默认裸 JSON 帧
// @Tags 图表
// @Accept json
// @Produce json,text/event-stream
// @Param request body api.GenerateRequest true "生成请求"
// @Param format query string false "bare 或 event"
// @Success 200 {string} string "帧流"
// @Failure 400 {object} Response "无效请求"
// @Failure 401 {object} Response "访问密码无效"
// @Failure 429 {object} Response "用量超限"
// @Router /api/generate-mermaid [post]
func (h *DiagramHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req api.GenerateRequest
	if !h.decode(w, r, &req) {
		return
	}
	msgs, apiErr := h.generateMessages(&req)
	if apiErr != nil {
		WriteError(w, r, apiErr, h.logger)
		return
	}
	h.serveStream(w, r, RouteGenerate, frame.FormatBare, req.Access, msgs)
}

// generateMessages 校验生成请求并构造提示。HTTP 与 WebSocket 共用。
func (h *DiagramHandler) generateMessages(req *api.GenerateRequest) ([]llm.Message, *types.Error) {
	req.Text = CleanText(req.Text)
	if req.Text == "" {
		return nil, types.NewError(types.ErrInvalidRequest, "请提供文本内容").WithHTTPStatus(http.StatusBadRequest)
	}
	if apiErr := h.checkLength(req.Text); apiErr != nil {
		return nil, apiErr
	}
	return prompts.GenerateMessages(req.Text, prompts.Options{DiagramType: req.DiagramType, Language: req.Language}), nil
}

// HandleFix 处理语法修复请求
// @Summary 修复 Mermaid 语法
// @Tags 图表
// @Accept json
// @Produce json,text/event-stream
// @Param request body api.FixRequest true "修复请求"
// @Success 200 {string} string "帧流"
// @Router /api/fix-mermaid [post]
func (h *DiagramHandler) HandleFix(w http.ResponseWriter, r *http.Request) {
	var req api.FixRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.MermaidCode) == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "请提供需要修复的Mermaid代码", h.logger)
		return
	}
	if apiErr := h.checkLength(req.MermaidCode); apiErr != nil {
		WriteError(w, r, apiErr, h.logger)
		return
	}

	h.serveStream(w, r, RouteFix, frame.FormatBare, req.Access, prompts.FixMessages(req.MermaidCode, req.ErrorMessage))
}

// HandleOptimize 处理按指令优化请求
// @Summary 优化 Mermaid 图表
// @Tags 图表
// @Accept json
// @Produce text/event-stream,json
// @Param request body api.OptimizeRequest true "优化请求"
// @Success 200 {string} string "帧流，默认 SSE"
// @Router /api/optimize-mermaid [post]
func (h *DiagramHandler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req api.OptimizeRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.MermaidCode) == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "请提供需要优化的Mermaid代码", h.logger)
		return
	}
	if apiErr := h.checkLength(req.MermaidCode + req.Instruction); apiErr != nil {
		WriteError(w, r, apiErr, h.logger)
		return
	}

	h.serveStream(w, r, RouteOptimize, frame.FormatEvent, req.Access, prompts.OptimizeMessages(req.MermaidCode, req.Instruction))
}

// HandleSuggestions 处理优化建议请求（非流式）
// @Summary 获取优化建议
// @Tags 图表
// @Accept json
// @Produce json
// @Param request body api.SuggestionsRequest true "建议请求"
// @Success 200 {object} api.SuggestionsResponse "建议列表"
// @Router /api/optimize-mermaid/suggestions [post]
func (h *DiagramHandler) HandleSuggestions(w http.ResponseWriter, r *http.Request) {
	var req api.SuggestionsRequest
	if !h.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.MermaidCode) == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "请提供Mermaid代码", h.logger)
		return
	}
	if apiErr := h.checkLength(req.MermaidCode); apiErr != nil {
		WriteError(w, r, apiErr, h.logger)
		return
	}

	res, ok := h.authorize(w, r, req.Access)
	if !ok {
		return
	}

	content, err := h.upstream.Completion(r.Context(), res.Credentials, prompts.SuggestionMessages(req.MermaidCode))
	if err != nil {
		h.recorder.RecordCompletion(RouteSuggestions, "error")
		WriteError(w, r, upstreamError(err), h.logger)
		return
	}
	h.recorder.RecordCompletion(RouteSuggestions, "ok")

	suggestions := ParseSuggestions(content)
	if len(suggestions) == 0 {
		h.logger.Debug("no parsable suggestions, using defaults", zap.Int("content_len", len(content)))
		suggestions = DefaultSuggestions()
	}
	WriteSuccess(w, api.SuggestionsResponse{Suggestions: suggestions})
}

// =============================================================================
// 🔄 流式公共路径
// =============================================================================

func (h *DiagramHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !ValidateContentType(w, r, h.logger) {
		return false
	}
	return DecodeJSONBody(w, r, dst, h.logger) == nil
}

func (h *DiagramHandler) checkLength(text string) *types.Error {
	if utf8.RuneCountInString(text) > h.maxChars {
		return types.NewError(types.ErrContentTooLong, fmt.Sprintf("文本超过%d字符限制", h.maxChars))
	}
	return nil
}

// authorize 解析凭据，并对受限调用方扣减每日用量。失败时已写出错误响应。
func (h *DiagramHandler) authorize(w http.ResponseWriter, r *http.Request, access api.Access) (llm.Resolution, bool) {
	res, remaining, apiErr := h.admit(r.Context(), ClientIP(r), access)
	if apiErr != nil {
		WriteError(w, r, apiErr, h.logger)
		return res, false
	}
	if remaining >= 0 {
		w.Header().Set("X-Usage-Remaining", strconv.Itoa(remaining))
	}
	return res, true
}

// admit 是 authorize 与 WebSocket 共用的准入检查。remaining 为 usage.Unlimited 表示不计数。
func (h *DiagramHandler) admit(ctx context.Context, clientIP string, access api.Access) (llm.Resolution, int, *types.Error) {
	res, err := h.resolver.Resolve(access.AIConfig.Credentials(), access.AccessPassword, access.SelectedModel)
	switch {
	case errors.Is(err, llm.ErrInvalidAccessToken):
		return res, usage.Unlimited, types.NewError(types.ErrUnauthorized, "访问密码无效").
			WithHTTPStatus(http.StatusUnauthorized)
	case errors.Is(err, llm.ErrIncompleteCredentials):
		return res, usage.Unlimited, types.NewError(types.ErrIncompleteCreds,
			"AI配置不完整，请在设置中配置API URL、API Key和模型名称").WithHTTPStatus(http.StatusBadRequest)
	case err != nil:
		return res, usage.Unlimited, types.NewError(types.ErrInternalError, "处理请求时发生错误").WithCause(err)
	}

	if res.Unlimited || h.limiter == nil {
		return res, usage.Unlimited, nil
	}
	remaining, err := h.limiter.Allow(ctx, clientIP)
	if errors.Is(err, usage.ErrLimitExceeded) {
		h.recorder.RecordUsageRejection()
		return res, 0, types.NewError(types.ErrQuotaExceeded,
			"今日使用次数已达上限，请明日再试或在设置中配置自己的AI服务").WithHTTPStatus(http.StatusTooManyRequests)
	}
	if err != nil {
		return res, 0, types.NewError(types.ErrInternalError, "用量服务暂不可用").
			WithCause(err).WithRetryable(true)
	}
	return res, remaining, nil
}

func (h *DiagramHandler) serveStream(w http.ResponseWriter, r *http.Request, route string, def frame.Format, access api.Access, msgs []llm.Message) {
	res, ok := h.authorize(w, r, access)
	if !ok {
		return
	}

	format := SelectFormat(r, def)
	frame.PrepareHeaders(w.Header(), format)
	w.WriteHeader(http.StatusOK)

	ctx := types.WithRoute(r.Context(), route)
	h.relay.Run(ctx, h.opener(res.Credentials, msgs), frame.NewWriter(w, format))
}

func (h *DiagramHandler) opener(creds llm.Credentials, msgs []llm.Message) relay.Opener {
	return func(ctx context.Context) (relay.DeltaSource, error) {
		return h.upstream.Stream(ctx, creds, msgs)
	}
}

// SelectFormat 按 ?format、Accept 头、路由默认值的顺序选择下行帧格式。
func SelectFormat(r *http.Request, def frame.Format) frame.Format {
	if f, ok := frame.ParseFormat(r.URL.Query().Get("format")); ok {
		return f
	}
	if strings.Contains(r.Header.Get("Accept"), frame.FormatEvent.ContentType()) {
		return frame.FormatEvent
	}
	return def
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// CleanText 把连续空白折叠为一个空格并去掉首尾空白。
func CleanText(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

// =============================================================================
// 💡 建议解析
// =============================================================================

// ParseSuggestions 从模型回复中取出第一个 '{' 到最后一个 '}' 之间的 JSON，
// 解析失败时尝试修复；只保留同时带 title 与 instruction 的条目。
func ParseSuggestions(content string) []api.Suggestion {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return nil
	}
	raw := content[start : end+1]

	var parsed api.SuggestionsResponse
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		fixed, rerr := jsonrepair.JSONRepair(raw)
		if rerr != nil {
			return nil
		}
		if err := json.Unmarshal([]byte(fixed), &parsed); err != nil {
			return nil
		}
	}

	out := make([]api.Suggestion, 0, min(len(parsed.Suggestions), prompts.MaxSuggestions))
	for _, s := range parsed.Suggestions {
		if strings.TrimSpace(s.Title) == "" || strings.TrimSpace(s.Instruction) == "" {
			continue
		}
		out = append(out, s)
		if len(out) == prompts.MaxSuggestions {
			break
		}
	}
	return out
}

// DefaultSuggestions 模型没有给出可用建议时的静态列表
func DefaultSuggestions() []api.Suggestion {
	return []api.Suggestion{
		{Title: "切换流程图方向", Instruction: "将 flowchart 方向在 TD/LR 间切换以提高可读性"},
		{Title: "相似节点合并命名", Instruction: "合并重复或相似节点，统一命名与标签"},
		{Title: "使用分组与子图", Instruction: "引入 subgraph 对相关节点进行分组"},
		{Title: "规范边标签格式", Instruction: "统一使用 |label| 语法并补充缺失的边说明"},
		{Title: "引入classDef样式", Instruction: "为不同类型节点定义 classDef 并应用"},
	}
}
