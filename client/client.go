// =============================================================================
// DiagramFlow Go Client
// =============================================================================
// Posts requests to the streaming routes and reassembles the frame stream the
// server sends back. Either wire encoding is accepted; the response
// Content-Type decides which deframer is used.
// =============================================================================

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/diagramflow/api"
	"github.com/BaSui01/diagramflow/api/frame"
	"go.uber.org/zap"
)

const maxErrorBody = 64 << 10

// APIError 是服务端在流开始之前返回的错误响应。
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Retryable  bool
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("client: %s (status %d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("client: status %d: %s", e.StatusCode, e.Message)
}

// Option 配置 Client。
type Option func(*Client)

// WithHTTPClient 设置底层 HTTP 客户端。流式请求不应设置整体 Timeout。
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithFormat 设置请求的下行帧格式，默认 frame.FormatBare。
func WithFormat(f frame.Format) Option {
	return func(c *Client) { c.format = f }
}

// WithLogger 设置日志。
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithAccessToken 为每个请求填入访问密码或令牌（请求自身未设置时）。
func WithAccessToken(token string) Option {
	return func(c *Client) { c.defaults.AccessPassword = token }
}

// WithAIConfig 为每个请求填入自带的上游配置（请求自身未设置时）。
func WithAIConfig(cfg *api.AIConfig) Option {
	return func(c *Client) { c.defaults.AIConfig = cfg }
}

// WithModel 为每个请求填入 selectedModel（请求自身未设置时）。
func WithModel(id string) Option {
	return func(c *Client) { c.defaults.SelectedModel = id }
}

// Client 是 DiagramFlow 服务的客户端，可并发使用。
type Client struct {
	baseURL    string
	httpClient *http.Client
	format     frame.Format
	defaults   api.Access
	logger     *zap.Logger
}

// New 创建客户端。baseURL 形如 "http://localhost:8080"。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		format:     frame.FormatBare,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.With(zap.String("component", "diagramflow_client"))
	return c
}

// Generate 从文本生成图表。
func (c *Client) Generate(ctx context.Context, req api.GenerateRequest) (*Stream, error) {
	c.fill(&req.Access)
	return c.stream(ctx, "/api/generate-mermaid", req)
}

// Fix 请求修复图表语法错误。
func (c *Client) Fix(ctx context.Context, req api.FixRequest) (*Stream, error) {
	c.fill(&req.Access)
	return c.stream(ctx, "/api/fix-mermaid", req)
}

// Optimize 请求按指令优化图表。
func (c *Client) Optimize(ctx context.Context, req api.OptimizeRequest) (*Stream, error) {
	c.fill(&req.Access)
	return c.stream(ctx, "/api/optimize-mermaid", req)
}

// Suggestions 获取图表的优化建议。
func (c *Client) Suggestions(ctx context.Context, req api.SuggestionsRequest) ([]api.Suggestion, error) {
	c.fill(&req.Access)
	var out api.SuggestionsResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/optimize-mermaid/suggestions", req, &out); err != nil {
		return nil, err
	}
	return out.Suggestions, nil
}

// Models 返回服务端可选的模型列表。
func (c *Client) Models(ctx context.Context) ([]api.Model, error) {
	var out api.ModelsResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/models", nil, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// VerifyPassword 校验访问密码，成功时返回签发的令牌。
func (c *Client) VerifyPassword(ctx context.Context, password string) (api.VerifyPasswordResponse, error) {
	var out api.VerifyPasswordResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/verify-password", api.VerifyPasswordRequest{Password: password}, &out)
	return out, err
}

func (c *Client) fill(a *api.Access) {
	if a.AIConfig == nil {
		a.AIConfig = c.defaults.AIConfig
	}
	if a.AccessPassword == "" {
		a.AccessPassword = c.defaults.AccessPassword
	}
	if a.SelectedModel == "" {
		a.SelectedModel = c.defaults.SelectedModel
	}
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("client: marshal request: %w", err)
		}
		rd = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("client: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) stream(ctx context.Context, path string, body any) (*Stream, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path+"?format="+c.format.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", c.format.ContentType())

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("client: %s: %w", path, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}

	format := frame.FormatBare
	if strings.HasPrefix(resp.Header.Get("Content-Type"), frame.FormatEvent.ContentType()) {
		format = frame.FormatEvent
	}
	c.logger.Debug("stream opened",
		zap.String("path", path),
		zap.String("format", format.String()),
		zap.Duration("ttfb", time.Since(start)))

	d := frame.NewDecoder(resp.Body, format)
	return newStream(d.Next, resp.Body), nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	envelope := struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
	}{}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("client: decode response: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(envelope.Data, out); err != nil {
		return fmt.Errorf("client: decode response data: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode}

	var body api.ErrorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Error != nil {
		apiErr.Code = body.Error.Code
		apiErr.Message = body.Error.Message
		apiErr.Retryable = body.Error.Retryable
		return apiErr
	}
	apiErr.Message = strings.TrimSpace(string(data))
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// =============================================================================
// Stream
// =============================================================================

// Stream 是一条进行中的下行流。不可并发使用；用完须 Close（Result 会自动关闭）。
type Stream struct {
	next   func() (frame.Frame, error)
	closer io.Closer

	reasm    Reassembler
	err      error
	finished bool

	closeOnce sync.Once
	closeErr  error
}

func newStream(next func() (frame.Frame, error), closer io.Closer) *Stream {
	return &Stream{next: next, closer: closer}
}

// Events 返回剩余帧的惰性序列。中途停止迭代后可再次调用以继续。
// 每一帧在产出前都已交给内部的 Reassembler。
func (s *Stream) Events() iter.Seq2[frame.Frame, error] {
	return func(yield func(frame.Frame, error) bool) {
		if s.finished {
			return
		}
		for f, err := range seq(s.next) {
			if err != nil {
				s.err = err
				s.finished = true
				yield(nil, err)
				return
			}
			if s.reasm.Observe(f) {
				s.finished = true
			}
			if !yield(f, nil) {
				return
			}
		}
		s.finished = true
	}
}

// Streamed 返回迄今收到的 chunk 拼接。
func (s *Stream) Streamed() string { return s.reasm.Streamed() }

// Result 读完剩余的帧并返回最终结果，随后关闭流。
func (s *Stream) Result() (Result, error) {
	defer s.Close()
	for range s.Events() {
	}
	if s.err != nil {
		return Result{Streamed: s.reasm.Streamed()}, s.err
	}
	return s.reasm.Result()
}

// Close 释放底层连接，可重复调用。
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		if s.closer != nil {
			s.closeErr = s.closer.Close()
		}
	})
	return s.closeErr
}
