// =============================================================================
// DiagramFlow OpenAI-Compatible Upstream
// =============================================================================
// Pull-based access to any OpenAI-compatible chat completions endpoint.
// Stream opens an SSE response and returns a DeltaStream; Completion performs
// a single non-streaming round trip.
// =============================================================================

package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/diagramflow/internal/tlsutil"
	"github.com/BaSui01/diagramflow/llm"
	"github.com/BaSui01/diagramflow/llm/providers"
	"go.uber.org/zap"
)

// Config holds the configuration for the upstream client.
type Config struct {
	// ProviderName identifies the upstream in errors and logs. Defaults to "openaicompat".
	ProviderName string

	// Timeout bounds the wait for response headers, and the whole round trip of
	// Completion. Defaults to 60s if zero. Streams are bounded only by their context.
	Timeout time.Duration

	// Temperature is sent when non-zero.
	Temperature float32

	// MaxTokens is sent when non-zero.
	MaxTokens int

	// OnMalformedLine is called for every SSE data line that fails to decode.
	OnMalformedLine func()
}

// Provider talks to one OpenAI-compatible endpoint family. Credentials are supplied per call.
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

// New creates a new upstream client with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openaicompat"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Client: tlsutil.SecureStreamingClient(cfg.Timeout),
		Logger: logger.With(zap.String("component", "upstream"), zap.String("provider", cfg.ProviderName)),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

func (p *Provider) newRequest(ctx context.Context, creds llm.Credentials, msgs []llm.Message, stream bool) (*http.Request, error) {
	body := providers.OpenAICompatRequest{
		Model:       creds.Model,
		Messages:    providers.ConvertMessagesToOpenAI(msgs),
		Temperature: p.Cfg.Temperature,
		MaxTokens:   p.Cfg.MaxTokens,
		Stream:      stream,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, providers.ChatCompletionsURL(creds.Endpoint), bytes.NewReader(payload))
	if err != nil {
		return nil, &llm.Error{
			Code: llm.ErrInvalidRequest, Message: fmt.Sprintf("failed to create request: %v", err),
			HTTPStatus: http.StatusBadRequest, Provider: p.Name(),
		}
	}
	httpReq.Header.Set("Authorization", "Bearer "+creds.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
}

func (p *Provider) do(ctx context.Context, httpReq *http.Request) (*http.Response, error) {
	resp, err := p.Client.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}
	return resp, nil
}

// Stream opens a streaming chat completion. On a non-2xx status no stream is
// returned and the error is an *llm.Error carrying the status and body message.
func (p *Provider) Stream(ctx context.Context, creds llm.Credentials, msgs []llm.Message) (*DeltaStream, error) {
	httpReq, err := p.newRequest(ctx, creds, msgs, true)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := p.do(ctx, httpReq)
	if err != nil {
		p.Logger.Debug("upstream stream rejected", zap.String("model", creds.Model), zap.Error(err))
		return nil, err
	}
	p.Logger.Debug("upstream stream opened",
		zap.String("model", creds.Model),
		zap.Duration("ttfb", time.Since(start)))

	return NewDeltaStream(ctx, resp.Body, p.Name(), p.Logger, p.Cfg.OnMalformedLine), nil
}

// Completion performs a non-streaming chat completion and returns the first choice's content.
func (p *Provider) Completion(ctx context.Context, creds llm.Credentials, msgs []llm.Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Cfg.Timeout)
	defer cancel()

	httpReq, err := p.newRequest(ctx, creds, msgs, false)
	if err != nil {
		return "", err
	}
	resp, err := p.do(ctx, httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var oaResp providers.OpenAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return "", &llm.Error{
			Code: llm.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}
	return oaResp.MessageContent(), nil
}

// =============================================================================
// DeltaStream
// =============================================================================

// DeltaStream yields the content deltas of an OpenAI-compatible SSE body, one per Recv.
// It is not safe for concurrent Recv calls; Close may be called from any goroutine.
type DeltaStream struct {
	ctx         context.Context
	body        io.ReadCloser
	reader      *bufio.Reader
	provider    string
	logger      *zap.Logger
	onMalformed func()

	pending   error
	done      bool
	closeOnce sync.Once
	closeErr  error
}

// NewDeltaStream wraps an SSE response body. The caller is responsible for
// ensuring the response status is OK before calling this.
func NewDeltaStream(ctx context.Context, body io.ReadCloser, providerName string, logger *zap.Logger, onMalformed func()) *DeltaStream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeltaStream{
		ctx:         ctx,
		body:        body,
		reader:      bufio.NewReader(body),
		provider:    providerName,
		logger:      logger,
		onMalformed: onMalformed,
	}
}

// Recv returns the next delta. It returns io.EOF once the stream ended
// successfully ("[DONE]" or a clean end of body).
func (s *DeltaStream) Recv() (string, error) {
	if s.pending != nil {
		err := s.pending
		s.pending = nil
		s.done = true
		return "", err
	}
	if s.done {
		return "", io.EOF
	}

	for {
		line, readErr := s.reader.ReadString('\n')
		if line != "" {
			delta, ok, end := s.parseLine(line)
			if end {
				s.done = true
				return "", io.EOF
			}
			if ok {
				if readErr != nil {
					s.pending = s.mapReadErr(readErr)
				}
				return delta, nil
			}
		}
		if readErr != nil {
			s.done = true
			return "", s.mapReadErr(readErr)
		}
	}
}

// parseLine decodes one SSE line. ok reports a delta; end reports the [DONE] sentinel.
func (s *DeltaStream) parseLine(line string) (delta string, ok, end bool) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "data:") {
		return "", false, false
	}
	data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if data == "[DONE]" {
		return "", false, true
	}

	var oaResp providers.OpenAICompatResponse
	if err := json.Unmarshal([]byte(data), &oaResp); err != nil {
		s.logger.Warn("dropping malformed upstream line",
			zap.Int("bytes", len(data)),
			zap.Error(err))
		if s.onMalformed != nil {
			s.onMalformed()
		}
		return "", false, false
	}
	return oaResp.DeltaContent(), true, false
}

func (s *DeltaStream) mapReadErr(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &llm.Error{
		Code: llm.ErrUpstreamError, Message: err.Error(),
		HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: s.provider,
	}
}

// Close releases the response body. It is idempotent.
func (s *DeltaStream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.body.Close()
	})
	return s.closeErr
}
