// =============================================================================
// DiagramFlow Stream Relay
// =============================================================================
// Pulls deltas from the upstream, runs them through the fence extractor and
// forwards every emitted chunk downstream before asking for the next delta.
// One Run call serves exactly one stream; all state lives in a session value.
// =============================================================================

package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BaSui01/diagramflow/api/frame"
	"github.com/BaSui01/diagramflow/llm"
	"github.com/BaSui01/diagramflow/llm/streaming"
	"github.com/BaSui01/diagramflow/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/BaSui01/diagramflow/relay"

// DeltaSource 是一条已打开的上游流。Recv 以 io.EOF 表示正常结束。
type DeltaSource interface {
	Recv() (string, error)
	Close() error
}

// Opener 打开上游流。返回错误时不会有任何增量。
type Opener func(ctx context.Context) (DeltaSource, error)

// FrameWriter 写出下行帧。frame.Writer 与 WebSocket 适配器都实现它。
type FrameWriter interface {
	Write(f frame.Frame) error
}

// Outcome 描述一次流的结局。
type Outcome string

const (
	// OutcomeCompleted 围栏正常闭合。
	OutcomeCompleted Outcome = "completed"
	// OutcomeFallback 围栏未闭合或从未出现，最终结果来自启发式提取。
	OutcomeFallback Outcome = "fallback"
	// OutcomeRejected 上游在开始流之前拒绝了请求。
	OutcomeRejected Outcome = "rejected"
	// OutcomeUpstreamFailure 上游在流中途失败。
	OutcomeUpstreamFailure Outcome = "upstream_failure"
	// OutcomeClientGone 下游断开，流被放弃。
	OutcomeClientGone Outcome = "client_gone"
)

// Report 汇总一次流。
type Report struct {
	ID       string
	Route    string
	Outcome  Outcome
	Chunks   int
	Bytes    int
	Final    string
	Err      error
	Duration time.Duration
}

// Observer 接收流生命周期回调，由指标收集器实现。
type Observer interface {
	StreamStarted(route string)
	StreamFinished(report Report)
}

// Option 配置 Relay。
type Option func(*Relay)

// WithObserver 设置生命周期观察者。
func WithObserver(o Observer) Option {
	return func(r *Relay) { r.observer = o }
}

// WithTracer 设置 tracer，默认使用全局 TracerProvider。
func WithTracer(t trace.Tracer) Option {
	return func(r *Relay) { r.tracer = t }
}

// Relay 驱动上游 → 提取器 → 下游的拉取循环。Relay 本身无状态，可被并发的多条流共享。
type Relay struct {
	fallback *streaming.Fallback
	tracer   trace.Tracer
	observer Observer
	logger   *zap.Logger
}

// New 创建 Relay。
func New(fallback streaming.FallbackConfig, logger *zap.Logger, opts ...Option) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Relay{
		fallback: streaming.NewFallback(fallback),
		logger:   logger.With(zap.String("component", "relay")),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(instrumentationName)
	}
	return r
}

// Run 服务一条流直至结束，返回汇总报告。
// 路由名取自 ctx（types.WithRoute）。写失败或 ctx 取消视为下游断开：
// 停止拉取、关闭上游，不再写任何帧。
func (r *Relay) Run(ctx context.Context, open Opener, w FrameWriter) Report {
	route, _ := types.Route(ctx)
	s := &session{
		relay:     r,
		open:      open,
		w:         w,
		extractor: streaming.NewFenceExtractor(),
		report:    Report{ID: uuid.NewString(), Route: route},
	}
	ctx = types.WithStreamID(ctx, s.report.ID)
	s.logger = r.logger.With(zap.String("stream_id", s.report.ID), zap.String("route", route))
	if reqID, ok := types.RequestID(ctx); ok {
		s.logger = s.logger.With(zap.String("request_id", reqID))
	}

	ctx, span := r.tracer.Start(ctx, "relay.stream", trace.WithAttributes(
		attribute.String("stream.id", s.report.ID),
		attribute.String("stream.route", route),
	))
	defer span.End()

	if r.observer != nil {
		r.observer.StreamStarted(route)
	}

	start := time.Now()
	s.run(ctx)
	s.report.Duration = time.Since(start)

	span.SetAttributes(
		attribute.String("stream.outcome", string(s.report.Outcome)),
		attribute.Int("stream.chunks", s.report.Chunks),
		attribute.Int("stream.bytes", s.report.Bytes),
	)
	if s.report.Err != nil && s.report.Outcome != OutcomeClientGone {
		span.RecordError(s.report.Err)
		span.SetStatus(codes.Error, s.report.Err.Error())
	}

	fields := []zap.Field{
		zap.String("outcome", string(s.report.Outcome)),
		zap.Int("chunks", s.report.Chunks),
		zap.Int("bytes", s.report.Bytes),
		zap.Duration("duration", s.report.Duration),
	}
	switch s.report.Outcome {
	case OutcomeRejected, OutcomeUpstreamFailure:
		s.logger.Warn("stream failed", append(fields, zap.Error(s.report.Err))...)
	case OutcomeClientGone:
		s.logger.Info("client went away", append(fields, zap.Error(s.report.Err))...)
	default:
		s.logger.Info("stream finished", fields...)
	}

	if r.observer != nil {
		r.observer.StreamFinished(s.report)
	}
	return s.report
}

// =============================================================================
// session
// =============================================================================

// session 持有一条流的全部可变状态，生命周期不超过一次 Run。
type session struct {
	relay     *Relay
	open      Opener
	w         FrameWriter
	extractor *streaming.FenceExtractor
	raw       strings.Builder
	report    Report
	logger    *zap.Logger
}

func (s *session) run(ctx context.Context) {
	src, err := s.open(ctx)
	if err == nil && src == nil {
		err = errors.New("relay: opener returned no source")
	}
	if err != nil {
		if ctx.Err() != nil {
			s.gone(ctx.Err())
			return
		}
		s.fail(OutcomeRejected, err, rejectedMessage(err))
		return
	}
	defer src.Close()

	for {
		delta, err := src.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.gone(err)
				return
			}
			s.fail(OutcomeUpstreamFailure, err, streamFailureMessage(err))
			return
		}

		s.raw.WriteString(delta)
		if out := s.extractor.Feed(delta); out != "" {
			if err := s.chunk(out); err != nil {
				s.gone(err)
				return
			}
		}
	}

	if tail := s.extractor.Flush(); tail != "" {
		if err := s.chunk(tail); err != nil {
			s.gone(err)
			return
		}
	}

	if s.extractor.State() == streaming.StateDone {
		s.report.Outcome = OutcomeCompleted
		s.report.Final = strings.TrimSpace(s.extractor.Content())
	} else {
		s.report.Outcome = OutcomeFallback
		s.report.Final = s.relay.fallback.Extract(s.raw.String())
		s.logger.Debug("fence not closed, using fallback",
			zap.String("extractor_state", s.extractor.State().String()),
			zap.Int("raw_bytes", s.raw.Len()))
	}

	if err := s.w.Write(frame.Final{Payload: s.report.Final}); err != nil {
		s.gone(err)
	}
}

func (s *session) chunk(payload string) error {
	if err := s.w.Write(frame.Chunk{Payload: payload}); err != nil {
		return err
	}
	s.report.Chunks++
	s.report.Bytes += len(payload)
	return nil
}

// fail 写出唯一的 Error 帧。写失败意味着下游也已断开，不再重试。
func (s *session) fail(outcome Outcome, err error, msg string) {
	s.report.Outcome = outcome
	s.report.Err = err
	if werr := s.w.Write(frame.Error{Message: msg}); werr != nil {
		s.logger.Debug("error frame not delivered", zap.Error(werr))
	}
}

func (s *session) gone(err error) {
	s.report.Outcome = OutcomeClientGone
	s.report.Err = err
}

// =============================================================================
// messages
// =============================================================================

func rejectedMessage(err error) string {
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		if llmErr.HTTPStatus > 0 {
			return fmt.Sprintf("AI服务返回错误 (%d): %s", llmErr.HTTPStatus, llmErr.Message)
		}
		return "AI服务请求失败: " + llmErr.Message
	}
	return "AI服务请求失败: " + err.Error()
}

func streamFailureMessage(err error) string {
	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		return "处理请求时发生错误: " + llmErr.Message
	}
	return "处理请求时发生错误: " + err.Error()
}
