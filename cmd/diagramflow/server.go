package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/BaSui01/diagramflow/api/handlers"
	"github.com/BaSui01/diagramflow/config"
	"github.com/BaSui01/diagramflow/internal/access"
	"github.com/BaSui01/diagramflow/internal/metrics"
	"github.com/BaSui01/diagramflow/internal/server"
	"github.com/BaSui01/diagramflow/internal/telemetry"
	"github.com/BaSui01/diagramflow/internal/usage"
	"github.com/BaSui01/diagramflow/llm"
	"github.com/BaSui01/diagramflow/llm/providers/openaicompat"
	"github.com/BaSui01/diagramflow/relay"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 DiagramFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	// 指标
	registry  *prometheus.Registry
	collector *metrics.Collector

	limiter usage.Limiter

	// Handlers
	healthHandler  *handlers.HealthHandler
	diagramHandler *handlers.DiagramHandler
	modelsHandler  *handlers.ModelsHandler
	accessHandler  *handlers.AccessHandler
}

// NewServer 按配置装配全部组件。otelProviders 可为 nil。
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		logger: logger,
		otel:   otelProviders,
	}

	// 1. 指标收集器：独立 Registry，附带 Go 运行时与进程指标
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.collector = metrics.NewCollectorWith(s.registry, "diagramflow", logger)

	// 2. 用量限额
	limiter, err := usage.New(cfg.Usage, cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to init usage limiter: %w", err)
	}
	s.limiter = limiter

	// 3. Handlers
	s.initHandlers()

	return s, nil
}

// initHandlers 初始化所有 handlers
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger).WithVersion(Version)
	s.healthHandler.RegisterCheck(handlers.UpstreamConfigCheck(s.cfg.LLM.Credentials()))
	if rl, ok := s.limiter.(*usage.RedisLimiter); ok {
		s.healthHandler.RegisterCheck(handlers.NewRedisHealthCheck(rl.Ping))
	}

	provider := openaicompat.New(openaicompat.Config{
		Timeout:         s.cfg.LLM.Timeout,
		OnMalformedLine: s.collector.RecordMalformedLine,
	}, s.logger)

	verifier := access.NewVerifier(s.cfg.Access, s.logger)
	resolver := llm.NewResolver(s.cfg.LLM.Credentials(), verifier)

	rl := relay.New(s.cfg.Stream.Fallback(), s.logger,
		relay.WithObserver(s.collector),
		relay.WithTracer(s.otel.Tracer("diagramflow/relay")),
	)

	s.diagramHandler = handlers.NewDiagramHandler(handlers.DiagramConfig{
		Upstream:         handlers.FromProvider(provider),
		Resolver:         resolver,
		Relay:            rl,
		Limiter:          s.limiter,
		Recorder:         s.collector,
		MaxChars:         s.cfg.Stream.MaxChars,
		WSOriginPatterns: originPatterns(s.cfg.Server.CORSAllowedOrigins),
	}, s.logger)
	s.modelsHandler = handlers.NewModelsHandler(s.cfg.LLM)
	s.accessHandler = handlers.NewAccessHandler(verifier, s.logger)

	s.logger.Info("Handlers initialized",
		zap.Bool("server_llm_configured", s.cfg.LLM.Credentials().Complete()),
		zap.Bool("access_password_configured", verifier.Configured()),
		zap.Int("daily_limit", s.cfg.Usage.DailyLimit),
		zap.String("usage_backend", s.cfg.Usage.Backend),
	)
}

// =============================================================================
// 🌐 路由
// =============================================================================

// Handler 返回挂好中间件链的主服务 handler。ctx 结束时停止限流器的清理 goroutine。
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// API 路由
	mux.HandleFunc("POST /api/"+handlers.RouteGenerate, s.diagramHandler.HandleGenerate)
	mux.HandleFunc("POST /api/"+handlers.RouteFix, s.diagramHandler.HandleFix)
	mux.HandleFunc("POST /api/"+handlers.RouteOptimize, s.diagramHandler.HandleOptimize)
	mux.HandleFunc("POST /api/"+handlers.RouteSuggestions, s.diagramHandler.HandleSuggestions)
	mux.HandleFunc("GET /api/"+handlers.RouteGenerateWS, s.diagramHandler.HandleGenerateWS)
	mux.HandleFunc("GET /api/models", s.modelsHandler.HandleModels)
	mux.HandleFunc("POST /api/verify-password", s.accessHandler.HandleVerifyPassword)
	mux.HandleFunc("/", notFound(s.logger))

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		OTelTracing(s.otel.Tracer("diagramflow/http")),
		MetricsMiddleware(s.collector),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	)
}

// MetricsHandler 返回 /metrics 服务的 handler
func (s *Server) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry}))
	return mux
}

// =============================================================================
// 🚀 运行与关闭
// =============================================================================

// Run 启动 HTTP 与 Metrics 服务器并阻塞到 ctx 结束，随后并发优雅关闭。
// 任一服务器异常退出都会导致另一个被关闭。
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	httpManager := server.NewManager(s.Handler(gctx),
		server.FromServerConfig("http", s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)
	g.Go(func() error { return httpManager.Run(gctx) })

	if s.cfg.Server.MetricsPort > 0 {
		metricsManager := server.NewManager(s.MetricsHandler(),
			server.FromServerConfig("metrics", s.cfg.Server, s.cfg.Server.MetricsPort), s.logger)
		g.Go(func() error { return metricsManager.Run(gctx) })
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return g.Wait()
}

// Close 释放限额器并刷新遥测数据
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	if s.limiter != nil {
		if err := s.limiter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close usage limiter: %w", err))
		}
	}
	if err := s.otel.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// originPatterns 把 CORS 来源（含协议）转换成 WebSocket 握手使用的主机模式
func originPatterns(origins []string) []string {
	var patterns []string
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			patterns = append(patterns, "*")
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		patterns = append(patterns, o)
	}
	return patterns
}
