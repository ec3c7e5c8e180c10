package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/BaSui01/diagramflow/api"
	"github.com/BaSui01/diagramflow/api/frame"
	"github.com/BaSui01/diagramflow/client"
	"github.com/BaSui01/diagramflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// sseUpstream 模拟 OpenAI 兼容的流式接口，按 deltas 逐条下发
func sseUpstream(t *testing.T, deltas ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Stream bool `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		if !body.Stream {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"choices":[{"message":{"content":"{\"suggestions\":[{\"title\":\"配色\",\"instruction\":\"统一节点颜色\"}]}"}}]}`)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, d := range deltas {
			b, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{{"delta": map[string]string{"content": d}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", b)
			flusher.Flush()
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(upstreamURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.HTTPPort = 0
	cfg.Server.MetricsPort = 0
	cfg.Server.RateLimitRPS = 0
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.LLM.Endpoint = upstreamURL
	cfg.LLM.APIKey = "sk-server"
	cfg.LLM.Model = "gpt-test"
	cfg.LLM.Models = "gpt-test:Test:Fast,gpt-big:Big"
	cfg.Access.Password = "open-sesame"
	cfg.Access.TokenTTL = time.Hour
	cfg.Usage.DailyLimit = 2
	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *httptest.Server) {
	t.Helper()
	s, err := NewServer(cfg, zap.NewNop(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ts := httptest.NewServer(s.Handler(ctx))
	t.Cleanup(func() {
		ts.Close()
		cancel()
		_ = s.Close(context.Background())
	})
	return s, ts
}

func TestServer_HealthEndpoints(t *testing.T) {
	up := sseUpstream(t)
	_, ts := newTestServer(t, testConfig(up.URL))

	for _, path := range []string{"/health", "/healthz", "/ready", "/readyz", "/version"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
			assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
		})
	}
}

func TestServer_ReadyFailsWithoutServerCredentials(t *testing.T) {
	cfg := testConfig("")
	cfg.LLM.APIKey = ""
	_, ts := newTestServer(t, cfg)

	resp, err := http.Get(ts.URL + "/ready")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestServer_GenerateThroughClient(t *testing.T) {
	up := sseUpstream(t, "好的：\n```mermaid\n", "graph TD\nA-->", "B\n```\n")
	_, ts := newTestServer(t, testConfig(up.URL))

	for _, format := range []frame.Format{frame.FormatBare, frame.FormatEvent} {
		t.Run(format.String(), func(t *testing.T) {
			c := client.New(ts.URL, client.WithFormat(format), client.WithAccessToken("open-sesame"))
			stream, err := c.Generate(context.Background(), api.GenerateRequest{Text: "用户登录流程"})
			require.NoError(t, err)

			res, err := stream.Result()
			require.NoError(t, err)
			assert.Equal(t, "graph TD\nA-->B", res.Code)
			assert.Contains(t, res.Streamed, "A-->B")
		})
	}
}

func TestServer_DailyQuota(t *testing.T) {
	up := sseUpstream(t, "```mermaid\ngraph TD\nA-->B\n```")
	_, ts := newTestServer(t, testConfig(up.URL))

	c := client.New(ts.URL)
	for range 2 {
		stream, err := c.Fix(context.Background(), api.FixRequest{MermaidCode: "graph TD\nA-->"})
		require.NoError(t, err)
		_, err = stream.Result()
		require.NoError(t, err)
	}

	_, err := c.Fix(context.Background(), api.FixRequest{MermaidCode: "graph TD\nA-->"})
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)

	// 访问密码持有者不受限额约束
	authed := client.New(ts.URL, client.WithAccessToken("open-sesame"))
	stream, err := authed.Fix(context.Background(), api.FixRequest{MermaidCode: "graph TD\nA-->"})
	require.NoError(t, err)
	_, err = stream.Result()
	require.NoError(t, err)
}

func TestServer_VerifyPasswordTokenUnlocksStreaming(t *testing.T) {
	up := sseUpstream(t, "```mermaid\ngraph LR\nX-->Y\n```")
	cfg := testConfig(up.URL)
	cfg.Usage.DailyLimit = 1
	_, ts := newTestServer(t, cfg)

	c := client.New(ts.URL)
	verified, err := c.VerifyPassword(context.Background(), "open-sesame")
	require.NoError(t, err)
	require.True(t, verified.Valid)
	require.NotEmpty(t, verified.Token)

	tokenClient := client.New(ts.URL, client.WithAccessToken(verified.Token))
	for range 3 {
		stream, err := tokenClient.Optimize(context.Background(), api.OptimizeRequest{
			MermaidCode: "graph LR\nX-->Y",
			Instruction: "加上标题",
		})
		require.NoError(t, err)
		res, err := stream.Result()
		require.NoError(t, err)
		assert.Equal(t, "graph LR\nX-->Y", res.Code)
	}
}

func TestServer_InvalidAccessToken(t *testing.T) {
	up := sseUpstream(t)
	_, ts := newTestServer(t, testConfig(up.URL))

	c := client.New(ts.URL, client.WithAccessToken("wrong"))
	_, err := c.Generate(context.Background(), api.GenerateRequest{Text: "abc"})

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestServer_ModelsAndSuggestions(t *testing.T) {
	up := sseUpstream(t)
	_, ts := newTestServer(t, testConfig(up.URL))
	c := client.New(ts.URL, client.WithAccessToken("open-sesame"))

	models, err := c.Models(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "gpt-test", models[0].ID)
	assert.Equal(t, "Big", models[1].Description)

	suggestions, err := c.Suggestions(context.Background(), api.SuggestionsRequest{MermaidCode: "graph TD\nA-->B"})
	require.NoError(t, err)
	assert.Equal(t, []api.Suggestion{{Title: "配色", Instruction: "统一节点颜色"}}, suggestions)
}

func TestServer_WebSocketGenerate(t *testing.T) {
	up := sseUpstream(t, "```mermaid\n", "sequenceDiagram\nA->>B: hi\n", "```")
	_, ts := newTestServer(t, testConfig(up.URL))

	c := client.New(ts.URL, client.WithAccessToken("open-sesame"))
	stream, err := c.DialGenerate(context.Background(), api.GenerateRequest{Text: "问候", DiagramType: "sequence"})
	require.NoError(t, err)

	res, err := stream.Result()
	require.NoError(t, err)
	assert.Equal(t, "sequenceDiagram\nA->>B: hi", res.Code)
}

func TestServer_UnknownRouteAndMethod(t *testing.T) {
	up := sseUpstream(t)
	_, ts := newTestServer(t, testConfig(up.URL))

	resp, err := http.Get(ts.URL + "/api/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/api/models", "application/json", bytes.NewReader([]byte("{}")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEqual(t, http.StatusOK, resp.StatusCode)
}

func TestServer_MetricsHandler(t *testing.T) {
	up := sseUpstream(t, "```mermaid\ngraph TD\nA\n```")
	s, ts := newTestServer(t, testConfig(up.URL))

	stream, err := client.New(ts.URL, client.WithAccessToken("open-sesame")).
		Generate(context.Background(), api.GenerateRequest{Text: "one node"})
	require.NoError(t, err)
	_, err = stream.Result()
	require.NoError(t, err)

	scrape := func() string {
		w := httptest.NewRecorder()
		s.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		body, _ := io.ReadAll(w.Body)
		return string(body)
	}

	// 流与请求指标在 handler 返回时记录，可能晚于客户端读到 Final 帧
	require.Eventually(t, func() bool {
		text := scrape()
		return strings.Contains(text, `diagramflow_streams_total{outcome="completed",route="generate-mermaid"} 1`) &&
			strings.Contains(text, `diagramflow_http_requests_total{method="POST",path="/api/generate-mermaid",status="2xx"} 1`)
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, scrape(), "go_goroutines")
}

func TestServer_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig("")
	s, err := NewServer(cfg, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewServer_UnknownUsageBackend(t *testing.T) {
	cfg := testConfig("")
	cfg.Usage.Backend = "etcd"

	_, err := NewServer(cfg, zap.NewNop(), nil)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "usage"))
}

func TestOriginPatterns(t *testing.T) {
	got := originPatterns([]string{"https://app.example.com", " http://localhost:3000 ", "*", "", "bare.example"})
	assert.Equal(t, []string{"app.example.com", "localhost:3000", "*", "bare.example"}, got)
}

func TestInitLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger := initLogger(config.LogConfig{Level: "debug", Format: format, OutputPaths: []string{"stderr"}})
		require.NotNil(t, logger)
		assert.True(t, logger.Core().Enabled(zap.DebugLevel))
	}

	logger := initLogger(config.LogConfig{Level: "bogus"})
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
}
