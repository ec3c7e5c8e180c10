package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/diagramflow/config"
	"github.com/BaSui01/diagramflow/internal/usage"
	"github.com/BaSui01/diagramflow/llm"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	completeDefaults   = llm.Credentials{Endpoint: "https://api.example.com/v1", APIKey: "sk-server", Model: "gpt-4o-mini"}
	incompleteDefaults = llm.Credentials{Endpoint: "https://api.example.com/v1"}
)

func decodeHealth(t *testing.T, w *httptest.ResponseRecorder) ServiceHealthResponse {
	t.Helper()
	var status ServiceHealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	return status
}

// redisPing 返回指向 miniredis 的用量限额器 Ping
func redisPing(t *testing.T) (*miniredis.Miniredis, func(context.Context) error) {
	t.Helper()
	mr := miniredis.RunT(t)
	l, err := usage.NewRedisLimiter(config.RedisConfig{Addr: mr.Addr()}, 10, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return mr, l.Ping
}

func TestHealthHandler_LivenessIgnoresChecks(t *testing.T) {
	h := NewHealthHandler(zap.NewNop()).WithVersion("1.2.3")
	// 存活检查不运行就绪检查，上游未配置也应返回 200
	h.RegisterCheck(UpstreamConfigCheck(incompleteDefaults))

	for path, handle := range map[string]http.HandlerFunc{"/health": h.HandleHealth, "/healthz": h.HandleHealthz} {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			handle(w, httptest.NewRequest(http.MethodGet, path, nil))

			assert.Equal(t, http.StatusOK, w.Code)
			status := decodeHealth(t, w)
			assert.Equal(t, "healthy", status.Status)
			assert.Equal(t, "1.2.3", status.Version)
			assert.False(t, status.Timestamp.IsZero())
			assert.Empty(t, status.Checks)
		})
	}
}

func TestHealthHandler_HandleReady(t *testing.T) {
	tests := []struct {
		name           string
		defaults       llm.Credentials
		withRedis      bool
		redisDown      bool
		expectedStatus int
		checkStatus    func(*testing.T, *ServiceHealthResponse)
	}{
		{
			name:           "memory backend with server defaults",
			defaults:       completeDefaults,
			expectedStatus: http.StatusOK,
			checkStatus: func(t *testing.T, status *ServiceHealthResponse) {
				assert.Equal(t, "healthy", status.Status)
				assert.Len(t, status.Checks, 1)
				assert.Equal(t, "pass", status.Checks["upstream_config"].Status)
			},
		},
		{
			name:           "missing server defaults",
			defaults:       incompleteDefaults,
			expectedStatus: http.StatusServiceUnavailable,
			checkStatus: func(t *testing.T, status *ServiceHealthResponse) {
				assert.Equal(t, "unhealthy", status.Status)
				assert.Equal(t, "fail", status.Checks["upstream_config"].Status)
				assert.Equal(t, "server default AI config incomplete", status.Checks["upstream_config"].Message)
			},
		},
		{
			name:           "redis backend reachable",
			defaults:       completeDefaults,
			withRedis:      true,
			expectedStatus: http.StatusOK,
			checkStatus: func(t *testing.T, status *ServiceHealthResponse) {
				assert.Len(t, status.Checks, 2)
				assert.Equal(t, "pass", status.Checks["redis"].Status)
				assert.NotEmpty(t, status.Checks["redis"].Latency)
			},
		},
		{
			name:           "redis backend down",
			defaults:       completeDefaults,
			withRedis:      true,
			redisDown:      true,
			expectedStatus: http.StatusServiceUnavailable,
			checkStatus: func(t *testing.T, status *ServiceHealthResponse) {
				assert.Equal(t, "unhealthy", status.Status)
				assert.Equal(t, "pass", status.Checks["upstream_config"].Status)
				assert.Equal(t, "fail", status.Checks["redis"].Status)
				assert.NotEmpty(t, status.Checks["redis"].Message)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(zap.NewNop())
			h.RegisterCheck(UpstreamConfigCheck(tt.defaults))
			if tt.withRedis {
				mr, ping := redisPing(t)
				h.RegisterCheck(NewRedisHealthCheck(ping))
				if tt.redisDown {
					mr.Close()
				}
			}

			w := httptest.NewRecorder()
			h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			status := decodeHealth(t, w)
			tt.checkStatus(t, &status)
		})
	}
}

func TestHealthHandler_ReadyHonoursRequestContext(t *testing.T) {
	h := NewHealthHandler(zap.NewNop())
	h.RegisterCheck(NewFuncHealthCheck("upstream_reachable", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := httptest.NewRecorder()
	h.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil).WithContext(ctx))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	status := decodeHealth(t, w)
	assert.Equal(t, "context canceled", status.Checks["upstream_reachable"].Message)
}

func TestHealthHandler_HandleVersion(t *testing.T) {
	handler := NewHealthHandler(zap.NewNop())

	w := httptest.NewRecorder()
	handler.HandleVersion("0.4.0", "2026-10-01T08:00:00Z", "9f3c2ab")(w, httptest.NewRequest(http.MethodGet, "/version", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)

	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "0.4.0", data["version"])
	assert.Equal(t, "2026-10-01T08:00:00Z", data["build_time"])
	assert.Equal(t, "9f3c2ab", data["git_commit"])
}

func TestHealthHandler_ConcurrentReady(t *testing.T) {
	_, ping := redisPing(t)
	handler := NewHealthHandler(nil)
	handler.RegisterCheck(UpstreamConfigCheck(completeDefaults))
	handler.RegisterCheck(NewRedisHealthCheck(ping))

	done := make(chan int)
	for range 10 {
		go func() {
			w := httptest.NewRecorder()
			handler.HandleReady(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
			done <- w.Code
		}()
	}
	for range 10 {
		assert.Equal(t, http.StatusOK, <-done)
	}
}

func TestBuiltinChecks(t *testing.T) {
	ctx := context.Background()

	mr, ping := redisPing(t)
	redis := NewRedisHealthCheck(ping)
	assert.Equal(t, "redis", redis.Name())
	assert.NoError(t, redis.Check(ctx))
	mr.Close()
	assert.Error(t, redis.Check(ctx))

	incomplete := UpstreamConfigCheck(incompleteDefaults)
	assert.Equal(t, "upstream_config", incomplete.Name())
	assert.Error(t, incomplete.Check(ctx))
	assert.NoError(t, UpstreamConfigCheck(completeDefaults).Check(ctx))
}
