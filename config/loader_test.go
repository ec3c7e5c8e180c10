// 配置加载器测试。
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoader_LoadDefaults(t *testing.T) {
	cfg, err := NewLoader().WithLegacyEnv(false).Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 20000, cfg.Stream.MaxChars)
}

func TestLoader_LoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 8888
  read_timeout: 60s
  cors_allowed_origins: ["https://a.example.com"]

llm:
  endpoint: "https://api.example.com/v1"
  api_key: "sk-yaml"
  model: "gpt-4o"
  models: "gpt-4o:GPT-4o,deepseek-chat"

access:
  password: "open-sesame"
  token_ttl: 2h

stream:
  max_chars: 5000
  markers: ["备注"]

usage:
  daily_limit: 3
  backend: redis

redis:
  addr: "redis.example.com:6379"
  db: 1

log:
  level: "debug"
  format: "console"
`)

	cfg, err := NewLoader().WithConfigPath(path).WithLegacyEnv(false).Load()
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Server.HTTPPort)
	assert.Equal(t, 60*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, []string{"https://a.example.com"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, "https://api.example.com/v1", cfg.LLM.Endpoint)
	assert.Equal(t, "sk-yaml", cfg.LLM.APIKey)
	assert.Equal(t, "gpt-4o:GPT-4o,deepseek-chat", cfg.LLM.Models)
	assert.Equal(t, "open-sesame", cfg.Access.Password)
	assert.Equal(t, 2*time.Hour, cfg.Access.TokenTTL)
	assert.Equal(t, 5000, cfg.Stream.MaxChars)
	assert.Equal(t, []string{"备注"}, cfg.Stream.Markers)
	assert.Equal(t, 3, cfg.Usage.DailyLimit)
	assert.Equal(t, "redis", cfg.Usage.Backend)
	assert.Equal(t, "redis.example.com:6379", cfg.Redis.Addr)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, "debug", cfg.Log.Level)

	// 未出现在 YAML 中的字段保留默认值
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().
		WithConfigPath(filepath.Join(t.TempDir(), "absent.yaml")).
		WithLegacyEnv(false).
		Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	_, err := NewLoader().WithConfigPath(path).Load()
	assert.Error(t, err)
}

func TestLoader_LoadFromEnv(t *testing.T) {
	t.Setenv("DIAGRAMFLOW_SERVER_HTTP_PORT", "7777")
	t.Setenv("DIAGRAMFLOW_SERVER_RATE_LIMIT_RPS", "2.5")
	t.Setenv("DIAGRAMFLOW_SERVER_CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("DIAGRAMFLOW_LLM_TIMEOUT", "90s")
	t.Setenv("DIAGRAMFLOW_STREAM_TOKENS", "graph,-->")
	t.Setenv("DIAGRAMFLOW_TELEMETRY_ENABLED", "true")
	t.Setenv("DIAGRAMFLOW_LOG_LEVEL", "warn")

	cfg, err := NewLoader().WithLegacyEnv(false).Load()
	require.NoError(t, err)

	assert.Equal(t, 7777, cfg.Server.HTTPPort)
	assert.Equal(t, 2.5, cfg.Server.RateLimitRPS)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.Server.CORSAllowedOrigins)
	assert.Equal(t, 90*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, []string{"graph", "-->"}, cfg.Stream.Tokens)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoader_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
server:
  http_port: 8888
llm:
  model: "yaml-model"
  endpoint: "https://yaml.example.com"
`)
	t.Setenv("DIAGRAMFLOW_SERVER_HTTP_PORT", "9999")
	t.Setenv("DIAGRAMFLOW_LLM_MODEL", "env-model")

	cfg, err := NewLoader().WithConfigPath(path).WithLegacyEnv(false).Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.HTTPPort)
	assert.Equal(t, "env-model", cfg.LLM.Model)
	assert.Equal(t, "https://yaml.example.com", cfg.LLM.Endpoint)
}

func TestLoader_LegacyEnv(t *testing.T) {
	t.Setenv("AI_API_URL", "https://legacy.example.com")
	t.Setenv("AI_API_KEY", "sk-legacy")
	t.Setenv("AI_MODEL_NAME", "legacy-model")
	t.Setenv("AI_MODELS", "a:A,b:B")
	t.Setenv("ACCESS_PASSWORD", "pw")
	t.Setenv("DAILY_USAGE_LIMIT", "5")
	t.Setenv("MAX_CHARS", "1234")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "https://legacy.example.com", cfg.LLM.Endpoint)
	assert.Equal(t, "sk-legacy", cfg.LLM.APIKey)
	assert.Equal(t, "legacy-model", cfg.LLM.Model)
	assert.Equal(t, "a:A,b:B", cfg.LLM.Models)
	assert.Equal(t, "pw", cfg.Access.Password)
	assert.Equal(t, 5, cfg.Usage.DailyLimit)
	assert.Equal(t, 1234, cfg.Stream.MaxChars)
}

func TestLoader_PrefixedEnvBeatsLegacy(t *testing.T) {
	t.Setenv("AI_MODEL_NAME", "legacy-model")
	t.Setenv("DIAGRAMFLOW_LLM_MODEL", "prefixed-model")
	t.Setenv("NEXT_PUBLIC_MAX_CHARS", "300")
	t.Setenv("MAX_CHARS", "200")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, "prefixed-model", cfg.LLM.Model)
	assert.Equal(t, 200, cfg.Stream.MaxChars, "first legacy name wins")
}

func TestLoader_LegacyEnvDisabled(t *testing.T) {
	t.Setenv("AI_MODEL_NAME", "legacy-model")

	cfg, err := NewLoader().WithLegacyEnv(false).Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.LLM.Model)
}

func TestLoader_CustomEnvPrefix(t *testing.T) {
	t.Setenv("MYAPP_SERVER_HTTP_PORT", "6666")

	cfg, err := NewLoader().WithEnvPrefix("MYAPP").WithLegacyEnv(false).Load()
	require.NoError(t, err)
	assert.Equal(t, 6666, cfg.Server.HTTPPort)
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("DIAGRAMFLOW_SERVER_HTTP_PORT", "not-a-number")

	_, err := NewLoader().Load()
	assert.Error(t, err)
}

func TestLoader_Validators(t *testing.T) {
	_, err := NewLoader().
		WithLegacyEnv(false).
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	assert.NoError(t, err)

	t.Setenv("DIAGRAMFLOW_USAGE_BACKEND", "etcd")
	_, err = NewLoader().
		WithLegacyEnv(false).
		WithValidator(func(c *Config) error { return c.Validate() }).
		Load()
	assert.ErrorContains(t, err, "unknown usage backend")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.HTTPPort = 0 }, wantErr: "invalid HTTP port"},
		{name: "port clash", mutate: func(c *Config) { c.Server.MetricsPort = c.Server.HTTPPort }, wantErr: "metrics port must differ"},
		{name: "burst", mutate: func(c *Config) { c.Server.RateLimitBurst = 0 }, wantErr: "rate_limit_burst"},
		{name: "max chars", mutate: func(c *Config) { c.Stream.MaxChars = 0 }, wantErr: "max_chars"},
		{name: "token ttl", mutate: func(c *Config) { c.Access.Password = "pw"; c.Access.TokenTTL = 0 }, wantErr: "token_ttl"},
		{name: "negative limit", mutate: func(c *Config) { c.Usage.DailyLimit = -1 }, wantErr: "daily_limit"},
		{name: "redis addr", mutate: func(c *Config) { c.Usage.Backend = "redis"; c.Redis.Addr = "" }, wantErr: "redis addr"},
		{name: "log level", mutate: func(c *Config) { c.Log.Level = "verbose" }, wantErr: "invalid log level"},
		{name: "sample rate", mutate: func(c *Config) { c.Telemetry.SampleRate = 2 }, wantErr: "sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestConfig_ValidateAggregates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.HTTPPort = -1
	cfg.Log.Level = "loud"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid HTTP port")
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestMustLoad_Panics(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	assert.Panics(t, func() { MustLoad(path) })
}
