package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- DefaultConfig aggregate ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Zero(t, cfg.Server.WriteTimeout, "streaming server must not set a write deadline")
	assert.Equal(t, 15*time.Second, cfg.Server.ShutdownTimeout)

	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Empty(t, cfg.LLM.Endpoint)

	assert.Equal(t, 24*time.Hour, cfg.Access.TokenTTL)
	assert.Equal(t, 20000, cfg.Stream.MaxChars)
	assert.Equal(t, 0, cfg.Usage.DailyLimit)
	assert.Equal(t, "memory", cfg.Usage.Backend)

	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, []string{"stdout"}, cfg.Log.OutputPaths)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "diagramflow", cfg.Telemetry.ServiceName)
}

func TestDefaultConfig_IsValid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestStreamConfig_Fallback(t *testing.T) {
	cfg := StreamConfig{Markers: []string{"note"}, Tokens: []string{"-->"}}
	fb := cfg.Fallback()
	assert.Equal(t, []string{"note"}, fb.Markers)
	assert.Equal(t, []string{"-->"}, fb.Tokens)
}

func TestLLMConfig_Credentials(t *testing.T) {
	cfg := LLMConfig{Endpoint: "https://api.example.com", APIKey: "sk", Model: "gpt-4o"}
	creds := cfg.Credentials()
	assert.True(t, creds.Complete())
	assert.Equal(t, "gpt-4o", creds.Model)
}
