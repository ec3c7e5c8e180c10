// =============================================================================
// DiagramFlow 默认配置
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		LLM:       DefaultLLMConfig(),
		Access:    DefaultAccessConfig(),
		Stream:    DefaultStreamConfig(),
		Usage:     DefaultUsageConfig(),
		Redis:     DefaultRedisConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    0,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
	}
}

// DefaultLLMConfig 返回默认上游配置；端点、密钥与模型需由部署提供
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Timeout: 60 * time.Second,
	}
}

// DefaultAccessConfig 返回默认访问控制配置
func DefaultAccessConfig() AccessConfig {
	return AccessConfig{
		TokenTTL: 24 * time.Hour,
	}
}

// DefaultStreamConfig 返回默认流式提取配置
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		MaxChars: 20000,
	}
}

// DefaultUsageConfig 返回默认用量配置（不限制）
func DefaultUsageConfig() UsageConfig {
	return UsageConfig{
		DailyLimit: 0,
		Backend:    "memory",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "diagramflow",
		SampleRate:   0.1,
	}
}
