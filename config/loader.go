// =============================================================================
// DiagramFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("DIAGRAMFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 前缀环境变量 → 旧版环境变量（对应前缀变量未设置时）
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/diagramflow/llm"
	"github.com/BaSui01/diagramflow/llm/streaming"
	"gopkg.in/yaml.v3"
)

// DefaultEnvPrefix 是环境变量的默认前缀。
const DefaultEnvPrefix = "DIAGRAMFLOW"

// =============================================================================
// 核心配置结构
// =============================================================================

// Config 是 DiagramFlow 的完整配置结构
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	LLM       LLMConfig       `yaml:"llm" env:"LLM"`
	Access    AccessConfig    `yaml:"access" env:"ACCESS"`
	Stream    StreamConfig    `yaml:"stream" env:"STREAM"`
	Usage     UsageConfig     `yaml:"usage" env:"USAGE"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时；0 表示不限制，流式响应的时长不可预知
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"IDLE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// CORS 允许的来源，空表示不发送 CORS 头
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 每个客户端 IP 的请求速率，0 表示不限制
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 突发请求数
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// LLMConfig 服务端默认的上游配置
type LLMConfig struct {
	// OpenAI 兼容接口地址，如 https://api.openai.com 或 https://host/v1
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 默认模型
	Model string `yaml:"model" env:"MODEL"`
	// 可选模型列表，格式 "id:名称:描述,id2:名称2"
	Models string `yaml:"models" env:"MODELS"`
	// 非流式请求的整体超时，也是流式请求的响应头超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// Credentials 返回服务端默认凭据。
func (c LLMConfig) Credentials() llm.Credentials {
	return llm.Credentials{Endpoint: c.Endpoint, APIKey: c.APIKey, Model: c.Model}
}

// AccessConfig 访问控制配置
type AccessConfig struct {
	// 访问密码，为空时关闭密码校验
	Password string `yaml:"password" env:"PASSWORD"`
	// 签发令牌的 HMAC 密钥；为空时由密码派生
	TokenSecret string `yaml:"token_secret" env:"TOKEN_SECRET"`
	// 令牌有效期
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

// StreamConfig 流式提取配置
type StreamConfig struct {
	// 单次请求文本的最大字符数
	MaxChars int `yaml:"max_chars" env:"MAX_CHARS"`
	// 启发式提取时视为说明文字的行标记，空表示使用内置列表
	Markers []string `yaml:"markers" env:"MARKERS"`
	// 启发式提取时视为图表代码的结构记号，空表示使用内置列表
	Tokens []string `yaml:"tokens" env:"TOKENS"`
}

// Fallback 返回启发式提取配置。
func (c StreamConfig) Fallback() streaming.FallbackConfig {
	return streaming.FallbackConfig{Markers: c.Markers, Tokens: c.Tokens}
}

// UsageConfig 每日用量配置
type UsageConfig struct {
	// 每个客户端每日可用次数，0 表示不限制
	DailyLimit int `yaml:"daily_limit" env:"DAILY_LIMIT"`
	// 计数后端: memory, redis
	Backend string `yaml:"backend" env:"BACKEND"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	legacyEnv  bool
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  DefaultEnvPrefix,
		legacyEnv:  true,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithLegacyEnv 控制是否读取旧版部署使用的环境变量（AI_API_URL 等），默认开启
func (l *Loader) WithLegacyEnv(enabled bool) *Loader {
	l.legacyEnv = enabled
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if l.legacyEnv {
		if err := l.loadLegacyEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to load legacy env: %w", err)
		}
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// legacyVars 是原有部署使用的环境变量名，以及它们对应的前缀变量。
var legacyVars = []struct {
	name   string
	suffix string
	field  func(*Config) any
}{
	{"AI_API_URL", "LLM_ENDPOINT", func(c *Config) any { return &c.LLM.Endpoint }},
	{"AI_API_KEY", "LLM_API_KEY", func(c *Config) any { return &c.LLM.APIKey }},
	{"AI_MODEL_NAME", "LLM_MODEL", func(c *Config) any { return &c.LLM.Model }},
	{"AI_MODELS", "LLM_MODELS", func(c *Config) any { return &c.LLM.Models }},
	{"ACCESS_PASSWORD", "ACCESS_PASSWORD", func(c *Config) any { return &c.Access.Password }},
	{"DAILY_USAGE_LIMIT", "USAGE_DAILY_LIMIT", func(c *Config) any { return &c.Usage.DailyLimit }},
	{"MAX_CHARS", "STREAM_MAX_CHARS", func(c *Config) any { return &c.Stream.MaxChars }},
	{"NEXT_PUBLIC_MAX_CHARS", "STREAM_MAX_CHARS", func(c *Config) any { return &c.Stream.MaxChars }},
}

// loadLegacyEnv 读取旧版环境变量；对应的前缀变量已设置时跳过。
func (l *Loader) loadLegacyEnv(cfg *Config) error {
	seen := make(map[string]bool)
	for _, lv := range legacyVars {
		key := l.envPrefix + "_" + lv.suffix
		if os.Getenv(key) != "" || seen[key] {
			continue
		}
		value := os.Getenv(lv.name)
		if value == "" {
			continue
		}
		if err := setFieldValue(reflect.ValueOf(lv.field(cfg)).Elem(), value); err != nil {
			return fmt.Errorf("failed to set %s: %w", lv.name, err)
		}
		seen[key] = true
	}
	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// =============================================================================
// 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置，返回所有问题的聚合错误
func (c *Config) Validate() error {
	var errs []error

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, errors.New("invalid HTTP port"))
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, errors.New("invalid metrics port"))
	}
	if c.Server.MetricsPort != 0 && c.Server.MetricsPort == c.Server.HTTPPort {
		errs = append(errs, errors.New("metrics port must differ from HTTP port"))
	}
	if c.Server.RateLimitRPS < 0 {
		errs = append(errs, errors.New("rate_limit_rps must not be negative"))
	}
	if c.Server.RateLimitRPS > 0 && c.Server.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("rate_limit_burst must be positive when rate limiting is enabled"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm timeout must be positive"))
	}
	if c.Stream.MaxChars <= 0 {
		errs = append(errs, errors.New("stream max_chars must be positive"))
	}
	if c.Access.Password != "" && c.Access.TokenTTL <= 0 {
		errs = append(errs, errors.New("access token_ttl must be positive"))
	}
	if c.Usage.DailyLimit < 0 {
		errs = append(errs, errors.New("usage daily_limit must not be negative"))
	}
	switch c.Usage.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis addr is required for the redis usage backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown usage backend %q", c.Usage.Backend))
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q", c.Log.Level))
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, errors.New("telemetry sample_rate must be between 0 and 1"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %w", errors.Join(errs...))
	}
	return nil
}
