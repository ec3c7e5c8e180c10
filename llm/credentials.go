package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	// ErrInvalidAccessToken 访问令牌（访问密码或其签发的 JWT）无效。
	ErrInvalidAccessToken = errors.New("llm: invalid access token")
	// ErrIncompleteCredentials 解析后的 endpoint/key/model 三元组不完整。
	ErrIncompleteCredentials = errors.New("llm: incomplete credentials")
)

// Credentials 是单条流使用的上游凭据三元组。
// 它在流开始前解析完成，流期间不可变，且永不持久化。
type Credentials struct {
	Endpoint string `json:"apiUrl"`
	APIKey   string `json:"apiKey"`
	Model    string `json:"modelName"`
}

// Complete 报告三元组是否齐全。
func (c Credentials) Complete() bool {
	return strings.TrimSpace(c.Endpoint) != "" &&
		strings.TrimSpace(c.APIKey) != "" &&
		strings.TrimSpace(c.Model) != ""
}

func (c Credentials) String() string {
	key := ""
	if c.APIKey != "" {
		key = "***"
	}
	return "Credentials{Endpoint:" + c.Endpoint + ", APIKey:" + key + ", Model:" + c.Model + "}"
}

// MarshalJSON 屏蔽 APIKey，避免凭据通过日志或响应泄漏。
func (c Credentials) MarshalJSON() ([]byte, error) {
	type masked struct {
		Endpoint string `json:"apiUrl,omitempty"`
		APIKey   string `json:"apiKey,omitempty"`
		Model    string `json:"modelName,omitempty"`
	}
	out := masked{Endpoint: c.Endpoint, Model: c.Model}
	if c.APIKey != "" {
		out.APIKey = "***"
	}
	return json.Marshal(out)
}

// TokenChecker 校验访问令牌。
type TokenChecker interface {
	Check(token string) bool
}

// Resolution 是凭据解析的结果。
type Resolution struct {
	Credentials Credentials
	// Unlimited 为 true 时调用方不受每日用量限制（自带配置或访问令牌有效）。
	Unlimited bool
	// Source 取值 "explicit" 或 "server"。
	Source string
}

// Resolver 按优先级解析凭据：完整的显式配置 → 访问令牌校验 → 服务端默认配置。
type Resolver struct {
	defaults Credentials
	checker  TokenChecker
}

// NewResolver 创建凭据解析器。checker 为 nil 时任何非空令牌都视为无效。
func NewResolver(defaults Credentials, checker TokenChecker) *Resolver {
	return &Resolver{defaults: defaults, checker: checker}
}

// Resolve 解析单次请求的凭据。
func (r *Resolver) Resolve(explicit *Credentials, accessToken, selectedModel string) (Resolution, error) {
	if explicit != nil && explicit.Complete() {
		return Resolution{
			Credentials: Credentials{
				Endpoint: strings.TrimSpace(explicit.Endpoint),
				APIKey:   strings.TrimSpace(explicit.APIKey),
				Model:    strings.TrimSpace(explicit.Model),
			},
			Unlimited: true,
			Source:    "explicit",
		}, nil
	}

	unlimited := false
	if token := strings.TrimSpace(accessToken); token != "" {
		if r.checker == nil || !r.checker.Check(token) {
			return Resolution{}, ErrInvalidAccessToken
		}
		unlimited = true
	}

	creds := r.defaults
	if model := strings.TrimSpace(selectedModel); model != "" {
		creds.Model = model
	}
	if !creds.Complete() {
		return Resolution{}, ErrIncompleteCredentials
	}

	return Resolution{Credentials: creds, Unlimited: unlimited, Source: "server"}, nil
}
