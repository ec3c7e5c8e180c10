package api

import (
	"github.com/BaSui01/diagramflow/llm"
)

// =============================================================================
// 流式请求
// =============================================================================

// AIConfig 是请求体中调用方自带的上游配置。
// 与 llm.Credentials 不同，它按原样序列化 apiKey，仅用于线上传输。
type AIConfig struct {
	APIURL    string `json:"apiUrl"`
	APIKey    string `json:"apiKey"`
	ModelName string `json:"modelName"`
}

// Credentials 转换为上游凭据；nil 接收者返回 nil。
func (c *AIConfig) Credentials() *llm.Credentials {
	if c == nil {
		return nil
	}
	return &llm.Credentials{Endpoint: c.APIURL, APIKey: c.APIKey, Model: c.ModelName}
}

// Access 是三个流式请求共享的访问字段。
type Access struct {
	// 调用方自带的上游配置；三项齐全时优先使用，且不受每日用量限制
	AIConfig *AIConfig `json:"aiConfig,omitempty"`
	// 访问密码或 verify-password 返回的令牌
	AccessPassword string `json:"accessPassword,omitempty"`
	// 使用服务端配置时选择的模型 ID
	SelectedModel string `json:"selectedModel,omitempty"`
}

// GenerateRequest 代表从文本生成图表的请求。
// @Description 生成 Mermaid 图表
type GenerateRequest struct {
	// 待转换的文本
	Text string `json:"text" binding:"required"`
	// 图表类型（auto、flowchart、sequence 等）
	DiagramType string `json:"diagramType,omitempty" example:"auto"`
	// 提示语言（zh、en）
	Language string `json:"language,omitempty" example:"zh"`
	Access
}

// FixRequest 代表修复 Mermaid 语法错误的请求。
type FixRequest struct {
	MermaidCode  string `json:"mermaidCode" binding:"required"`
	ErrorMessage string `json:"errorMessage,omitempty"`
	Access
}

// OptimizeRequest 代表按指令优化图表的请求。
type OptimizeRequest struct {
	MermaidCode string `json:"mermaidCode" binding:"required"`
	Instruction string `json:"instruction,omitempty"` // 可选
	Access
}

// SuggestionsRequest 代表获取优化建议的请求。
type SuggestionsRequest struct {
	MermaidCode string `json:"mermaidCode" binding:"required"`
	Access
}

// =============================================================================
// 响应
// =============================================================================

// Suggestion 是一条优化建议。
type Suggestion struct {
	Title       string `json:"title"`
	Instruction string `json:"instruction"`
}

// SuggestionsResponse 是建议接口的响应数据。
type SuggestionsResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// Model 描述一个可选模型。
type Model struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ModelsResponse 是模型列表接口的响应数据。
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// VerifyPasswordRequest 代表访问密码校验请求。
type VerifyPasswordRequest struct {
	Password string `json:"password"`
}

// VerifyPasswordResponse 是访问密码校验的响应数据。
type VerifyPasswordResponse struct {
	Valid bool `json:"valid"`
	// 校验通过时签发的访问令牌，后续请求通过 accessPassword 携带
	Token string `json:"token,omitempty"`
	// 令牌过期时间（Unix 秒）
	ExpiresAt int64 `json:"expiresAt,omitempty"`
}

// =============================================================================
// 错误包
// =============================================================================

// ErrorBody 是失败响应的 JSON 包：{"success":false,"error":{...},"timestamp":...}。
type ErrorBody struct {
	Success bool `json:"success"`
	Error   *struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable,omitempty"`
	} `json:"error,omitempty"`
}
