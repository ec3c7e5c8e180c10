package handlers

import (
	"net/http"

	"github.com/BaSui01/diagramflow/api"
	"github.com/BaSui01/diagramflow/config"
)

// ModelsHandler 返回服务端配置的可选模型列表
type ModelsHandler struct {
	models []api.Model
}

// NewModelsHandler 由 llm.models 列表与默认模型创建处理器。列表在启动时解析一次。
func NewModelsHandler(cfg config.LLMConfig) *ModelsHandler {
	infos := config.ParseModels(cfg.Models, cfg.Model)
	models := make([]api.Model, 0, len(infos))
	for _, m := range infos {
		models = append(models, api.Model{ID: m.ID, Name: m.Name, Description: m.Description})
	}
	return &ModelsHandler{models: models}
}

// HandleModels 处理 /api/models 请求
// @Summary 模型列表
// @Tags 模型
// @Produce json
// @Success 200 {object} api.ModelsResponse "模型列表"
// @Router /api/models [get]
func (h *ModelsHandler) HandleModels(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, api.ModelsResponse{Models: h.models})
}
