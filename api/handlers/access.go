package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/BaSui01/diagramflow/api"
	"github.com/BaSui01/diagramflow/internal/access"
	"github.com/BaSui01/diagramflow/types"
	"go.uber.org/zap"
)

// AccessHandler 处理访问密码校验
type AccessHandler struct {
	verifier *access.Verifier
	logger   *zap.Logger
}

// NewAccessHandler 创建访问密码处理器
func NewAccessHandler(verifier *access.Verifier, logger *zap.Logger) *AccessHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessHandler{
		verifier: verifier,
		logger:   logger.With(zap.String("component", "access_handler")),
	}
}

// HandleVerifyPassword 处理 /api/verify-password 请求
// @Summary 校验访问密码
// @Description 校验通过时签发访问令牌，之后的请求通过 accessPassword 携带
// @Tags 访问
// @Accept json
// @Produce json
// @Param request body api.VerifyPasswordRequest true "密码"
// @Success 200 {object} api.VerifyPasswordResponse "校验结果"
// @Failure 400 {object} Response "未提供密码"
// @Failure 500 {object} Response "服务器未配置访问密码"
// @Router /api/verify-password [post]
func (h *AccessHandler) HandleVerifyPassword(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.VerifyPasswordRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Password) == "" {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "请提供密码", h.logger)
		return
	}

	token, err := h.verifier.Verify(req.Password)
	switch {
	case errors.Is(err, access.ErrNotConfigured):
		WriteErrorMessage(w, r, http.StatusInternalServerError, types.ErrNotConfigured, "服务器未配置访问密码", h.logger)
	case errors.Is(err, access.ErrInvalidPassword):
		h.logger.Info("access password rejected", zap.String("client_ip", ClientIP(r)))
		WriteSuccess(w, api.VerifyPasswordResponse{Valid: false})
	case err != nil:
		WriteError(w, r, types.NewError(types.ErrInternalError, "密码验证时发生错误").WithCause(err), h.logger)
	default:
		WriteSuccess(w, api.VerifyPasswordResponse{
			Valid:     true,
			Token:     token.Value,
			ExpiresAt: token.ExpiresAt.Unix(),
		})
	}
}
