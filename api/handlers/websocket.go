package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/BaSui01/diagramflow/api"
	"github.com/BaSui01/diagramflow/api/frame"
	"github.com/BaSui01/diagramflow/llm"
	"github.com/BaSui01/diagramflow/types"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// RouteGenerateWS WebSocket 生成接口的路由名
const RouteGenerateWS = "generate-mermaid/ws"

// =============================================================================
// 🔌 WebSocket 生成接口
// =============================================================================

// HandleGenerateWS 处理 /api/generate-mermaid/ws。
// 客户端发送一条 api.GenerateRequest JSON 消息；服务端把每一帧作为一条
// 事件帧 JSON 文本消息发送，终止帧之后以 1000 正常关闭。
// 请求校验或准入失败同样以一条 Error 帧报告。
func (h *DiagramHandler) HandleGenerateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		// Accept 已写出 HTTP 错误
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(maxBodyBytes)

	ctx := r.Context()
	var req api.GenerateRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		h.logger.Debug("websocket request unreadable", zap.Error(err))
		_ = conn.Close(websocket.StatusUnsupportedData, "invalid request")
		return
	}

	// 之后不再读取；对端关闭时 ctx 被取消，relay 按下游断开处理
	ctx = conn.CloseRead(ctx)
	fw := newWSFrameWriter(ctx, conn)

	msgs, apiErr := h.generateMessages(&req)
	if apiErr == nil {
		var res llm.Resolution
		res, _, apiErr = h.admit(ctx, ClientIP(r), req.Access)
		if apiErr == nil {
			h.relay.Run(types.WithRoute(ctx, RouteGenerateWS), h.opener(res.Credentials, msgs), fw)
		}
	}
	if apiErr != nil {
		h.logger.Info("websocket request rejected",
			zap.String("code", string(apiErr.Code)),
			zap.String("message", apiErr.Message))
		_ = fw.Write(frame.Error{Message: apiErr.Message})
	}

	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// wsFrameWriter 把帧编码为事件帧 JSON 并作为文本消息发送。
// 写操作通过 mutex 保护，WebSocket 不支持并发写。
type wsFrameWriter struct {
	ctx        context.Context
	conn       *websocket.Conn
	mu         sync.Mutex
	terminated bool
}

func newWSFrameWriter(ctx context.Context, conn *websocket.Conn) *wsFrameWriter {
	return &wsFrameWriter{ctx: ctx, conn: conn}
}

// Write 实现 relay.FrameWriter。
func (w *wsFrameWriter) Write(f frame.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.terminated {
		return frame.ErrTerminated
	}
	data, err := frame.MarshalEvent(f)
	if err != nil {
		return err
	}
	if f.Terminal() {
		w.terminated = true
	}
	if err := w.conn.Write(w.ctx, websocket.MessageText, data); err != nil {
		w.terminated = true
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}
