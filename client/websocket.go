package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/BaSui01/diagramflow/api"
	"github.com/BaSui01/diagramflow/api/frame"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// wsReadLimit 限制单条消息大小；最终帧携带完整图表代码。
const wsReadLimit = 1 << 20

// DialGenerate 通过 WebSocket 生成图表：发送一条请求消息，
// 之后每条文本消息是一个事件帧 JSON 对象，服务端在终止帧后正常关闭连接。
func (c *Client) DialGenerate(ctx context.Context, req api.GenerateRequest) (*Stream, error) {
	c.fill(&req.Access)

	url := wsURL(c.baseURL) + "/api/generate-mermaid/ws"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: c.httpClient})
	if err != nil {
		return nil, fmt.Errorf("client: websocket dial: %w", err)
	}
	conn.SetReadLimit(wsReadLimit)

	if err := wsjson.Write(ctx, conn, req); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "write failed")
		return nil, fmt.Errorf("client: websocket write: %w", err)
	}

	skipped := 0
	next := func() (frame.Frame, error) {
		for {
			typ, data, err := conn.Read(ctx)
			if err != nil {
				if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
					return nil, io.EOF
				}
				return nil, fmt.Errorf("client: websocket read: %w", err)
			}
			if typ != websocket.MessageText {
				continue
			}
			f, err := frame.DecodeEventPayload(data)
			if err != nil {
				skipped++
				c.logger.Debug("skipping malformed websocket message", zap.Int("skipped", skipped), zap.Error(err))
				continue
			}
			return f, nil
		}
	}
	return newStream(next, wsCloser{conn}), nil
}

type wsCloser struct {
	conn *websocket.Conn
}

func (w wsCloser) Close() error {
	err := w.conn.Close(websocket.StatusNormalClosure, "")
	var ce websocket.CloseError
	if err == nil || errors.As(err, &ce) {
		return nil
	}
	return err
}

func wsURL(base string) string {
	switch {
	case strings.HasPrefix(base, "https://"):
		return "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		return "ws://" + strings.TrimPrefix(base, "http://")
	default:
		return base
	}
}
