/*
Package client 是 DiagramFlow 服务的 Go 客户端与下行流重组器。

Reassembler 消费帧序列：Chunk 帧按序拼接用于实时渲染，
第一个终止帧决定结果，之后的帧被忽略。Final 帧携带的文本为空时，
以已收到的 chunk 拼接作为最终代码。

	c := client.New("http://localhost:8080", client.WithFormat(frame.FormatEvent))
	s, err := c.Generate(ctx, api.GenerateRequest{Text: "用户登录流程"})
	if err != nil {
		return err
	}
	defer s.Close()
	for f, err := range s.Events() {
		...
	}
	res, err := s.Result()

Events 可单独用于任何 io.Reader，例如录制下来的响应体。
DialGenerate 使用 WebSocket 传输，每条消息是一个事件帧。
*/
package client
