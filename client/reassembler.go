package client

import (
	"errors"
	"strings"

	"github.com/BaSui01/diagramflow/api/frame"
)

// ErrIncomplete 表示流在出现终止帧之前就结束了。
var ErrIncomplete = errors.New("client: stream ended without a final or error frame")

// StreamError 是服务端通过 Error 帧报告的错误。
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return "client: stream error: " + e.Message }

// Result 是一条流的最终结果。
type Result struct {
	// Code 是最终图表代码：Final 帧非空时取其内容，否则取已收到的 chunk 拼接。
	Code string
	// Streamed 是所有 Chunk 帧内容按序拼接的结果。
	// 服务端启发式提取改写了文本时，它可能与 Code 不同。
	Streamed string
}

// Reassembler 累积 Chunk 帧，并在第一个终止帧处得出结果；之后的帧被忽略。
// 零值可直接使用。
type Reassembler struct {
	streamed strings.Builder
	done     bool
	result   Result
	err      error
}

// Observe 处理一帧，返回流是否已结束。
func (r *Reassembler) Observe(f frame.Frame) bool {
	if r.done {
		return true
	}
	switch v := f.(type) {
	case frame.Chunk:
		r.streamed.WriteString(v.Payload)
	case frame.Final:
		r.done = true
		streamed := r.streamed.String()
		code := v.Payload
		if code == "" {
			code = streamed
		}
		r.result = Result{Code: code, Streamed: streamed}
	case frame.Error:
		r.done = true
		r.err = &StreamError{Message: v.Message}
	}
	return r.done
}

// Done 报告是否已观察到终止帧。
func (r *Reassembler) Done() bool { return r.done }

// Streamed 返回迄今收到的 chunk 拼接，可用于实时渲染。
func (r *Reassembler) Streamed() string { return r.streamed.String() }

// Result 返回最终结果。未观察到终止帧时返回 ErrIncomplete，
// 此时 Result.Streamed 仍携带已收到的部分内容。
func (r *Reassembler) Result() (Result, error) {
	if !r.done {
		return Result{Streamed: r.streamed.String()}, ErrIncomplete
	}
	if r.err != nil {
		return Result{Streamed: r.streamed.String()}, r.err
	}
	return r.result, nil
}
