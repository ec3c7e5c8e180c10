package client

import (
	"errors"
	"io"
	"iter"

	"github.com/BaSui01/diagramflow/api/frame"
)

// Events 以惰性序列的形式返回 r 中的帧：只在调用方迭代时读取，
// 在终止帧之后停止。正常读到末尾时序列直接结束；其他读错误作为最后一个元素产出。
func Events(r io.Reader, format frame.Format) iter.Seq2[frame.Frame, error] {
	d := frame.NewDecoder(r, format)
	return seq(d.Next)
}

// seq 把 next 函数适配为帧序列。next 以 io.EOF 表示结束。
func seq(next func() (frame.Frame, error)) iter.Seq2[frame.Frame, error] {
	return func(yield func(frame.Frame, error) bool) {
		for {
			f, err := next()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(nil, err)
				}
				return
			}
			if !yield(f, nil) || f.Terminal() {
				return
			}
		}
	}
}
