/*
Package frame 定义下行流的帧模型、两种线上编码以及对应的增量解码器。

# 帧

每条流由若干 Chunk 帧和最多一个终止帧（Final 或 Error）组成：

	Chunk("graph TD\n") Chunk("A-->B\n") Final("graph TD\nA-->B")

# 编码

  - FormatBare：紧邻拼接的 JSON 对象，
    {"chunk":s,"done":false} / {"final":s,"done":true} / {"error":s,"done":true}。
  - FormatEvent：SSE 记录 "data: <json>\n\n"，
    {"type":"chunk","data":s} / {"type":"final","data":s,"ok":true} /
    {"type":"error","message":s,"ok":false}。

Writer 逐帧写出并刷新，拒绝终止帧之后的写入（ErrTerminated）。

# 解码

ObjectSplitter 与 EventSplitter 对任意网络分片做增量切分，
DecodeObject / DecodeEvent 在边界处一次性解码为帧，
Decoder 把两者组合为基于 io.Reader 的 Next 接口，并丢弃、计数无法解码的记录。
*/
package frame
