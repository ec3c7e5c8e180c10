// Package relay 把上游增量流转发给下游，同时增量提取第一个围栏代码块。
//
// Relay.Run 是一个单 goroutine 的拉取循环：每收到一个增量就交给
// streaming.FenceExtractor，可输出的内容立即作为 Chunk 帧写出，然后才请求下一个增量，
// 因此下游背压会自然地暂停上游读取。上游结束后写出唯一的 Final 帧；
// 上游失败写出唯一的 Error 帧；下游断开时停止拉取并关闭上游，不再写帧。
package relay
