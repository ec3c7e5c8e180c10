// Package usage 实现按客户端的每日调用额度。
//
// 使用服务端默认凭据且未携带有效访问令牌的请求，在流开始之前
// 通过 Limiter.Allow 计数；额度用完时请求以 429 拒绝。
// 自带上游配置或访问令牌有效的调用方不计入额度。
package usage
