// Package access 实现访问密码校验与访问令牌。
//
// verify-password 接口用 Verifier.Verify 换取一个有时效的 HS256 令牌；
// 之后的请求可在 accessPassword 字段中携带该令牌或原始密码，
// 由 Verifier.Check（llm.TokenChecker）校验。
package access
