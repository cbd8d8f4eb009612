// Package llm provides clients for the external AI providers used by the
// response generation engine.
package llm

import "context"

// Message 表示一条角色消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request 是一次生成调用的入参：系统提示与对话消息（历史在前，当前消息在末尾）。
type Request struct {
	SystemPrompt string
	Messages     []Message
}

// Provider 定义了单个 AI 提供商的适配器接口。
// 一次 Generate 调用对应一次网络往返；适配器本身不做重试，
// 重试与 key 轮换由上层级联控制器负责。
// apiKey 随调用显式传入，适配器不持有任何凭证状态，
// 并发请求使用不同的 key 互不影响。
type Provider interface {
	Name() string
	Generate(ctx context.Context, apiKey string, req Request) (string, error)
}
