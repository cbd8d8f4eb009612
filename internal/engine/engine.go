package engine

import (
	"context"
	"time"

	"chatpulse-go/internal/model"
	"chatpulse-go/pkg/keypool"
	"chatpulse-go/pkg/llm"
	"chatpulse-go/pkg/log"
)

// 响应来源标记。提供商路径的来源即提供商名称。
const (
	ProvenanceRule     = "rule"
	ProvenanceFallback = "fallback"
)

// maxContextTurns 限制注入提供商请求的历史轮数。
const maxContextTurns = 5

// Request 是一次响应生成的入参。
type Request struct {
	Message        string
	TenantID       uint
	SessionContext []Turn
	Provider       string
}

// Turn 是调用方提供的一条历史对话。
type Turn struct {
	Role    string // customer / ai / human
	Content string
}

// Result 是响应生成的结果。除 keypool 游标外引擎不保留任何跨调用状态。
type Result struct {
	ResponseText  string
	Provenance    string
	MatchedRuleID *uint
}

// RuleSource 提供租户当前生效的规则集（只读协作方）。
type RuleSource interface {
	ActiveRules(ctx context.Context, tenantID uint) ([]model.AIRule, error)
}

// Options 控制级联的节奏。RetryDelay 为相邻两次 key 尝试之间的
// 固定间隔，设为 0 可关闭（测试用）；RequestTimeout 约束单次提供商调用。
type Options struct {
	SystemPrompt    string
	DefaultProvider string
	RequestTimeout  time.Duration
	RetryDelay      time.Duration
}

// Engine 是响应生成引擎的门面：规则命中 → 提供商级联 → 兜底回复。
// 对外唯一的约定是：只要入参形状合法，GenerateResponse 永远返回一条
// 文本回复，任何规则、模板或提供商错误都不会抛给调用方。
type Engine struct {
	rules     RuleSource
	providers map[string]llm.Provider
	pools     map[string]*keypool.Pool
	opts      Options
}

// New 创建引擎。providers 与 pools 以提供商名称为键，两者共同决定
// 受支持的提供商集合；未注册的提供商名直接走兜底路径。
func New(rules RuleSource, providers map[string]llm.Provider, pools map[string]*keypool.Pool, opts Options) *Engine {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	return &Engine{
		rules:     rules,
		providers: providers,
		pools:     pools,
		opts:      opts,
	}
}

// Providers 返回配置了至少一个可用 key 的提供商名称列表。
func (e *Engine) Providers() []string {
	names := make([]string, 0, len(e.providers))
	for name := range e.providers {
		if pool := e.pools[name]; pool != nil && pool.Size() > 0 {
			names = append(names, name)
		}
	}
	return names
}

// GenerateResponse 执行完整的级联流程。
//
//  1. 规则命中立即渲染返回，不接触任何提供商、不消耗 key。
//  2. 未命中时按 key 轮换调用所选提供商，每个不同的 key 至多尝试一次，
//     相邻尝试之间插入固定延迟；单次调用受请求超时约束。
//  3. 全部失败、提供商未配置或名称不受支持时，返回分类兜底回复。
func (e *Engine) GenerateResponse(ctx context.Context, req Request) Result {
	if req.Provider == "" {
		req.Provider = e.opts.DefaultProvider
	}

	// 1. 规则匹配
	rules, err := e.rules.ActiveRules(ctx, req.TenantID)
	if err != nil {
		// 规则读取失败不终止流程，继续走提供商路径
		log.Warnf("引擎: 读取租户 %d 的规则失败: %v", req.TenantID, err)
		rules = nil
	}
	if rule := matchRule(rules, req.Message); rule != nil {
		text, rerr := renderTemplate(rule.ResponseTemplate, req.Message)
		if rerr == nil {
			ruleID := rule.ID
			return Result{ResponseText: text, Provenance: ProvenanceRule, MatchedRuleID: &ruleID}
		}
		// 模板缺失的规则按未命中处理，继续级联
		log.Warnf("引擎: 规则 %d 模板缺失，跳过: %v", rule.ID, rerr)
	}

	// 2. 提供商级联
	if text, ok := e.tryProvider(ctx, req); ok {
		return Result{ResponseText: text, Provenance: req.Provider}
	}

	// 3. 兜底回复。此路径永不向调用方抛错。
	return Result{ResponseText: cannedResponse(req.Message), Provenance: ProvenanceFallback}
}

// tryProvider 对所选提供商执行 key 轮换重试，轮完一圈即止。
func (e *Engine) tryProvider(ctx context.Context, req Request) (string, bool) {
	provider, ok := e.providers[req.Provider]
	if !ok {
		log.Warnf("引擎: 不支持的提供商 '%s'，转入兜底回复", req.Provider)
		return "", false
	}
	pool := e.pools[req.Provider]
	if pool == nil || pool.Size() == 0 {
		return "", false
	}

	lreq := e.buildRequest(req)
	attempts := pool.Size()
	for i := 0; i < attempts; i++ {
		// 调用方取消后不再发起新的尝试
		if ctx.Err() != nil {
			log.Warnf("引擎: 请求已取消，终止对 '%s' 的剩余尝试", req.Provider)
			return "", false
		}

		key, ok := pool.Next()
		if !ok {
			return "", false
		}

		text, err := e.attempt(ctx, provider, key, lreq)
		if err == nil && text != "" {
			return text, true
		}
		if err == nil {
			// 成功返回但内容为空，同样视为本次尝试失败
			log.Warnf("引擎: 提供商 '%s' 第 %d/%d 次尝试返回空响应", req.Provider, i+1, attempts)
		} else {
			log.Warnf("引擎: 提供商 '%s' 第 %d/%d 次尝试失败: %v", req.Provider, i+1, attempts, err)
		}

		// 相邻尝试之间的刻意延迟是体验平滑手段，与正确性无关
		if i < attempts-1 && e.opts.RetryDelay > 0 {
			select {
			case <-time.After(e.opts.RetryDelay):
			case <-ctx.Done():
				return "", false
			}
		}
	}
	return "", false
}

// attempt 执行单次提供商调用，带独立的请求超时。
func (e *Engine) attempt(ctx context.Context, provider llm.Provider, key string, req llm.Request) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	defer cancel()
	return provider.Generate(callCtx, key, req)
}

// buildRequest 组装提供商请求：系统提示 + 最近 5 轮历史 + 当前消息。
func (e *Engine) buildRequest(req Request) llm.Request {
	turns := req.SessionContext
	if len(turns) > maxContextTurns {
		turns = turns[len(turns)-maxContextTurns:]
	}

	messages := make([]llm.Message, 0, len(turns)+1)
	for _, t := range turns {
		role := "assistant"
		if t.Role == model.MessageTypeCustomer {
			role = "user"
		}
		messages = append(messages, llm.Message{Role: role, Content: t.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: req.Message})

	return llm.Request{
		SystemPrompt: e.opts.SystemPrompt,
		Messages:     messages,
	}
}
