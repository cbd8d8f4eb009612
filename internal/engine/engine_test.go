package engine

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"chatpulse-go/internal/model"
	"chatpulse-go/pkg/keypool"
	"chatpulse-go/pkg/llm"
	"chatpulse-go/pkg/log"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	log.Init("error", "console", "")
	os.Exit(m.Run())
}

// staticRules 以固定规则集实现 RuleSource。
type staticRules struct {
	rules []model.AIRule
	err   error
}

func (s *staticRules) ActiveRules(ctx context.Context, tenantID uint) ([]model.AIRule, error) {
	return s.rules, s.err
}

// fakeProvider 记录每个 key 的调用次数，并按预设脚本返回结果。
type fakeProvider struct {
	mu       sync.Mutex
	name     string
	calls    int
	keysSeen []string
	respond  func(key string) (string, error)
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, apiKey string, req llm.Request) (string, error) {
	f.mu.Lock()
	f.calls++
	f.keysSeen = append(f.keysSeen, apiKey)
	f.mu.Unlock()
	if f.respond != nil {
		return f.respond(apiKey)
	}
	return "", &llm.ProviderError{Provider: f.name, Kind: llm.KindTransient, Message: "scripted failure"}
}

func mustRule(t *testing.T, id uint, keywords []string, template string, priority int) model.AIRule {
	t.Helper()
	r := model.AIRule{ID: id, Name: "rule", ResponseTemplate: template, IsActive: true, Priority: priority}
	require.NoError(t, r.SetKeywordList(keywords))
	return r
}

func newTestEngine(rules []model.AIRule, provider *fakeProvider, pool *keypool.Pool) *Engine {
	providers := map[string]llm.Provider{}
	pools := map[string]*keypool.Pool{}
	if provider != nil {
		providers[provider.name] = provider
		pools[provider.name] = pool
	}
	return New(&staticRules{rules: rules}, providers, pools, Options{
		SystemPrompt:   "You are a helpful assistant.",
		RequestTimeout: time.Second,
		RetryDelay:     0, // 测试中关闭重试间隔
	})
}

func TestRuleMatchSkipsProviders(t *testing.T) {
	provider := &fakeProvider{name: "openai"}
	rules := []model.AIRule{
		mustRule(t, 1, []string{"refund"}, "We will process your refund for: {message}", 5),
	}
	e := newTestEngine(rules, provider, keypool.New("k1"))

	res := e.GenerateResponse(context.Background(), Request{
		Message:  "I need a refund please",
		TenantID: 1,
		Provider: "openai",
	})

	assert.Equal(t, "We will process your refund for: I need a refund please", res.ResponseText)
	assert.Equal(t, ProvenanceRule, res.Provenance)
	require.NotNil(t, res.MatchedRuleID)
	assert.Equal(t, uint(1), *res.MatchedRuleID)
	// 规则命中路径不得消耗任何提供商调用
	assert.Equal(t, 0, provider.calls)
}

func TestRuleMatchCaseInsensitiveSubstring(t *testing.T) {
	rules := []model.AIRule{
		mustRule(t, 7, []string{"REFUND"}, "ok: {message}", 1),
	}
	e := newTestEngine(rules, nil, nil)

	res := e.GenerateResponse(context.Background(), Request{Message: "about my Refunds...", TenantID: 1, Provider: "openai"})
	assert.Equal(t, ProvenanceRule, res.Provenance)
}

func TestRulePriorityAndInsertionOrder(t *testing.T) {
	rules := []model.AIRule{
		mustRule(t, 1, []string{"order"}, "low priority", 1),
		mustRule(t, 2, []string{"order"}, "high priority", 9),
		mustRule(t, 3, []string{"order"}, "high priority but later", 9),
	}
	e := newTestEngine(rules, nil, nil)

	res := e.GenerateResponse(context.Background(), Request{Message: "where is my order", TenantID: 1, Provider: "openai"})
	require.NotNil(t, res.MatchedRuleID)
	// 最高优先级获胜，平级取先入库者
	assert.Equal(t, uint(2), *res.MatchedRuleID)
}

func TestInactiveAndMalformedRulesNeverMatch(t *testing.T) {
	inactive := mustRule(t, 1, []string{"hello"}, "inactive", 10)
	inactive.IsActive = false
	malformed := model.AIRule{ID: 2, TriggerKeywords: "{not json", ResponseTemplate: "broken", IsActive: true, Priority: 10}

	e := newTestEngine([]model.AIRule{inactive, malformed}, nil, nil)
	res := e.GenerateResponse(context.Background(), Request{Message: "hello there", TenantID: 1, Provider: "openai"})
	assert.Equal(t, ProvenanceFallback, res.Provenance)
}

func TestEmptyTemplateFallsThroughCascade(t *testing.T) {
	broken := model.AIRule{ID: 4, ResponseTemplate: "", IsActive: true, Priority: 5}
	require.NoError(t, broken.SetKeywordList([]string{"billing"}))

	provider := &fakeProvider{name: "openai", respond: func(string) (string, error) { return "from provider", nil }}
	e := newTestEngine([]model.AIRule{broken}, provider, keypool.New("k1"))

	res := e.GenerateResponse(context.Background(), Request{Message: "billing question", TenantID: 1, Provider: "openai"})
	// 模板缺失的命中规则不产生空回复，而是继续级联
	assert.Equal(t, "from provider", res.ResponseText)
	assert.Equal(t, "openai", res.Provenance)
	assert.Nil(t, res.MatchedRuleID)
}

func TestProviderSuccessFirstKey(t *testing.T) {
	provider := &fakeProvider{name: "gemini", respond: func(string) (string, error) { return "generated reply", nil }}
	e := newTestEngine(nil, provider, keypool.New("g1", "g2", "g3"))

	res := e.GenerateResponse(context.Background(), Request{Message: "tell me something", TenantID: 1, Provider: "gemini"})
	assert.Equal(t, "generated reply", res.ResponseText)
	assert.Equal(t, "gemini", res.Provenance)
	assert.Equal(t, 1, provider.calls)
}

func TestProviderRotationOnFailure(t *testing.T) {
	provider := &fakeProvider{name: "gemini", respond: func(key string) (string, error) {
		if key == "g3" {
			return "third time lucky", nil
		}
		return "", &llm.ProviderError{Provider: "gemini", Kind: llm.KindRateLimited, Message: "quota"}
	}}
	e := newTestEngine(nil, provider, keypool.New("g1", "g2", "g3"))

	res := e.GenerateResponse(context.Background(), Request{Message: "anything", TenantID: 1, Provider: "gemini"})
	assert.Equal(t, "third time lucky", res.ResponseText)
	assert.Equal(t, "gemini", res.Provenance)
	assert.Equal(t, []string{"g1", "g2", "g3"}, provider.keysSeen)
}

func TestEmptyProviderResponseRotatesKeys(t *testing.T) {
	// err == nil 但内容为空，按失败处理并轮换到下一个 key
	provider := &fakeProvider{name: "openai", respond: func(key string) (string, error) {
		if key == "k2" {
			return "real answer", nil
		}
		return "", nil
	}}
	e := newTestEngine(nil, provider, keypool.New("k1", "k2"))

	res := e.GenerateResponse(context.Background(), Request{Message: "anything", TenantID: 1, Provider: "openai"})
	assert.Equal(t, "real answer", res.ResponseText)
	assert.Equal(t, []string{"k1", "k2"}, provider.keysSeen)
}

func TestAllKeysFailAttemptsEqualPoolSize(t *testing.T) {
	provider := &fakeProvider{name: "gemini"}
	e := newTestEngine(nil, provider, keypool.New("g1", "g2", "g3", "g4"))

	res := e.GenerateResponse(context.Background(), Request{Message: "hi there", TenantID: 1, Provider: "gemini"})
	assert.Equal(t, ProvenanceFallback, res.Provenance)
	// 每个不同的 key 恰好尝试一次
	assert.Equal(t, 4, provider.calls)
	// "hi there" 属于问候类兜底
	assert.Equal(t, cannedResponses[categoryGreeting], res.ResponseText)
}

func TestNoCredentialsSkipsNetworkEntirely(t *testing.T) {
	provider := &fakeProvider{name: "openai"}
	e := newTestEngine(nil, provider, keypool.New())

	res := e.GenerateResponse(context.Background(), Request{Message: "is this thing on?", TenantID: 1, Provider: "openai"})
	assert.Equal(t, ProvenanceFallback, res.Provenance)
	assert.Equal(t, 0, provider.calls)
	// 以问号结尾的消息归入 question 类兜底
	assert.Equal(t, cannedResponses[categoryQuestion], res.ResponseText)
}

func TestUnsupportedProviderFallsBack(t *testing.T) {
	provider := &fakeProvider{name: "openai"}
	e := newTestEngine(nil, provider, keypool.New("k1"))

	res := e.GenerateResponse(context.Background(), Request{Message: "hello", TenantID: 1, Provider: "watson"})
	assert.Equal(t, ProvenanceFallback, res.Provenance)
	assert.Equal(t, 0, provider.calls)
}

func TestRuleSourceErrorStillReplies(t *testing.T) {
	providers := map[string]llm.Provider{}
	pools := map[string]*keypool.Pool{}
	e := New(&staticRules{err: errors.New("db down")}, providers, pools, Options{RequestTimeout: time.Second})

	res := e.GenerateResponse(context.Background(), Request{Message: "hello", TenantID: 1, Provider: "openai"})
	assert.Equal(t, ProvenanceFallback, res.Provenance)
	assert.NotEmpty(t, res.ResponseText)
}

func TestCancelledContextStopsCascade(t *testing.T) {
	provider := &fakeProvider{name: "gemini"}
	e := newTestEngine(nil, provider, keypool.New("g1", "g2", "g3"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.GenerateResponse(ctx, Request{Message: "hello", TenantID: 1, Provider: "gemini"})
	// 取消后不再发起新的提供商尝试，但调用方仍得到一条回复
	assert.Equal(t, ProvenanceFallback, res.Provenance)
	assert.Equal(t, 0, provider.calls)
}

func TestSessionContextCappedAtFiveTurns(t *testing.T) {
	var got llm.Request
	provider := &fakeProvider{name: "openai", respond: func(string) (string, error) { return "ok", nil }}
	inner := provider.respond
	provider.respond = func(key string) (string, error) { return inner(key) }

	e := New(&staticRules{}, map[string]llm.Provider{"openai": captureProvider{provider, &got}}, map[string]*keypool.Pool{"openai": keypool.New("k")}, Options{RequestTimeout: time.Second})

	turns := make([]Turn, 8)
	for i := range turns {
		turns[i] = Turn{Role: model.MessageTypeCustomer, Content: string(rune('a' + i))}
	}
	res := e.GenerateResponse(context.Background(), Request{Message: "current", TenantID: 1, SessionContext: turns, Provider: "openai"})

	assert.Equal(t, "ok", res.ResponseText)
	// 最近 5 轮 + 当前消息
	require.Len(t, got.Messages, 6)
	assert.Equal(t, "d", got.Messages[0].Content)
	assert.Equal(t, "current", got.Messages[5].Content)
}

// captureProvider 在转发调用的同时记录请求内容。
type captureProvider struct {
	inner *fakeProvider
	req   *llm.Request
}

func (c captureProvider) Name() string { return c.inner.Name() }

func (c captureProvider) Generate(ctx context.Context, apiKey string, req llm.Request) (string, error) {
	*c.req = req
	return c.inner.Generate(ctx, apiKey, req)
}

func TestRenderTemplateReplacesEveryOccurrence(t *testing.T) {
	out, err := renderTemplate("a {message} b {message}", "hello")
	require.NoError(t, err)
	assert.Equal(t, "a hello b hello", out)

	_, err = renderTemplate("", "hello")
	assert.Error(t, err)
}

func TestProvidersListsOnlyConfigured(t *testing.T) {
	providers := map[string]llm.Provider{
		"openai": &fakeProvider{name: "openai"},
		"gemini": &fakeProvider{name: "gemini"},
	}
	pools := map[string]*keypool.Pool{
		"openai": keypool.New("k1"),
		"gemini": keypool.New(),
	}
	e := New(&staticRules{}, providers, pools, Options{RequestTimeout: time.Second})
	assert.Equal(t, []string{"openai"}, e.Providers())
}
