package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// FailureKind 对提供商调用失败进行归类。
type FailureKind string

const (
	KindAuthFailed  FailureKind = "auth_failed"
	KindRateLimited FailureKind = "rate_limited"
	KindTransient   FailureKind = "transient_error"
	KindTimeout     FailureKind = "timeout"
	KindUnsupported FailureKind = "unsupported"
)

// ProviderError 是归一化后的提供商调用失败。
type ProviderError struct {
	Provider string
	Kind     FailureKind
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s [%d]: %s", e.Provider, e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Kind, e.Message)
}

// classifyStatus 将 HTTP 状态码映射为失败类别。
func classifyStatus(provider string, status int, body string) *ProviderError {
	kind := KindTransient
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = KindAuthFailed
	case status == http.StatusTooManyRequests:
		kind = KindRateLimited
	}
	if len(body) > 512 {
		body = body[:512]
	}
	return &ProviderError{Provider: provider, Kind: kind, Status: status, Message: body}
}

// wrapTransportError 归一化网络层错误，超时单独标记。
func wrapTransportError(provider string, err error) *ProviderError {
	kind := KindTransient
	if errors.Is(err, context.DeadlineExceeded) {
		kind = KindTimeout
	}
	return &ProviderError{Provider: provider, Kind: kind, Message: err.Error()}
}
