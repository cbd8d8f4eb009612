package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"chatpulse-go/internal/config"
)

type openaiProvider struct {
	cfg    config.AIProviderConfig
	client *http.Client
}

// NewOpenAI 创建 OpenAI chat-completions 接口的适配器。
func NewOpenAI(cfg config.AIProviderConfig) Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-3.5-turbo"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 150
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.7
	}
	return &openaiProvider{
		cfg:    cfg,
		client: &http.Client{},
	}
}

func (p *openaiProvider) Name() string { return "openai" }

type openaiChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate 以单次非流式请求调用 chat completions 接口。
// API Key 只写入本次请求的 Authorization 头，不保存在客户端上。
func (p *openaiProvider) Generate(ctx context.Context, apiKey string, r Request) (string, error) {
	msgs := make([]Message, 0, len(r.Messages)+1)
	if r.SystemPrompt != "" {
		msgs = append(msgs, Message{Role: "system", Content: r.SystemPrompt})
	}
	msgs = append(msgs, r.Messages...)

	reqBody := openaiChatRequest{
		Model:       p.cfg.Model,
		Messages:    msgs,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.cfg.BaseURL+"/chat/completions", bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", wrapTransportError(p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return "", classifyStatus(p.Name(), resp.StatusCode, string(bodyBytes))
	}

	var chat openaiChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", &ProviderError{Provider: p.Name(), Kind: KindTransient, Message: err.Error()}
	}
	if len(chat.Choices) == 0 {
		return "", &ProviderError{Provider: p.Name(), Kind: KindTransient, Message: "empty choices in response"}
	}
	return strings.TrimSpace(chat.Choices[0].Message.Content), nil
}
