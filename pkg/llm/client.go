// Package llm 封装 OpenAI 兼容的 chat/completions 接口，供评论生成使用。
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"smarthomes-semantic/internal/config"
	"strings"
	"time"
)

// ErrEmptyCompletion 表示接口返回了空的 choices 或空内容。
var ErrEmptyCompletion = errors.New("chat api returned empty completion")

// Client 是大模型对话接口。
type Client interface {
	// Chat 以 role-based 消息与可选生成参数调用聊天接口，返回第一条回复的内容。
	Chat(ctx context.Context, messages []Message, gen *GenerationParams) (string, error)
}

type chatClient struct {
	cfg    config.LLMConfig
	client *http.Client
}

// NewClient 根据配置创建客户端，单次调用超时 60 秒。
func NewClient(cfg config.LLMConfig) Client {
	return &chatClient{
		cfg:    cfg,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Message 是一条 system/user/assistant 消息。
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Stream      bool      `json:"stream"` // 始终为 false
	Temperature *float64  `json:"temperature,omitempty"`
	TopP        *float64  `json:"top_p,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// GenerationParams 是可选的生成参数，nil 字段回落到配置值。
type GenerationParams struct {
	Temperature *float64
	TopP        *float64
	MaxTokens   *int
}

// merge 逐字段合并生成参数：调用方给出的字段优先，其余取配置中的非零值。
func (c *chatClient) merge(gen *GenerationParams) GenerationParams {
	var out GenerationParams
	if gen != nil {
		out = *gen
	}
	g := c.cfg.Generation
	if out.Temperature == nil && g.Temperature != 0 {
		out.Temperature = Float64(g.Temperature)
	}
	if out.TopP == nil && g.TopP != 0 {
		out.TopP = Float64(g.TopP)
	}
	if out.MaxTokens == nil && g.MaxTokens != 0 {
		out.MaxTokens = Int(g.MaxTokens)
	}
	return out
}

// Chat 发起一次非流式的 chat/completions 调用。
func (c *chatClient) Chat(ctx context.Context, messages []Message, gen *GenerationParams) (string, error) {
	params := c.merge(gen)
	reqBody := chatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		MaxTokens:   params.MaxTokens,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBytes))
	if err != nil {
		return "", fmt.Errorf("failed to create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call chat api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("chat api returned non-200 status: %s, body: %s", resp.Status, string(bodyBytes))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(out.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

// Float64 和 Int 用于构造 GenerationParams 中的可选字段。
func Float64(v float64) *float64 { return &v }

func Int(v int) *int { return &v }
