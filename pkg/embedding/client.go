// Package embedding provides a client for interacting with embedding models.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"smarthomes-semantic/internal/config"
	"smarthomes-semantic/pkg/log"
)

// Provider 是对 embedding 服务的单次调用，不包含重试。
type Provider interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

type openAICompatibleProvider struct {
	cfg    config.EmbeddingConfig
	client *http.Client
}

// NewProvider creates an OpenAI-compatible provider from the embedding config.
func NewProvider(cfg config.EmbeddingConfig, httpClient *http.Client) Provider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &openAICompatibleProvider{
		cfg:    cfg,
		client: httpClient,
	}
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// CreateEmbedding calls the OpenAI-compatible API to get the vector for a given text.
// Failures are returned as *Error classified as Transient or Permanent.
func (p *openAICompatibleProvider) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	log.Debugf("[EmbeddingClient] 开始调用 Embedding API, model: %s, input_len: %d", p.cfg.Model, len(text))
	reqBody := embeddingRequest{
		Model:      p.cfg.Model,
		Input:      []string{text},
		Dimensions: p.cfg.Dimensions,
	}

	reqBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, permanentError(0, fmt.Errorf("failed to marshal embedding request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embeddings", bytes.NewReader(reqBytes))
	if err != nil {
		return nil, permanentError(0, fmt.Errorf("failed to create embedding request: %w", err))
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, permanentError(0, ctxErr)
		}
		log.Warnf("[EmbeddingClient] 调用 Embedding API 失败, error: %v", err)
		return nil, transientError(0, fmt.Errorf("failed to call embedding api: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		log.Warnf("[EmbeddingClient] Embedding API 返回非 200 状态码: %s", resp.Status)
		return nil, &Error{
			Kind:       classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("embedding api returned non-200 status: %s: %s", resp.Status, bytes.TrimSpace(body)),
		}
	}

	var embeddingResp embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embeddingResp); err != nil {
		log.Errorf("[EmbeddingClient] 解析 Embedding API 响应失败, error: %v", err)
		return nil, permanentError(resp.StatusCode, fmt.Errorf("failed to decode embedding response: %w", err))
	}

	if len(embeddingResp.Data) == 0 || len(embeddingResp.Data[0].Embedding) == 0 {
		log.Warnf("[EmbeddingClient] Embedding API 返回了空的向量数据")
		return nil, permanentError(resp.StatusCode, ErrEmptyEmbedding)
	}

	log.Debugf("[EmbeddingClient] 成功从 Embedding API 获取向量, 维度: %d", len(embeddingResp.Data[0].Embedding))
	return embeddingResp.Data[0].Embedding, nil
}
