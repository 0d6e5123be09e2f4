package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const (
	defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel    = "embedding-001"

	// batchEmbedContents 单次最多100条
	geminiMaxBatch = 100
)

// GeminiClient Google Generative Language 嵌入客户端
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	maxRetries int
}

// NewGeminiClient 创建Gemini嵌入客户端，默认模型 embedding-001
func NewGeminiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGeminiEndpoint
	}
	model := strings.TrimPrefix(cfg.Model, "models/")
	if model == "" {
		model = defaultGeminiModel
	}

	return &GeminiClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		maxRetries: cfg.MaxRetries,
	}, nil
}

// Name 返回模型名称
func (c *GeminiClient) Name() string {
	return c.model
}

// Embed 生成单条文本的向量表示
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成文本的向量表示
func (c *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if len(texts) > geminiMaxBatch {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest,
			fmt.Sprintf("gemini supports maximum %d texts per batch", geminiMaxBatch))
	}

	modelName := "models/" + c.model
	req := GeminiBatchRequest{Requests: make([]GeminiEmbedRequest, len(texts))}
	for i, text := range texts {
		req.Requests[i] = GeminiEmbedRequest{
			Model:   modelName,
			Content: GeminiContent{Parts: []GeminiPart{{Text: text}}},
		}
	}

	url := fmt.Sprintf("%s/%s:batchEmbedContents", c.baseURL, modelName)
	headers := map[string]string{"x-goog-api-key": c.apiKey}
	status, body, err := postJSON(ctx, c.httpClient, url, headers, req, c.maxRetries)
	if err != nil {
		return nil, err
	}

	if status != http.StatusOK {
		var errResp GeminiErrorResponse
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error.Message != "" {
			return nil, NewEmbeddingError(codeForStatus(status),
				fmt.Sprintf("API error (status %d): %s (%s)", status, errResp.Error.Message, errResp.Error.Status))
		}
		return nil, NewEmbeddingError(codeForStatus(status),
			fmt.Sprintf("API error (status %d): %s", status, string(body)))
	}

	var resp GeminiBatchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("failed to parse response: %v", err))
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings)))
	}

	result := make([][]float32, len(texts))
	for i, emb := range resp.Embeddings {
		result[i] = emb.Values
	}
	if err := checkComplete(result); err != nil {
		return nil, err
	}
	return result, nil
}

func init() {
	RegisterClient("gemini", NewGeminiClient)
}
