package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// 默认API端点
	defaultDashScopeEndpoint  = "https://dashscope.aliyuncs.com/api/v1/services/embeddings/text-embedding/text-embedding"
	defaultCompatibleEndpoint = "https://dashscope.aliyuncs.com/compatible-mode/v1/embeddings"

	// 默认模型
	defaultTongyiModel = "text-embedding-v1"
)

// TongyiClient 实现通义千问嵌入API客户端
type TongyiClient struct {
	apiKey        string
	endpoint      string
	model         string
	httpClient    *http.Client
	maxRetries    int
	dimensions    int
	useCompatible bool
}

// NewTongyiClient 创建新的通义千问嵌入客户端
func NewTongyiClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	endpoint := cfg.BaseURL
	useCompatible := false
	switch endpoint {
	case "":
		endpoint = defaultDashScopeEndpoint
	case "openai", "compatible":
		endpoint = defaultCompatibleEndpoint
		useCompatible = true
	}

	model := cfg.Model
	if model == "" {
		model = defaultTongyiModel
	}

	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1024
	}

	return &TongyiClient{
		apiKey:        cfg.APIKey,
		endpoint:      endpoint,
		model:         model,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		maxRetries:    cfg.MaxRetries,
		dimensions:    dimensions,
		useCompatible: useCompatible,
	}, nil
}

// Name 返回模型名称
func (c *TongyiClient) Name() string {
	return c.model
}

// Embed 生成单条文本的向量表示
func (c *TongyiClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, NewEmbeddingError(ErrCodeServerError, "no embedding vectors returned")
	}
	return vectors[0], nil
}

// EmbedBatch 批量生成文本的向量表示
func (c *TongyiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if c.isV3Model() && len(texts) > 10 {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "text-embedding-v3 model supports maximum 10 texts per batch")
	} else if !c.isV3Model() && len(texts) > 25 {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "text-embedding-v1/v2 models support maximum 25 texts per batch")
	}
	if c.isV3Model() && !isValidDimension(c.dimensions) {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("invalid dimension: %d", c.dimensions))
	}

	if c.useCompatible {
		return c.embedBatchCompatible(ctx, texts)
	}
	return c.embedBatchDashScope(ctx, texts)
}

// embedBatchCompatible 使用OpenAI兼容接口处理批量文本
func (c *TongyiClient) embedBatchCompatible(ctx context.Context, texts []string) ([][]float32, error) {
	reqData := map[string]interface{}{
		"model":           c.model,
		"input":           texts,
		"encoding_format": "float",
	}
	if c.isV3Model() && c.dimensions != 1024 {
		reqData["dimensions"] = c.dimensions
	}

	var resp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := c.sendRequest(ctx, reqData, &resp); err != nil {
		return nil, err
	}

	result := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			continue
		}
		result[item.Index] = item.Embedding
	}
	return result, checkComplete(result)
}

// embedBatchDashScope 使用DashScope原生接口处理批量文本
func (c *TongyiClient) embedBatchDashScope(ctx context.Context, texts []string) ([][]float32, error) {
	reqData := DashScopeRequest{
		Model: c.model,
		Input: DashScopeRequestInput{Texts: texts},
	}
	if c.isV3Model() {
		params := &DashScopeParameters{OutputType: "dense"}
		if c.dimensions != 1024 {
			params.Dimension = c.dimensions
		}
		reqData.Parameters = params
	}

	var resp DashScopeResponse
	if err := c.sendRequest(ctx, reqData, &resp); err != nil {
		return nil, err
	}

	if resp.StatusCode != 0 && resp.StatusCode != http.StatusOK {
		return nil, NewEmbeddingError(codeForStatus(resp.StatusCode),
			fmt.Sprintf("API error (status %d): %s (%s)", resp.StatusCode, resp.Message, resp.Code))
	}
	if len(resp.Output.Embeddings) == 0 {
		return nil, NewEmbeddingError(ErrCodeServerError, "no embeddings returned")
	}

	// 按原始文本顺序还原
	result := make([][]float32, len(texts))
	for _, emb := range resp.Output.Embeddings {
		if emb.TextIndex < 0 || emb.TextIndex >= len(texts) {
			continue
		}
		result[emb.TextIndex] = emb.Embedding
	}
	return result, checkComplete(result)
}

// sendRequest 发送API请求并解析响应
func (c *TongyiClient) sendRequest(ctx context.Context, reqData interface{}, respObj interface{}) error {
	headers := map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", c.apiKey),
	}
	status, body, err := postJSON(ctx, c.httpClient, c.endpoint, headers, reqData, c.maxRetries)
	if err != nil {
		return err
	}

	if status != http.StatusOK {
		var errResp struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Message != "" {
			return NewEmbeddingError(codeForStatus(status),
				fmt.Sprintf("API error (status %d): %s (%s)", status, errResp.Message, errResp.Code))
		}
		return NewEmbeddingError(codeForStatus(status),
			fmt.Sprintf("API error (status %d): %s", status, string(body)))
	}

	if err := json.Unmarshal(body, respObj); err != nil {
		return NewEmbeddingError(ErrCodeServerError,
			fmt.Sprintf("failed to parse response: %v", err))
	}
	return nil
}

// postJSON 发送JSON请求，只对5xx和网络错误做指数退避重试
// 429 不在这里重试，交由入库流程按批次处理
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload interface{}, maxRetries int) (int, []byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err))
	}

	var (
		status  int
		body    []byte
		lastErr error
	)
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return 0, nil, NewEmbeddingError(ErrCodeTimeout, ctx.Err().Error())
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
		if err != nil {
			return 0, nil, NewEmbeddingError(ErrCodeInvalidRequest, fmt.Sprintf("failed to create request: %v", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			status = 0
			continue
		}
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			status = 0
			continue
		}
		status = resp.StatusCode
		lastErr = nil
		if status < 500 {
			break
		}
	}

	if status == 0 {
		return 0, nil, NewEmbeddingError(ErrCodeNetworkError, fmt.Sprintf("request failed: %v", lastErr))
	}
	return status, body, nil
}

// checkComplete 确认每条文本都拿到了向量
func checkComplete(vectors [][]float32) error {
	for i, v := range vectors {
		if len(v) == 0 {
			return NewEmbeddingError(ErrCodeServerError, fmt.Sprintf("missing embedding for input %d", i))
		}
	}
	return nil
}

// isV3Model 检查是否为v3模型
func (c *TongyiClient) isV3Model() bool {
	return c.model == "text-embedding-v3"
}

// isValidDimension 检查维度是否有效 (仅对v3模型)
func isValidDimension(dim int) bool {
	validDims := []int{1024, 768, 512, 256, 128, 64}
	for _, validDim := range validDims {
		if dim == validDim {
			return true
		}
	}
	return false
}

// 注册通义千问客户端
func init() {
	RegisterClient("tongyi", NewTongyiClient)
}
