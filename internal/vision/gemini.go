package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fyerfyer/multirep-qa/internal/llm"
)

const (
	defaultGeminiEndpoint = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel    = "gemini-1.5-flash"
)

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// GeminiCaptioner 通过 generateContent 接口描述图片
type GeminiCaptioner struct {
	apiKey     string
	baseURL    string
	model      string
	prompt     string
	httpClient *http.Client
}

// NewGeminiCaptioner 创建Gemini图片描述客户端，默认 gemini-1.5-flash
func NewGeminiCaptioner(opts ...Option) (Captioner, error) {
	cfg := newConfig(opts...)
	if cfg.APIKey == "" {
		return nil, llm.NewLLMError(llm.ErrCodeInvalidAPIKey, llm.ErrMsgInvalidAPIKey)
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultGeminiEndpoint
	}
	model := strings.TrimPrefix(cfg.Model, "models/")
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiCaptioner{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		model:      model,
		prompt:     cfg.Prompt,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name 返回模型名称
func (c *GeminiCaptioner) Name() string {
	return c.model
}

// Describe 生成图片描述
func (c *GeminiCaptioner) Describe(ctx context.Context, image []byte, mime string) (string, error) {
	if len(image) == 0 {
		return "", llm.NewLLMError(llm.ErrCodeInvalidRequest, "image cannot be empty")
	}

	payload := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: c.prompt},
				{InlineData: &geminiInlineData{
					MimeType: mime,
					Data:     base64.StdEncoding.EncodeToString(image),
				}},
			},
		}},
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", llm.NewLLMError(llm.ErrCodeInvalidRequest, fmt.Sprintf("failed to marshal request: %v", err))
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", llm.NewLLMError(llm.ErrCodeInvalidRequest, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", llm.NewLLMError(llm.ErrCodeNetworkError, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", llm.NewLLMError(llm.ErrCodeNetworkError, fmt.Sprintf("failed to read response: %v", err))
	}

	var result geminiResponse
	jsonErr := json.Unmarshal(body, &result)
	if resp.StatusCode != http.StatusOK {
		if jsonErr == nil && result.Error != nil {
			return "", llm.NewStatusError(resp.StatusCode, result.Error.Message)
		}
		return "", llm.NewStatusError(resp.StatusCode, string(body))
	}
	if jsonErr != nil {
		return "", llm.NewLLMError(llm.ErrCodeServerError, fmt.Sprintf("failed to parse response: %v", jsonErr))
	}
	if len(result.Candidates) == 0 {
		return "", llm.NewLLMError(llm.ErrCodeServerError, "no candidates in response")
	}

	var sb strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}

func init() {
	RegisterCaptioner("gemini", NewGeminiCaptioner)
}
