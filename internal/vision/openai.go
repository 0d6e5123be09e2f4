package vision

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/fyerfyer/multirep-qa/internal/llm"
)

const (
	defaultOpenAIEndpoint = "https://api.openai.com/v1"
	defaultOpenAIModel    = openai.GPT4oMini
)

// OpenAICaptioner 兼容OpenAI视觉协议的描述客户端
type OpenAICaptioner struct {
	client  *openai.Client
	model   string
	prompt  string
	timeout time.Duration
}

// NewOpenAICaptioner 创建OpenAI图片描述客户端
func NewOpenAICaptioner(opts ...Option) (Captioner, error) {
	cfg := newConfig(opts...)
	if cfg.APIKey == "" {
		return nil, llm.NewLLMError(llm.ErrCodeInvalidAPIKey, llm.ErrMsgInvalidAPIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL

	return &OpenAICaptioner{
		client:  openai.NewClientWithConfig(clientConfig),
		model:   cfg.Model,
		prompt:  cfg.Prompt,
		timeout: cfg.Timeout,
	}, nil
}

// Name 返回模型名称
func (c *OpenAICaptioner) Name() string {
	return c.model
}

// Describe 以 data URI 形式上传图片并返回描述
func (c *OpenAICaptioner) Describe(ctx context.Context, image []byte, mime string) (string, error) {
	if len(image) == 0 {
		return "", llm.NewLLMError(llm.ErrCodeInvalidRequest, "image cannot be empty")
	}

	dataURI := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(image))
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{{
			Role: openai.ChatMessageRoleUser,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: c.prompt},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    dataURI,
					Detail: openai.ImageURLDetailAuto,
				}},
			},
		}},
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(timeoutCtx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", llm.NewStatusError(apiErr.HTTPStatusCode, apiErr.Message)
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", llm.NewStatusError(reqErr.HTTPStatusCode, fmt.Sprint(reqErr.Err))
		}
		return "", llm.NewLLMError(llm.ErrCodeNetworkError, err.Error())
	}
	if len(resp.Choices) == 0 {
		return "", llm.NewLLMError(llm.ErrCodeServerError, "empty response from API")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func init() {
	RegisterCaptioner("openai", NewOpenAICaptioner)
}
