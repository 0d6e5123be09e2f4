package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	defaultGroqEndpoint   = "https://api.groq.com/openai/v1"
	defaultOpenAIEndpoint = "https://api.openai.com/v1"
)

// OpenAIClient 兼容OpenAI协议的大模型客户端（OpenAI、Groq等）
type OpenAIClient struct {
	client *openai.Client
	config *Config
	model  string
}

// newOpenAICompatible 按提供商默认值创建客户端
func newOpenAICompatible(defaultURL, defaultModel string, opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)
	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
		model:  cfg.Model,
	}, nil
}

// NewGroqClient 创建Groq客户端，默认使用 gemma2-9b-it
func NewGroqClient(opts ...Option) (Client, error) {
	return newOpenAICompatible(defaultGroqEndpoint, ModelGemma2, opts...)
}

// NewOpenAIClient 创建OpenAI客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	return newOpenAICompatible(defaultOpenAIEndpoint, ModelGPT4oMini, opts...)
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.model
}

// Generate 根据提示词生成文本
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if prompt == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}
	return c.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, options...)
}

// Chat 进行多轮对话
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...GenerateOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeInvalidRequest, "messages cannot be empty")
	}

	maxTokens, temperature := resolve(c.config, options)
	// temperature 为0时会被 omitempty 省略，用最小正数代替
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(timeoutCtx, req)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, NewLLMError(ErrCodeServerError, "empty response from API")
	}

	return &Response{
		Text:       resp.Choices[0].Message.Content,
		TokenCount: resp.Usage.TotalTokens,
		ModelName:  c.model,
		FinishTime: time.Now(),
	}, nil
}

// mapOpenAIError 将SDK错误转换为带错误码的LLMError
func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewLLMError(codeForStatus(apiErr.HTTPStatusCode),
			fmt.Sprintf("API error (status %d): %s", apiErr.HTTPStatusCode, apiErr.Message))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewLLMError(codeForStatus(reqErr.HTTPStatusCode),
			fmt.Sprintf("request error (status %d): %v", reqErr.HTTPStatusCode, reqErr.Err))
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewLLMError(ErrCodeTimeout, err.Error())
	}
	return NewLLMError(ErrCodeNetworkError, err.Error())
}

func init() {
	RegisterClient("groq", NewGroqClient)
	RegisterClient("openai", NewOpenAIClient)
}
