package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultAnswerTemplate 默认答案合成提示词模板
// 包含变量：
// {{.Context}} - 检索到的原始内容
// {{.Question}} - 用户问题
const DefaultAnswerTemplate = "Answer the question based only on the following context, which can include text and tables:\n\n{{.Context}}\n\nQuestion: {{.Question}}\n"

// SynthesizerConfig 答案合成配置
type SynthesizerConfig struct {
	Template    string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// DefaultSynthesizerConfig 默认答案合成配置
func DefaultSynthesizerConfig() *SynthesizerConfig {
	return &SynthesizerConfig{
		Template:    DefaultAnswerTemplate,
		MaxTokens:   1024,
		Temperature: 0,
		Timeout:     60 * time.Second,
	}
}

// SynthesizerOption 答案合成选项函数类型
type SynthesizerOption func(*SynthesizerConfig)

// WithTemplate 设置提示词模板
func WithTemplate(template string) SynthesizerOption {
	return func(c *SynthesizerConfig) {
		c.Template = template
	}
}

// WithAnswerMaxTokens 设置最大Token数
func WithAnswerMaxTokens(tokens int) SynthesizerOption {
	return func(c *SynthesizerConfig) {
		c.MaxTokens = tokens
	}
}

// WithAnswerTemperature 设置温度参数
func WithAnswerTemperature(temp float32) SynthesizerOption {
	return func(c *SynthesizerConfig) {
		c.Temperature = temp
	}
}

// WithAnswerTimeout 设置请求超时时间
func WithAnswerTimeout(timeout time.Duration) SynthesizerOption {
	return func(c *SynthesizerConfig) {
		c.Timeout = timeout
	}
}

// Synthesizer 根据检索到的内容和问题合成答案
// 每次回答只调用一次模型，失败直接返回给调用方，不做重试
type Synthesizer struct {
	client Client
	config *SynthesizerConfig
}

// NewSynthesizer 创建答案合成器
func NewSynthesizer(client Client, opts ...SynthesizerOption) *Synthesizer {
	cfg := DefaultSynthesizerConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Synthesizer{
		client: client,
		config: cfg,
	}
}

// Answer 生成答案，返回去除首尾空白后的文本
func (s *Synthesizer) Answer(ctx context.Context, question string, contexts []string) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	response, err := s.client.Generate(
		ctxWithTimeout,
		s.BuildPrompt(question, contexts),
		WithGenerateMaxTokens(s.config.MaxTokens),
		WithGenerateTemperature(s.config.Temperature),
	)
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}

	return strings.TrimSpace(response.Text), nil
}

// BuildPrompt 将上下文拼接后填入模板
// 占位符一次性替换，上下文和问题中出现的占位符文本原样保留
func (s *Synthesizer) BuildPrompt(question string, contexts []string) string {
	r := strings.NewReplacer(
		"{{.Context}}", strings.Join(contexts, "\n\n"),
		"{{.Question}}", question,
	)
	return r.Replace(s.config.Template)
}
