package vision

import (
	"context"
	"time"

	"github.com/fyerfyer/multirep-qa/internal/llm"
)

// DefaultPrompt 图片描述提示词
const DefaultPrompt = "Describe the image in detail. Be specific about graphs, such as bar plots."

// Captioner 图片描述接口，输入图片字节和MIME类型，返回文本描述
type Captioner interface {
	Describe(ctx context.Context, image []byte, mime string) (string, error)
	Name() string
}

// Config 描述客户端配置
type Config struct {
	APIKey  string        // API密钥
	BaseURL string        // API基础URL
	Model   string        // 模型名称
	Prompt  string        // 提示词
	Timeout time.Duration // 请求超时时间
}

// Option 配置选项
type Option func(*Config)

// WithAPIKey 设置API密钥
func WithAPIKey(key string) Option {
	return func(c *Config) { c.APIKey = key }
}

// WithBaseURL 设置API基础URL
func WithBaseURL(url string) Option {
	return func(c *Config) { c.BaseURL = url }
}

// WithModel 设置模型
func WithModel(model string) Option {
	return func(c *Config) { c.Model = model }
}

// WithPrompt 替换默认提示词
func WithPrompt(prompt string) Option {
	return func(c *Config) { c.Prompt = prompt }
}

// WithTimeout 设置超时
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) { c.Timeout = timeout }
}

func newConfig(opts ...Option) *Config {
	cfg := &Config{
		Prompt:  DefaultPrompt,
		Timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Factory 描述客户端工厂
type Factory func(opts ...Option) (Captioner, error)

var factories = make(map[string]Factory)

// RegisterCaptioner 注册描述客户端
func RegisterCaptioner(name string, factory Factory) {
	factories[name] = factory
}

// NewCaptioner 根据名称创建描述客户端
func NewCaptioner(name string, opts ...Option) (Captioner, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, llm.NewLLMError(llm.ErrCodeInvalidRequest, "captioner type not registered: "+name)
	}
	return factory(opts...)
}
