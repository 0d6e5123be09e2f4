// Package summarize 为每个元素生成一条摘要，用于相似度索引
package summarize

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync"
	"text/template"

	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/fyerfyer/multirep-qa/internal/content"
	"github.com/fyerfyer/multirep-qa/internal/llm"
)

// DefaultPrompt 所有类别共用的摘要提示词
const DefaultPrompt = "You are an assistant tasked with summarizing tables and text. " +
	"Give a concise summary of the table or text. Table or text chunk: {{.Element}}"

// CategoryError 某个类别的摘要整体失败
type CategoryError struct {
	Category content.Category
	Index    int // 第一个失败的元素位置
	Err      error
}

func (e *CategoryError) Error() string {
	return fmt.Sprintf("summarize %s element %d: %v", e.Category, e.Index, e.Err)
}

func (e *CategoryError) Unwrap() error { return e.Err }

// Summarizer 摘要生成器
// 同一时间只有一个请求在进行，结果按输入位置写回
type Summarizer struct {
	client      llm.Client
	tmpl        *template.Template
	limiter     *rate.Limiter
	maxTokens   int
	temperature float32
	logger      *logrus.Logger
}

// Option 摘要生成器配置选项
type Option func(*Summarizer)

// WithPrompt 设置提示词模板，模板中使用 {{.Element}}
func WithPrompt(prompt string) Option {
	return func(s *Summarizer) {
		s.tmpl = template.Must(template.New("summary").Parse(prompt))
	}
}

// WithRateLimit 限制请求速率，rps<=0 表示不限制
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Summarizer) {
		if rps <= 0 {
			s.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMaxTokens 设置单条摘要的最大token数
func WithMaxTokens(n int) Option {
	return func(s *Summarizer) {
		s.maxTokens = n
	}
}

// WithTemperature 设置温度
func WithTemperature(t float32) Option {
	return func(s *Summarizer) {
		s.temperature = t
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Summarizer) {
		s.logger = logger
	}
}

// New 创建摘要生成器
func New(client llm.Client, opts ...Option) *Summarizer {
	s := &Summarizer{
		client:    client,
		tmpl:      template.Must(template.New("summary").Parse(DefaultPrompt)),
		limiter:   rate.NewLimiter(rate.Inf, 0),
		maxTokens: 512,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildPrompt 生成单个元素的提示词
func (s *Summarizer) BuildPrompt(element string) (string, error) {
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, struct{ Element string }{element}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Summarize 为一个类别的全部输入生成摘要
// 输出与输入等长且按位置对应；任一调用失败则整个类别失败
func (s *Summarizer) Summarize(ctx context.Context, category content.Category, inputs []string) ([]string, error) {
	if len(inputs) == 0 {
		return []string{}, nil
	}

	log := s.logger.WithFields(logrus.Fields{
		"category": category,
		"count":    len(inputs),
	})
	log.Info("Summarizing elements")

	results := make([]string, len(inputs))
	wp := workerpool.New(1)

	var (
		mu       sync.Mutex
		firstErr *CategoryError
	)
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}
	fail := func(i int, err error) {
		mu.Lock()
		defer mu.Unlock()
		if firstErr == nil {
			firstErr = &CategoryError{Category: category, Index: i, Err: err}
		}
	}

	for i, input := range inputs {
		i, input := i, input
		wp.Submit(func() {
			if failed() {
				return
			}
			summary, err := s.summarizeOne(ctx, input)
			if err != nil {
				fail(i, err)
				return
			}
			results[i] = summary
		})
	}
	wp.StopWait()

	if firstErr != nil {
		log.WithFields(logrus.Fields{
			"index": firstErr.Index,
			"error": firstErr.Err,
		}).Error("Summarization failed for category")
		return nil, firstErr
	}
	return results, nil
}

func (s *Summarizer) summarizeOne(ctx context.Context, input string) (string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return "", err
	}
	prompt, err := s.BuildPrompt(input)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Generate(ctx, prompt,
		llm.WithGenerateMaxTokens(s.maxTokens),
		llm.WithGenerateTemperature(s.temperature),
	)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}
