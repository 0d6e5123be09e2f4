package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/multirep-qa/internal/cache"
	"github.com/fyerfyer/multirep-qa/internal/models"
	"github.com/fyerfyer/multirep-qa/internal/retriever"
)

// Answerer 根据检索到的上下文生成答案
type Answerer interface {
	Answer(ctx context.Context, question string, contexts []string) (string, error)
}

// Versioned 提供存储版本号，用于缓存失效
type Versioned interface {
	Generation() uint64
}

// Source 答案引用的原始内容
type Source struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// AnswerResult 问答结果
type AnswerResult struct {
	Answer          string   `json:"answer"`
	Sources         []Source `json:"sources"`
	Inconsistencies []string `json:"inconsistencies,omitempty"`
	Cached          bool     `json:"cached"`
}

// QAService 问答服务
// 负责协调检索和答案生成
type QAService struct {
	retriever   *retriever.Retriever
	synthesizer Answerer
	versioned   Versioned
	cache       cache.Cache
	cacheTTL    time.Duration
	logger      *logrus.Logger
}

// QAOption 问答服务配置选项
type QAOption func(*QAService)

// WithCache 启用答案缓存，versioned 的版本号变化后旧答案失效
func WithCache(c cache.Cache, versioned Versioned, ttl time.Duration) QAOption {
	return func(s *QAService) {
		s.cache = c
		s.versioned = versioned
		s.cacheTTL = ttl
	}
}

// WithQALogger 设置日志记录器
func WithQALogger(logger *logrus.Logger) QAOption {
	return func(s *QAService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewQAService 创建问答服务实例
func NewQAService(r *retriever.Retriever, synthesizer Answerer, opts ...QAOption) *QAService {
	s := &QAService{
		retriever:   r,
		synthesizer: synthesizer,
		cacheTTL:    24 * time.Hour,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RetrieveResult 仅检索不生成答案的结果
type RetrieveResult struct {
	Sources         []Source `json:"sources"`
	Inconsistencies []string `json:"inconsistencies,omitempty"`
}

// Retrieve 返回与问题最相关的原始内容，不调用生成模型
func (s *QAService) Retrieve(ctx context.Context, question string, k int) (*RetrieveResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &models.ValidationError{Category: "question", Reason: "question cannot be empty"}
	}

	retrieved, err := s.retriever.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}

	result := &RetrieveResult{Sources: make([]Source, len(retrieved.IDs))}
	for i, id := range retrieved.IDs {
		result.Sources[i] = Source{ID: id, Content: retrieved.Contents[i]}
	}
	for _, inc := range retrieved.Inconsistencies {
		result.Inconsistencies = append(result.Inconsistencies, inc.ID)
	}
	return result, nil
}

// Ask 回答问题，k<=0 时使用检索器默认值
// 尚未入库任何内容时返回 NotReadyError，且不访问缓存或任何外部服务
func (s *QAService) Ask(ctx context.Context, question string, k int) (*AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &models.ValidationError{Category: "question", Reason: "question cannot be empty"}
	}
	if k <= 0 {
		k = s.retriever.K()
	}
	if err := s.retriever.EnsureReady(ctx); err != nil {
		return nil, err
	}

	var cacheKey string
	if s.cache != nil && s.versioned != nil {
		cacheKey = cache.AnswerKey(question, s.versioned.Generation(), k)
		var cached AnswerResult
		found, err := cache.GetJSON(ctx, s.cache, cacheKey, &cached)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to read answer cache")
		} else if found {
			cached.Cached = true
			return &cached, nil
		}
	}

	retrieved, err := s.Retrieve(ctx, question, k)
	if err != nil {
		return nil, err
	}

	contexts := make([]string, len(retrieved.Sources))
	for i, src := range retrieved.Sources {
		contexts[i] = src.Content
	}
	answer, err := s.synthesizer.Answer(ctx, question, contexts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	result := &AnswerResult{
		Answer:          answer,
		Sources:         retrieved.Sources,
		Inconsistencies: retrieved.Inconsistencies,
	}

	// 存在不一致时不缓存，修复后应重新检索
	if cacheKey != "" && len(result.Inconsistencies) == 0 {
		if err := cache.SetJSON(ctx, s.cache, cacheKey, result, s.cacheTTL); err != nil {
			s.logger.WithError(err).Warn("Failed to write answer cache")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"sources":         len(result.Sources),
		"inconsistencies": len(result.Inconsistencies),
	}).Info("Question answered")
	return result, nil
}
