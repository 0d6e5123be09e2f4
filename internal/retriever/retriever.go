// Package retriever 将相似度检索得到的摘要ID解析为原始内容
package retriever

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/multirep-qa/internal/models"
)

// DefaultK 默认返回的内容条数
const DefaultK = 4

// Source 检索依赖的多表示存储操作
type Source interface {
	Ready(ctx context.Context) (bool, error)
	Nearest(ctx context.Context, query string, k int) ([]string, error)
	ContentOf(ctx context.Context, id string) (string, bool, error)
}

// Result 检索结果
type Result struct {
	IDs             []string                   // 命中内容的ID，按相似度降序
	Contents        []string                   // 与IDs一一对应的原始内容
	Inconsistencies []*models.ConsistencyError // 索引中存在但内容缺失的ID
}

// Retriever 检索器
type Retriever struct {
	source Source
	k      int
	logger *logrus.Logger
}

// Option 检索器配置选项
type Option func(*Retriever)

// WithK 设置默认返回条数
func WithK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.k = k
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(r *Retriever) {
		r.logger = logger
	}
}

// New 创建检索器
func New(source Source, opts ...Option) *Retriever {
	r := &Retriever{
		source: source,
		k:      DefaultK,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// K 默认返回条数
func (r *Retriever) K() int {
	return r.k
}

// EnsureReady 存储尚无内容时返回 NotReadyError
func (r *Retriever) EnsureReady(ctx context.Context) error {
	ready, err := r.source.Ready(ctx)
	if err != nil {
		return fmt.Errorf("check store: %w", err)
	}
	if !ready {
		return &models.NotReadyError{}
	}
	return nil
}

// Retrieve 查询与问题最相关的原始内容，k<=0 时使用默认值
// 存储尚无内容时返回 NotReadyError，且不发起任何外部调用
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) (*Result, error) {
	if strings.TrimSpace(question) == "" {
		return nil, &models.ValidationError{Category: "question", Reason: "question cannot be empty"}
	}
	if k <= 0 {
		k = r.k
	}

	if err := r.EnsureReady(ctx); err != nil {
		return nil, err
	}

	ids, err := r.source.Nearest(ctx, question, k)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}

	result := &Result{
		IDs:      make([]string, 0, len(ids)),
		Contents: make([]string, 0, len(ids)),
	}
	for _, id := range ids {
		content, found, err := r.source.ContentOf(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load content %s: %w", id, err)
		}
		if !found {
			r.logger.WithField("id", id).Warn("Indexed id has no content, skipping")
			result.Inconsistencies = append(result.Inconsistencies, &models.ConsistencyError{ID: id})
			continue
		}
		result.IDs = append(result.IDs, id)
		result.Contents = append(result.Contents, content)
	}

	r.logger.WithFields(logrus.Fields{
		"k":               k,
		"hits":            len(result.Contents),
		"inconsistencies": len(result.Inconsistencies),
	}).Debug("Retrieved context")
	return result, nil
}
