// Package multirep 维护摘要索引与原始内容之间的一一对应
package multirep

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/multirep-qa/internal/docstore"
	"github.com/fyerfyer/multirep-qa/internal/vectordb"
)

// ErrEmptyID 记录ID为空
var ErrEmptyID = errors.New("multirep: empty content id")

// Record 一条待提交的多表示记录
type Record struct {
	ID       string
	Category string
	Summary  string // 写入向量索引
	Content  string // 写入内容存储
}

// Index 相似度索引需要提供的操作
type Index interface {
	Add(ctx context.Context, entries []vectordb.Entry) error
	Search(ctx context.Context, query string, k int) ([]string, error)
	Delete(ctx context.Context, ids []string) error
	IDs() ([]string, error)
	Count() (int, error)
	Reset(ctx context.Context) error
}

// Store 多表示存储
// 是索引和内容存储唯一的写入方，写入按批次串行
type Store struct {
	mu      sync.Mutex
	index   Index
	content docstore.Store
	logger  *logrus.Logger
	gen     uint64 // 每次成功提交或重置后递增
}

// Option 存储配置选项
type Option func(*Store)

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore 创建多表示存储
func NewStore(index Index, content docstore.Store, opts ...Option) *Store {
	s := &Store{
		index:   index,
		content: content,
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Commit 提交单条记录
func (s *Store) Commit(ctx context.Context, id, summary, content string) error {
	return s.CommitBatch(ctx, []Record{{ID: id, Summary: summary, Content: content}})
}

// CommitBatch 原子地提交一批记录
// 先写索引再写内容，内容写入失败时删除本批已写入的索引条目
func (s *Store) CommitBatch(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	entries := make([]vectordb.Entry, len(records))
	items := make([]docstore.Item, len(records))
	ids := make([]string, len(records))
	for i, r := range records {
		if strings.TrimSpace(r.ID) == "" {
			return ErrEmptyID
		}
		entries[i] = vectordb.Entry{ID: r.ID, Category: r.Category, Text: r.Summary}
		items[i] = docstore.Item{Key: r.ID, Value: r.Content}
		ids[i] = r.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 索引写入出错时可能已写入部分条目，同样回滚
	if err := s.index.Add(ctx, entries); err != nil {
		if rbErr := s.rollbackIndex(ctx, ids); rbErr != nil {
			return fmt.Errorf("%w (index rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := s.content.BulkSet(ctx, items); err != nil {
		if rbErr := s.rollbackIndex(ctx, ids); rbErr != nil {
			return fmt.Errorf("store content: %w (index rollback failed: %v)", err, rbErr)
		}
		return fmt.Errorf("store content: %w", err)
	}

	s.gen++
	return nil
}

// rollbackIndex 删除本批次的索引条目，不受调用方取消影响
func (s *Store) rollbackIndex(ctx context.Context, ids []string) error {
	err := s.index.Delete(context.WithoutCancel(ctx), ids)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"ids":   len(ids),
			"error": err,
		}).Error("Failed to roll back index entries")
	}
	return err
}

// ContentOf 按ID读取原始内容
func (s *Store) ContentOf(ctx context.Context, id string) (string, bool, error) {
	return s.content.Get(ctx, id)
}

// Nearest 返回与查询最相近的最多k个ID
func (s *Store) Nearest(ctx context.Context, query string, k int) ([]string, error) {
	return s.index.Search(ctx, query, k)
}

// Size 已提交的条目数
func (s *Store) Size(ctx context.Context) (int, error) {
	return s.index.Count()
}

// Ready 是否至少有一条已提交的内容
func (s *Store) Ready(ctx context.Context) (bool, error) {
	n, err := s.Size(ctx)
	return n > 0, err
}

// Generation 存储的版本号，内容变化后改变
func (s *Store) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// VerifyReport 一致性检查结果
type VerifyReport struct {
	IndexCount      int      `json:"index_count"`
	ContentCount    int      `json:"content_count"`
	MissingContent  []string `json:"missing_content"`
	OrphanedContent []string `json:"orphaned_content"`
}

// Consistent 两侧ID集合是否完全相同
func (r VerifyReport) Consistent() bool {
	return len(r.MissingContent) == 0 && len(r.OrphanedContent) == 0
}

// Verify 检查索引与内容存储的ID是否一一对应
func (s *Store) Verify(ctx context.Context) (VerifyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.verifyLocked(ctx)
}

// Reconcile 删除只存在于一侧的条目，恢复一一对应
// 用于启动时持久化程度不同的两侧存储，返回修复前的检查结果
func (s *Store) Reconcile(ctx context.Context) (VerifyReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, err := s.verifyLocked(ctx)
	if err != nil || report.Consistent() {
		return report, err
	}

	if len(report.MissingContent) > 0 {
		if err := s.index.Delete(ctx, report.MissingContent); err != nil {
			return report, fmt.Errorf("prune index entries: %w", err)
		}
	}
	if len(report.OrphanedContent) > 0 {
		if err := s.content.Delete(ctx, report.OrphanedContent...); err != nil {
			return report, fmt.Errorf("prune content records: %w", err)
		}
	}
	s.gen++

	s.logger.WithFields(logrus.Fields{
		"missing_content":  len(report.MissingContent),
		"orphaned_content": len(report.OrphanedContent),
	}).Warn("Pruned entries present on only one side of the store")
	return report, nil
}

func (s *Store) verifyLocked(ctx context.Context) (VerifyReport, error) {
	indexIDs, err := s.index.IDs()
	if err != nil {
		return VerifyReport{}, fmt.Errorf("list index ids: %w", err)
	}
	contentIDs, err := s.content.Keys(ctx)
	if err != nil {
		return VerifyReport{}, fmt.Errorf("list content ids: %w", err)
	}

	report := VerifyReport{
		IndexCount:      len(indexIDs),
		ContentCount:    len(contentIDs),
		MissingContent:  []string{},
		OrphanedContent: []string{},
	}
	inContent := make(map[string]struct{}, len(contentIDs))
	for _, id := range contentIDs {
		inContent[id] = struct{}{}
	}
	inIndex := make(map[string]struct{}, len(indexIDs))
	for _, id := range indexIDs {
		inIndex[id] = struct{}{}
		if _, ok := inContent[id]; !ok {
			report.MissingContent = append(report.MissingContent, id)
		}
	}
	for _, id := range contentIDs {
		if _, ok := inIndex[id]; !ok {
			report.OrphanedContent = append(report.OrphanedContent, id)
		}
	}
	return report, nil
}

// Reset 清空两侧存储，开始新的会话
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.index.Reset(ctx); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	keys, err := s.content.Keys(ctx)
	if err != nil {
		return err
	}
	if err := s.content.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("clear content: %w", err)
	}
	s.gen++
	return nil
}
