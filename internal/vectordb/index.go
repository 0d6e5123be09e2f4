package vectordb

import (
	"context"
	"fmt"

	"github.com/fyerfyer/multirep-qa/internal/embedding"
)

// Entry 待写入索引的文本条目
type Entry struct {
	ID       string
	Category string
	Text     string
}

// Index 文本级相似度索引
// 写入和查询使用同一个嵌入客户端，底层向量仓库可替换
type Index struct {
	embedder  embedding.Client
	processor *embedding.BatchProcessor
	repo      Repository
}

// IndexOption 索引配置选项
type IndexOption func(*Index)

// WithEmbedBatching 设置嵌入请求的批大小和并行数
func WithEmbedBatching(batchSize, workers int) IndexOption {
	return func(i *Index) {
		i.processor = embedding.NewBatchProcessor(i.embedder, batchSize, workers)
	}
}

// NewIndex 创建文本索引
func NewIndex(embedder embedding.Client, repo Repository, opts ...IndexOption) *Index {
	idx := &Index{
		embedder: embedder,
		repo:     repo,
	}
	idx.processor = embedding.NewBatchProcessor(embedder, 16, 1)
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Add 嵌入并写入一批条目
// 嵌入失败时不写入任何条目，错误原样包装以便上层识别限流
func (i *Index) Add(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	texts := make([]string, len(entries))
	for n, e := range entries {
		texts[n] = e.Text
	}

	vectors, err := i.processor.Process(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %d entries: %w", len(entries), err)
	}
	if len(vectors) != len(entries) {
		return fmt.Errorf("embedder returned %d vectors for %d entries", len(vectors), len(entries))
	}

	docs := make([]Document, len(entries))
	for n, e := range entries {
		docs[n] = Document{
			ID:       e.ID,
			Category: e.Category,
			Text:     e.Text,
			Vector:   vectors[n],
		}
	}
	if err := i.repo.AddBatch(docs); err != nil {
		return fmt.Errorf("add vectors: %w", err)
	}
	return nil
}

// Search 返回与查询最相近的最多k个条目ID，按相似度降序
func (i *Index) Search(ctx context.Context, query string, k int) ([]string, error) {
	results, err := i.SearchWithScores(ctx, query, SearchFilter{MaxResults: k})
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(results))
	for n, r := range results {
		ids[n] = r.Document.ID
	}
	return ids, nil
}

// SearchWithScores 带分数和过滤条件的检索
func (i *Index) SearchWithScores(ctx context.Context, query string, filter SearchFilter) ([]SearchResult, error) {
	count, err := i.repo.Count()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return []SearchResult{}, nil
	}

	vector, err := i.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return i.repo.Search(vector, filter)
}

// Delete 删除条目，不存在的ID忽略
func (i *Index) Delete(ctx context.Context, ids []string) error {
	return i.repo.DeleteBatch(ids)
}

// Count 条目总数
func (i *Index) Count() (int, error) {
	return i.repo.Count()
}

// IDs 全部条目ID
func (i *Index) IDs() ([]string, error) {
	return i.repo.IDs()
}

// Reset 清空索引
func (i *Index) Reset(ctx context.Context) error {
	ids, err := i.repo.IDs()
	if err != nil {
		return err
	}
	return i.repo.DeleteBatch(ids)
}

// Close 关闭底层仓库
func (i *Index) Close() error {
	return i.repo.Close()
}
