package vectordb

import (
	"fmt"
	"runtime"
	"sync"
	"time"
)

// MemoryRepository 内存向量仓库实现
// 暴力检索，文档较多时按CPU核数分片并行计算距离
type MemoryRepository struct {
	mu        sync.RWMutex
	dimension int
	distType  DistanceType
	documents map[string]Document
	order     []string // 插入顺序，用于稳定遍历
}

// NewMemoryRepository 创建内存向量仓库
// Dimension 为0时以第一条写入的向量维度为准
func NewMemoryRepository(config Config) (Repository, error) {
	if config.Dimension < 0 {
		return nil, fmt.Errorf("vector dimension must not be negative")
	}
	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}
	return &MemoryRepository{
		dimension: config.Dimension,
		distType:  distType,
		documents: make(map[string]Document),
	}, nil
}

// Add 添加单个文档
func (r *MemoryRepository) Add(doc Document) error {
	return r.AddBatch([]Document{doc})
}

// AddBatch 批量添加文档
func (r *MemoryRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dim := r.dimension
	if dim == 0 {
		dim = len(docs[0].Vector)
	}
	exists := func(id string) bool {
		_, ok := r.documents[id]
		return ok
	}
	if err := validateBatch(docs, dim, exists); err != nil {
		return err
	}
	r.dimension = dim

	now := time.Now()
	for _, doc := range docs {
		if r.distType == Cosine {
			doc.Vector = normalizeVector(doc.Vector)
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		r.documents[doc.ID] = doc
		r.order = append(r.order, doc.ID)
	}
	return nil
}

// Get 获取单个文档
func (r *MemoryRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.documents[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete 删除单个文档
func (r *MemoryRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.documents[id]; !ok {
		return ErrDocumentNotFound
	}
	r.removeLocked(map[string]struct{}{id: {}})
	return nil
}

// DeleteBatch 删除多个文档
func (r *MemoryRepository) DeleteBatch(ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	r.removeLocked(set)
	return nil
}

// removeLocked 调用方需持有写锁
func (r *MemoryRepository) removeLocked(ids map[string]struct{}) {
	kept := r.order[:0]
	for _, id := range r.order {
		if _, drop := ids[id]; drop {
			delete(r.documents, id)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
}

// Search 相似度搜索
func (r *MemoryRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.documents) == 0 {
		return []SearchResult{}, nil
	}
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if r.distType == Cosine {
		vector = normalizeVector(vector)
	}

	candidates := make([]Document, 0, len(r.order))
	for _, id := range r.order {
		doc := r.documents[id]
		if matchCategory(doc, filter.Categories) {
			candidates = append(candidates, doc)
		}
	}

	threads := runtime.NumCPU()
	var (
		results []SearchResult
		err     error
	)
	if len(candidates) < 256 || threads == 1 {
		results, err = r.score(vector, candidates, filter.MinScore)
	} else {
		results, err = r.parallelScore(vector, candidates, filter.MinScore, threads)
	}
	if err != nil {
		return nil, err
	}

	SortSearchResults(results)
	if filter.MaxResults > 0 && len(results) > filter.MaxResults {
		results = results[:filter.MaxResults]
	}
	return results, nil
}

// score 串行计算候选文档的得分
func (r *MemoryRepository) score(vector []float32, docs []Document, minScore float32) ([]SearchResult, error) {
	results := make([]SearchResult, 0, len(docs))
	for _, doc := range docs {
		dist, err := ComputeDistance(vector, doc.Vector, r.distType)
		if err != nil {
			return nil, fmt.Errorf("error computing distance: %w", err)
		}
		score := DistanceToScore(dist, r.distType)
		if score < minScore {
			continue
		}
		results = append(results, SearchResult{Document: doc, Score: score, Distance: dist})
	}
	return results, nil
}

// parallelScore 分片并行计算得分
func (r *MemoryRepository) parallelScore(vector []float32, docs []Document, minScore float32, threads int) ([]SearchResult, error) {
	chunk := (len(docs) + threads - 1) / threads
	parts := make([][]SearchResult, threads)
	errs := make([]error, threads)

	var wg sync.WaitGroup
	for t := 0; t < threads; t++ {
		start := t * chunk
		if start >= len(docs) {
			break
		}
		end := start + chunk
		if end > len(docs) {
			end = len(docs)
		}

		wg.Add(1)
		go func(t, start, end int) {
			defer wg.Done()
			parts[t], errs[t] = r.score(vector, docs[start:end], minScore)
		}(t, start, end)
	}
	wg.Wait()

	var results []SearchResult
	for t := range parts {
		if errs[t] != nil {
			return nil, errs[t]
		}
		results = append(results, parts[t]...)
	}
	return results, nil
}

// IDs 返回全部文档ID，按插入顺序
func (r *MemoryRepository) IDs() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, len(r.order))
	copy(ids, r.order)
	return ids, nil
}

// Count 获取文档总数
func (r *MemoryRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// Close 关闭仓库
func (r *MemoryRepository) Close() error {
	return nil
}

// GetDimension 返回向量维数
func (r *MemoryRepository) GetDimension() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dimension
}

func init() {
	RegisterRepository("memory", NewMemoryRepository)
}
