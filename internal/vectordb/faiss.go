//go:build faiss

package vectordb

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DataIntelligenceCrew/go-faiss"
)

// FaissRepository 基于Faiss平坦索引的向量仓库
// Faiss 平坦索引不支持原地删除，删除只移除映射，检索时跳过
type FaissRepository struct {
	mu            sync.RWMutex
	index         faiss.Index
	documents     map[string]Document
	idToPosition  map[string]int
	positionToID  map[int]string
	indexPath     string
	metaPath      string
	dimension     int
	distanceType  DistanceType
	autoSaveCount int
	pending       int
}

// faissMetadata 与索引文件一同持久化的元数据
type faissMetadata struct {
	Documents    map[string]Document `json:"documents"`
	IDToPosition map[string]int      `json:"id_to_position"`
}

// NewFaissRepository 创建新的Faiss向量仓库
func NewFaissRepository(config Config) (Repository, error) {
	if config.Dimension <= 0 {
		return nil, fmt.Errorf("vector dimension must be positive")
	}
	if config.Path != "" && !config.InMemory {
		if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %v", err)
		}
	}

	distType := config.DistanceType
	if distType == "" {
		distType = Cosine
	}

	repo := &FaissRepository{
		documents:     make(map[string]Document),
		idToPosition:  make(map[string]int),
		positionToID:  make(map[int]string),
		dimension:     config.Dimension,
		distanceType:  distType,
		autoSaveCount: 100,
	}
	if config.Path != "" && !config.InMemory {
		repo.indexPath = config.Path
		repo.metaPath = config.Path + ".meta.json"
	}

	var (
		index faiss.Index
		err   error
	)
	if repo.indexPath != "" && fileExists(repo.indexPath) {
		index, err = faiss.ReadIndex(repo.indexPath, 0)
		switch {
		case err == nil:
			if err := repo.loadMetadata(); err != nil {
				return nil, fmt.Errorf("failed to load documents metadata: %v", err)
			}
		case config.CreateIfNotExists:
			index, err = createFaissIndex(config.Dimension, distType)
		}
	} else {
		index, err = createFaissIndex(config.Dimension, distType)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open Faiss index: %v", err)
	}

	repo.index = index
	return repo, nil
}

// createFaissIndex 创建Faiss索引，余弦距离使用归一化向量加内积
func createFaissIndex(dimension int, distType DistanceType) (faiss.Index, error) {
	metric := faiss.MetricL2
	if distType == Cosine || distType == DotProduct {
		metric = faiss.MetricInnerProduct
	}
	return faiss.NewIndexFlat(dimension, metric)
}

// Add 添加单个文档到仓库
func (r *FaissRepository) Add(doc Document) error {
	return r.AddBatch([]Document{doc})
}

// AddBatch 批量添加文档到仓库
func (r *FaissRepository) AddBatch(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	exists := func(id string) bool {
		_, ok := r.documents[id]
		return ok
	}
	if err := validateBatch(docs, r.dimension, exists); err != nil {
		return err
	}

	flat := make([]float32, 0, len(docs)*r.dimension)
	now := time.Now()
	for i := range docs {
		if r.distanceType == Cosine {
			docs[i].Vector = normalizeVector(docs[i].Vector)
		}
		if docs[i].CreatedAt.IsZero() {
			docs[i].CreatedAt = now
		}
		flat = append(flat, docs[i].Vector...)
	}

	startPos := int(r.index.Ntotal())
	if err := r.index.Add(flat); err != nil {
		return fmt.Errorf("failed to add vectors to index: %v", err)
	}

	for i, doc := range docs {
		r.documents[doc.ID] = doc
		r.idToPosition[doc.ID] = startPos + i
		r.positionToID[startPos+i] = doc.ID
	}

	r.pending += len(docs)
	if r.indexPath != "" && r.pending >= r.autoSaveCount {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("auto-save failed: %v", err)
		}
		r.pending = 0
	}
	return nil
}

// Get 获取单个文档
func (r *FaissRepository) Get(id string) (Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.documents[id]
	if !ok {
		return Document{}, ErrDocumentNotFound
	}
	return doc, nil
}

// Delete 删除单个文档
func (r *FaissRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.documents[id]; !ok {
		return ErrDocumentNotFound
	}
	r.removeLocked(id)
	return nil
}

// DeleteBatch 删除多个文档
func (r *FaissRepository) DeleteBatch(ids []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range ids {
		r.removeLocked(id)
	}
	return nil
}

func (r *FaissRepository) removeLocked(id string) {
	if pos, ok := r.idToPosition[id]; ok {
		delete(r.positionToID, pos)
	}
	delete(r.idToPosition, id)
	delete(r.documents, id)
	r.pending++
}

// Search 相似度搜索
func (r *FaissRepository) Search(vector []float32, filter SearchFilter) ([]SearchResult, error) {
	if err := ValidateVector(vector, r.dimension); err != nil {
		return nil, err
	}
	if r.distanceType == Cosine {
		vector = normalizeVector(vector)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.documents) == 0 {
		return []SearchResult{}, nil
	}

	k := filter.MaxResults
	if k <= 0 {
		k = 10
	}
	// 已删除和被过滤的条目仍在索引中，需要多取
	total := int(r.index.Ntotal())
	limit := k + (total - len(r.documents))
	if len(filter.Categories) > 0 || filter.MinScore > 0 {
		limit = total
	}
	if limit > total {
		limit = total
	}

	distances, labels, err := r.index.Search(vector, int64(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %v", err)
	}

	results := make([]SearchResult, 0, k)
	for i, label := range labels {
		if label < 0 {
			continue
		}
		id, ok := r.positionToID[int(label)]
		if !ok {
			continue
		}
		doc := r.documents[id]
		if !matchCategory(doc, filter.Categories) {
			continue
		}

		dist := distances[i]
		var score float32
		switch r.distanceType {
		case Cosine:
			// 内积即余弦相似度
			score = dist
			dist = 1 - dist
		case Euclidean:
			// Faiss 返回平方距离
			dist = float32(math.Sqrt(float64(dist)))
			score = DistanceToScore(dist, Euclidean)
		default:
			score = DistanceToScore(dist, r.distanceType)
		}
		if score < filter.MinScore {
			continue
		}

		results = append(results, SearchResult{Document: doc, Score: score, Distance: dist})
		if len(results) >= k {
			break
		}
	}

	SortSearchResults(results)
	return results, nil
}

// IDs 返回全部文档ID，按索引位置排序
func (r *FaissRepository) IDs() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.documents))
	total := int(r.index.Ntotal())
	for pos := 0; pos < total; pos++ {
		if id, ok := r.positionToID[pos]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Count 获取文档总数
func (r *FaissRepository) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.documents), nil
}

// GetDimension 返回向量维数
func (r *FaissRepository) GetDimension() int {
	return r.dimension
}

// Close 保存并关闭仓库
func (r *FaissRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.indexPath != "" {
		if err := r.saveIndex(); err != nil {
			return fmt.Errorf("failed to save index on close: %v", err)
		}
	}
	r.index.Delete()
	return nil
}

// saveIndex 保存索引和文档数据到文件
func (r *FaissRepository) saveIndex() error {
	if err := faiss.WriteIndex(r.index, r.indexPath); err != nil {
		return fmt.Errorf("failed to write index to file: %v", err)
	}

	data, err := json.Marshal(faissMetadata{
		Documents:    r.documents,
		IDToPosition: r.idToPosition,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %v", err)
	}
	if err := os.WriteFile(r.metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata file: %v", err)
	}
	return nil
}

// loadMetadata 从文件加载文档元数据
func (r *FaissRepository) loadMetadata() error {
	if !fileExists(r.metaPath) {
		return nil
	}
	data, err := os.ReadFile(r.metaPath)
	if err != nil {
		return fmt.Errorf("failed to read metadata file: %v", err)
	}

	var meta faissMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %v", err)
	}
	if meta.Documents != nil {
		r.documents = meta.Documents
	}
	for id, pos := range meta.IDToPosition {
		r.idToPosition[id] = pos
		r.positionToID[pos] = id
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

func init() {
	RegisterRepository("faiss", NewFaissRepository)
}
