package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/gammazero/workerpool"
)

// BatchProcessor 批处理器
// 将大量文本按提供商的单次上限拆分，并行请求后按原顺序合并
type BatchProcessor struct {
	client     Client
	batchSize  int
	maxWorkers int
}

// NewBatchProcessor 创建新的批处理器
func NewBatchProcessor(client Client, batchSize int, maxWorkers int) *BatchProcessor {
	if batchSize <= 0 {
		batchSize = 16
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &BatchProcessor{
		client:     client,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
	}
}

// Process 处理一批文本，任一子批次失败则整体失败，不返回部分结果
func (p *BatchProcessor) Process(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, NewEmbeddingError(ErrCodeEmptyInput, fmt.Sprintf("%s at index %d", ErrMsgEmptyInput, i))
		}
	}

	batches := splitIntoBatches(texts, p.batchSize)
	if len(batches) == 1 {
		return p.client.EmbedBatch(ctx, batches[0])
	}

	wp := workerpool.New(p.maxWorkers)
	results := make([][][]float32, len(batches))
	var (
		firstErr error
		errOnce  sync.Once
	)

	for i, batch := range batches {
		i, batch := i, batch
		wp.Submit(func() {
			if err := ctx.Err(); err != nil {
				errOnce.Do(func() { firstErr = err })
				return
			}
			vectors, err := p.client.EmbedBatch(ctx, batch)
			if err != nil {
				// 保留原始错误，便于上层识别限流
				errOnce.Do(func() { firstErr = fmt.Errorf("batch %d: %w", i, err) })
				return
			}
			results[i] = vectors
		})
	}
	wp.StopWait()

	if firstErr != nil {
		return nil, firstErr
	}

	all := make([][]float32, 0, len(texts))
	for _, vectors := range results {
		all = append(all, vectors...)
	}
	return all, nil
}

// splitIntoBatches 将文本列表分割成多个批次
func splitIntoBatches(texts []string, batchSize int) [][]string {
	if batchSize <= 0 {
		batchSize = 1
	}

	batches := make([][]string, 0, (len(texts)+batchSize-1)/batchSize)
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[i:end])
	}
	return batches
}
