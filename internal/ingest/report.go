package ingest

import (
	"time"

	"github.com/fyerfyer/multirep-qa/internal/content"
)

// BatchState 批次状态
type BatchState string

const (
	BatchPending    BatchState = "pending"
	BatchInProgress BatchState = "in_progress"
	BatchSucceeded  BatchState = "succeeded"
	BatchSkipped    BatchState = "skipped"
)

// BatchReport 单个批次的处理结果
type BatchReport struct {
	Index    int             `json:"index"`
	IDs      []string        `json:"ids"`
	State    BatchState      `json:"state"`
	Attempts int             `json:"attempts"`
	Backoffs []time.Duration `json:"backoffs,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// CategoryReport 一个类别的入库报告
// Committed 与 Skipped 之和等于 Valid，取消时剩余批次计入 Pending
type CategoryReport struct {
	Category         content.Category `json:"category"`
	Received         int              `json:"received"`
	Valid            int              `json:"valid"`
	DroppedBlank     int              `json:"dropped_blank"`
	DroppedUnmatched int              `json:"dropped_unmatched"`
	Batches          []BatchReport    `json:"batches"`
	CommittedIDs     []string         `json:"committed_ids"`
	SkippedIDs       []string         `json:"skipped_ids"`
	PendingIDs       []string         `json:"pending_ids,omitempty"`
	Validation       string           `json:"validation_error,omitempty"`
}

// SkippedBatches 被跳过的批次数
func (r *CategoryReport) SkippedBatches() int {
	n := 0
	for _, b := range r.Batches {
		if b.State == BatchSkipped {
			n++
		}
	}
	return n
}

// newReport 创建空报告，切片初始化为非nil便于序列化
func newReport(category content.Category, received int) *CategoryReport {
	return &CategoryReport{
		Category:     category,
		Received:     received,
		Batches:      []BatchReport{},
		CommittedIDs: []string{},
		SkippedIDs:   []string{},
	}
}
