// Package ingest 将摘要分批写入多表示存储，处理限流退避和批次跳过
package ingest

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/multirep-qa/internal/content"
	"github.com/fyerfyer/multirep-qa/internal/models"
	"github.com/fyerfyer/multirep-qa/internal/multirep"
)

// Committer 批量提交记录的存储
type Committer interface {
	CommitBatch(ctx context.Context, records []multirep.Record) error
}

// Ingestor 分批入库器
type Ingestor struct {
	store   Committer
	cfg     Config
	sleeper Sleeper
	logger  *logrus.Logger
	newID   func() string
}

// Option 入库器配置选项
type Option func(*Ingestor)

// WithConfig 设置入库配置
func WithConfig(cfg Config) Option {
	return func(i *Ingestor) {
		i.cfg = cfg
	}
}

// WithSleeper 设置等待实现
func WithSleeper(s Sleeper) Option {
	return func(i *Ingestor) {
		i.sleeper = s
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(i *Ingestor) {
		i.logger = logger
	}
}

// WithIDGenerator 设置ID生成函数
func WithIDGenerator(gen func() string) Option {
	return func(i *Ingestor) {
		i.newID = gen
	}
}

// New 创建入库器
func New(store Committer, opts ...Option) (*Ingestor, error) {
	i := &Ingestor{
		store:   store,
		cfg:     DefaultConfig(),
		sleeper: TimerSleeper{},
		logger:  logrus.StandardLogger(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(i)
	}
	if err := i.cfg.Validate(); err != nil {
		return nil, err
	}
	return i, nil
}

// Config 返回当前配置
func (i *Ingestor) Config() Config {
	return i.cfg
}

// pair 通过校验并分配了ID的摘要记录
type pair struct {
	id string
	content.SummaryRecord
}

// Ingest 将一个类别的摘要与原文写入存储
// 单个批次失败不影响后续批次；只有取消会中断并返回 ctx.Err()
func (i *Ingestor) Ingest(ctx context.Context, category content.Category, summaries, originals []string) (*CategoryReport, error) {
	report := newReport(category, len(summaries))
	log := i.logger.WithField("category", category)

	pairs := i.align(report, summaries, originals)
	if len(pairs) == 0 {
		report.Validation = (&models.ValidationError{
			Category: string(category),
			Reason:   "no non-empty summaries with matching content",
		}).Error()
		log.WithFields(logrus.Fields{
			"received":      report.Received,
			"dropped_blank": report.DroppedBlank,
		}).Warn("Nothing to ingest")
		return report, nil
	}

	batches := partition(pairs, i.cfg.BatchSize)
	log.WithFields(logrus.Fields{
		"valid":   report.Valid,
		"batches": len(batches),
	}).Info("Ingesting summaries")

	for n, batch := range batches {
		if err := ctx.Err(); err != nil {
			i.markPending(report, batches[n:], n)
			return report, err
		}

		br, err := i.runBatch(ctx, log, n, batch)
		report.Batches = append(report.Batches, br)
		switch br.State {
		case BatchSucceeded:
			report.CommittedIDs = append(report.CommittedIDs, br.IDs...)
		case BatchSkipped:
			report.SkippedIDs = append(report.SkippedIDs, br.IDs...)
		default:
			// 退避期间被取消
			report.Batches = report.Batches[:len(report.Batches)-1]
			i.markPending(report, batches[n:], n)
			return report, err
		}

		if br.State == BatchSucceeded && n < len(batches)-1 {
			if err := i.sleeper.Sleep(ctx, i.cfg.InterBatchDelay); err != nil {
				i.markPending(report, batches[n+1:], n+1)
				return report, err
			}
		}
	}

	log.WithFields(logrus.Fields{
		"committed": len(report.CommittedIDs),
		"skipped":   len(report.SkippedIDs),
	}).Info("Category ingested")
	return report, nil
}

// align 过滤空白摘要，按位置与原文配对并分配ID
func (i *Ingestor) align(report *CategoryReport, summaries, originals []string) []pair {
	pairs := make([]pair, 0, len(summaries))
	for idx, summary := range summaries {
		if strings.TrimSpace(summary) == "" {
			report.DroppedBlank++
			continue
		}
		if idx >= len(originals) {
			report.DroppedUnmatched++
			continue
		}
		pairs = append(pairs, pair{SummaryRecord: content.SummaryRecord{
			Category:      report.Category,
			Summary:       summary,
			SourceContent: originals[idx],
		}})
	}
	// 全部校验完成后再分配ID，被丢弃的条目不会消耗ID
	for n := range pairs {
		pairs[n].id = i.newID()
	}
	report.Valid = len(pairs)
	return pairs
}

// runBatch 执行单个批次的重试状态机
// 返回的状态为 in_progress 表示等待期间被取消
func (i *Ingestor) runBatch(ctx context.Context, log *logrus.Entry, index int, batch []pair) (BatchReport, error) {
	records := make([]multirep.Record, len(batch))
	br := BatchReport{Index: index, IDs: make([]string, len(batch)), State: BatchInProgress}
	for n, p := range batch {
		records[n] = multirep.Record{ID: p.id, Category: string(p.Category), Summary: p.Summary, Content: p.SourceContent}
		br.IDs[n] = p.id
	}

	log = log.WithField("batch", index)
	for attempt := 0; ; attempt++ {
		br.Attempts = attempt + 1
		err := i.store.CommitBatch(ctx, records)
		if err == nil {
			br.State = BatchSucceeded
			br.Error = ""
			return br, nil
		}

		classified := classify(err)
		br.Error = classified.Error()
		if !IsRateLimit(classified) || attempt >= i.cfg.MaxRetries-1 {
			br.State = BatchSkipped
			log.WithFields(logrus.Fields{
				"attempts": br.Attempts,
				"error":    err,
			}).Warn("Batch skipped")
			return br, nil
		}

		wait := i.cfg.Backoff(attempt)
		br.Backoffs = append(br.Backoffs, wait)
		log.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"backoff": wait.String(),
		}).Warn("Rate limited, backing off")
		if err := i.sleeper.Sleep(ctx, wait); err != nil {
			return br, err
		}
	}
}

// markPending 取消后将未处理的批次记为 pending
func (i *Ingestor) markPending(report *CategoryReport, rest [][]pair, first int) {
	for n, batch := range rest {
		br := BatchReport{Index: first + n, State: BatchPending, IDs: make([]string, len(batch))}
		for k, p := range batch {
			br.IDs[k] = p.id
		}
		report.Batches = append(report.Batches, br)
		report.PendingIDs = append(report.PendingIDs, br.IDs...)
	}
}

// partition 按顺序切分批次
func partition(pairs []pair, size int) [][]pair {
	batches := make([][]pair, 0, (len(pairs)+size-1)/size)
	for start := 0; start < len(pairs); start += size {
		end := start + size
		if end > len(pairs) {
			end = len(pairs)
		}
		batches = append(batches, pairs[start:end])
	}
	return batches
}
