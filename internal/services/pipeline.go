package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/multirep-qa/internal/content"
	"github.com/fyerfyer/multirep-qa/internal/document"
	"github.com/fyerfyer/multirep-qa/internal/ingest"
	"github.com/fyerfyer/multirep-qa/internal/multirep"
	"github.com/fyerfyer/multirep-qa/internal/vision"
)

// Summarizer 按类别生成摘要
type Summarizer interface {
	Summarize(ctx context.Context, category content.Category, inputs []string) ([]string, error)
}

// CategoryIngestor 按类别写入多表示存储
type CategoryIngestor interface {
	Ingest(ctx context.Context, category content.Category, summaries, originals []string) (*ingest.CategoryReport, error)
}

// DroppedCategory 摘要阶段整体失败的类别
type DroppedCategory struct {
	Category content.Category `json:"category"`
	Reason   string           `json:"reason"`
}

// IngestionReport 一次文档处理的完整报告
type IngestionReport struct {
	Categories        []*ingest.CategoryReport `json:"categories"`
	DroppedCategories []DroppedCategory        `json:"dropped_categories"`
	Committed         int                      `json:"committed"`
	Skipped           int                      `json:"skipped"`
	SkippedBatches    int                      `json:"skipped_batches"`
}

// ProcessResult 文档处理结果
type ProcessResult struct {
	ElementsProcessed      int                           `json:"elements_processed"`
	TextChunks             int                           `json:"text_chunks"`
	Tables                 int                           `json:"tables"`
	Images                 int                           `json:"images"`
	CommittedIDsByCategory map[content.Category][]string `json:"committed_ids_by_category"`
	Report                 *IngestionReport              `json:"report"`
}

// Pipeline 文档入库流水线
// 各阶段严格顺序执行，同一时间只处理一个文档
type Pipeline struct {
	mu          sync.Mutex
	summarizer  Summarizer
	ingestor    CategoryIngestor
	store       *multirep.Store
	captioner   vision.Captioner
	chunkConfig document.ChunkConfig
	logger      *logrus.Logger
}

// PipelineOption 流水线配置选项
type PipelineOption func(*Pipeline)

// WithCaptioner 设置图片描述客户端，未设置时跳过图片
func WithCaptioner(c vision.Captioner) PipelineOption {
	return func(p *Pipeline) {
		p.captioner = c
	}
}

// WithChunkConfig 设置分块参数
func WithChunkConfig(cfg document.ChunkConfig) PipelineOption {
	return func(p *Pipeline) {
		p.chunkConfig = cfg
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline 创建入库流水线
func NewPipeline(summarizer Summarizer, ingestor CategoryIngestor, store *multirep.Store, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		summarizer:  summarizer,
		ingestor:    ingestor,
		store:       store,
		chunkConfig: document.DefaultChunkConfig(),
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store 返回流水线写入的多表示存储
func (p *Pipeline) Store() *multirep.Store {
	return p.store
}

// Process 处理一个文档：分区、分类、摘要、图片描述、入库
// imageDir 为空时不处理图片
func (p *Pipeline) Process(ctx context.Context, filePath, imageDir string) (*ProcessResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	log := p.logger.WithField("file", filePath)

	// 图片只有在配置了描述客户端时才需要导出
	exportDir := ""
	if p.captioner != nil {
		exportDir = imageDir
	}
	loaded, err := document.Load(filePath, exportDir, p.chunkConfig)
	if err != nil {
		return nil, fmt.Errorf("load document: %w", err)
	}
	categorized := content.FromDocument(loaded.Chunks, loaded.Tables)
	log.WithFields(logrus.Fields{
		"elements": len(loaded.Elements),
		"chunks":   len(categorized.TextElements),
		"tables":   len(categorized.TableElements),
	}).Info("Document partitioned")

	var images []string
	if exportDir != "" && dirExists(exportDir) {
		descriptions, err := vision.DescribeDirectory(ctx, p.captioner, exportDir, p.logger)
		switch {
		case err == nil:
			images = vision.Texts(descriptions)
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			// 图片目录不可用不影响文本和表格
			log.WithError(err).Warn("Skipping image descriptions")
		}
	}

	result, err := p.process(ctx, categorized, images)
	if result != nil {
		result.ElementsProcessed = len(loaded.Elements)
	}
	return result, err
}

// ProcessContent 处理已分类的内容和图片描述
func (p *Pipeline) ProcessContent(ctx context.Context, categorized *content.Result, imageDescriptions []string) (*ProcessResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.process(ctx, categorized, imageDescriptions)
}

func (p *Pipeline) process(ctx context.Context, categorized *content.Result, images []string) (*ProcessResult, error) {
	result := &ProcessResult{
		ElementsProcessed:      len(categorized.Elements),
		TextChunks:             len(categorized.TextElements),
		Tables:                 len(categorized.TableElements),
		Images:                 len(images),
		CommittedIDsByCategory: make(map[content.Category][]string),
		Report: &IngestionReport{
			Categories:        []*ingest.CategoryReport{},
			DroppedCategories: []DroppedCategory{},
		},
	}

	inputs := map[content.Category][]string{
		content.CategoryText:  categorized.Texts(),
		content.CategoryTable: categorized.Tables(),
		content.CategoryImage: images,
	}

	for _, category := range content.Categories {
		originals := inputs[category]
		if len(originals) == 0 {
			continue
		}

		summaries := originals
		if category != content.CategoryImage {
			var err error
			summaries, err = p.summarizer.Summarize(ctx, category, originals)
			if err != nil {
				if ctx.Err() != nil {
					return result, ctx.Err()
				}
				p.logger.WithError(err).WithField("category", category).Error("Dropping category")
				result.Report.DroppedCategories = append(result.Report.DroppedCategories,
					DroppedCategory{Category: category, Reason: err.Error()})
				continue
			}
		}

		report, err := p.ingestor.Ingest(ctx, category, summaries, originals)
		if report != nil {
			result.addReport(report)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return result, err
			}
			return result, fmt.Errorf("ingest %s: %w", category, err)
		}
	}

	p.logger.WithFields(logrus.Fields{
		"committed": result.Report.Committed,
		"skipped":   result.Report.Skipped,
		"dropped":   len(result.Report.DroppedCategories),
	}).Info("Document processed")
	return result, nil
}

func (r *ProcessResult) addReport(report *ingest.CategoryReport) {
	r.Report.Categories = append(r.Report.Categories, report)
	r.Report.Committed += len(report.CommittedIDs)
	r.Report.Skipped += len(report.SkippedIDs)
	r.Report.SkippedBatches += report.SkippedBatches()
	r.CommittedIDsByCategory[report.Category] = report.CommittedIDs
}

// Reset 清空多表示存储，开始新的会话
func (p *Pipeline) Reset(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.store.Reset(ctx)
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}
