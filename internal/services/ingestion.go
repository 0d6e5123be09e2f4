package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/fyerfyer/multirep-qa/internal/document"
	"github.com/fyerfyer/multirep-qa/internal/models"
	"github.com/fyerfyer/multirep-qa/internal/repository"
	"github.com/fyerfyer/multirep-qa/internal/vision"
	"github.com/fyerfyer/multirep-qa/pkg/storage"
	"github.com/fyerfyer/multirep-qa/pkg/taskqueue"
)

// Upload 上传的文件
type Upload struct {
	Name   string
	Reader io.Reader
}

// IngestionService 管理入库记录，负责上传文件的保存、同步或异步处理
type IngestionService struct {
	pipeline  *Pipeline
	runs      repository.RunRepository
	storage   storage.Storage
	queue     taskqueue.Queue
	imageRoot string // 每次入库的图片目录在其下按记录ID创建
	workDir   string // 远端存储下载文件的临时目录
	timeout   time.Duration
	logger    *logrus.Logger
}

// IngestionOption 配置选项
type IngestionOption func(*IngestionService)

// WithTaskQueue 设置任务队列，设置后可以异步处理
func WithTaskQueue(queue taskqueue.Queue) IngestionOption {
	return func(s *IngestionService) {
		s.queue = queue
	}
}

// WithImageRoot 设置图片根目录
func WithImageRoot(dir string) IngestionOption {
	return func(s *IngestionService) {
		s.imageRoot = dir
	}
}

// WithWorkDir 设置临时目录
func WithWorkDir(dir string) IngestionOption {
	return func(s *IngestionService) {
		s.workDir = dir
	}
}

// WithProcessTimeout 设置单个文档的处理超时
func WithProcessTimeout(timeout time.Duration) IngestionOption {
	return func(s *IngestionService) {
		s.timeout = timeout
	}
}

// WithIngestionLogger 设置日志记录器
func WithIngestionLogger(logger *logrus.Logger) IngestionOption {
	return func(s *IngestionService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewIngestionService 创建入库服务
func NewIngestionService(pipeline *Pipeline, runs repository.RunRepository, store storage.Storage, opts ...IngestionOption) *IngestionService {
	s := &IngestionService{
		pipeline:  pipeline,
		runs:      runs,
		storage:   store,
		imageRoot: filepath.Join("data", "images"),
		workDir:   filepath.Join(os.TempDir(), "multirep-qa"),
		timeout:   2 * time.Hour,
		logger:    logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AsyncEnabled 是否可以异步处理
func (s *IngestionService) AsyncEnabled() bool {
	return s.queue != nil
}

// Submit 保存上传的文档和图片并创建入库记录
// async 为真且配置了队列时提交任务后立即返回，否则同步处理
func (s *IngestionService) Submit(ctx context.Context, doc Upload, images []Upload, async bool) (*models.IngestionRun, error) {
	if document.DetectContentType(doc.Name) == document.Unknown {
		return nil, fmt.Errorf("%w: %s", document.ErrUnsupportedType, doc.Name)
	}

	info, err := s.storage.Save(ctx, doc.Reader, doc.Name)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}

	runID := uuid.New().String()
	imageDir := filepath.Join(s.imageRoot, runID)
	if err := saveImages(imageDir, images); err != nil {
		return nil, err
	}

	meta, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode upload info: %w", err)
	}
	run := &models.IngestionRun{
		ID:       runID,
		FileName: doc.Name,
		FilePath: info.Path,
		ImageDir: imageDir,
		Status:   models.RunStatusQueued,
		Report:   datatypes.JSON(`{"upload":` + string(meta) + `}`),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	log := s.logger.WithFields(logrus.Fields{
		"run_id": runID,
		"file":   doc.Name,
	})

	if async && s.queue != nil {
		payload := taskqueue.IngestPayload{
			RunID:    runID,
			FilePath: info.Path,
			FileName: doc.Name,
			ImageDir: imageDir,
		}
		taskID, err := s.queue.Enqueue(ctx, taskqueue.TaskIngestDocument, runID, payload)
		if err != nil {
			if uerr := s.runs.UpdateStatus(ctx, runID, models.RunStatusFailed, err.Error()); uerr != nil {
				log.WithError(uerr).Warn("Failed to mark run as failed")
			}
			return nil, fmt.Errorf("enqueue ingestion: %w", err)
		}
		if err := s.runs.SetTaskID(ctx, runID, taskID); err != nil {
			log.WithError(err).Warn("Failed to record task id")
		}
		run.TaskID = taskID
		log.WithField("task_id", taskID).Info("Ingestion queued")
		return run, nil
	}

	if _, err := s.Execute(ctx, runID); err != nil {
		log.WithError(err).Error("Ingestion failed")
	}
	return s.runs.GetByID(ctx, runID)
}

// Execute 处理一条入库记录并回写结果
func (s *IngestionService) Execute(ctx context.Context, runID string) (*ProcessResult, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := s.runs.UpdateStatus(ctx, runID, models.RunStatusRunning, ""); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.process(ctx, run)

	// 结果在取消后也要落盘
	saveCtx := context.WithoutCancel(ctx)
	if result != nil {
		run.ElementsProcessed = result.ElementsProcessed
		run.TextChunks = result.TextChunks
		run.Tables = result.Tables
		run.Images = result.Images
		run.Committed = result.Report.Committed
		run.Skipped = result.Report.Skipped
		if data, jsonErr := json.Marshal(result); jsonErr == nil {
			run.Report = datatypes.JSON(data)
		}
	}
	now := time.Now()
	run.FinishedAt = &now
	run.Status = models.RunStatusCompleted
	if err != nil {
		run.Status = models.RunStatusFailed
		run.Error = err.Error()
	}
	if saveErr := s.runs.Save(saveCtx, run); saveErr != nil {
		s.logger.WithError(saveErr).WithField("run_id", runID).Error("Failed to save ingestion run")
	}
	return result, err
}

func (s *IngestionService) process(ctx context.Context, run *models.IngestionRun) (*ProcessResult, error) {
	info := storage.FileInfo{Path: run.FilePath, Name: run.FileName, ID: run.ID}
	localPath, err := s.storage.LocalPath(ctx, info, s.workDir)
	if err != nil {
		return nil, fmt.Errorf("fetch upload: %w", err)
	}
	return s.pipeline.Process(ctx, localPath, run.ImageDir)
}

// ProcessTask 实现 taskqueue.Handler
func (s *IngestionService) ProcessTask(ctx context.Context, task *taskqueue.Task) (interface{}, error) {
	var payload taskqueue.IngestPayload
	if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", taskqueue.ErrInvalidPayload, err)
	}
	if payload.RunID == "" {
		return nil, taskqueue.ErrInvalidPayload
	}

	result, err := s.Execute(ctx, payload.RunID)
	if result == nil {
		return nil, err
	}
	return result.Report, err
}

// GetRun 查询入库记录
func (s *IngestionService) GetRun(ctx context.Context, runID string) (*models.IngestionRun, error) {
	return s.runs.GetByID(ctx, runID)
}

// ListRuns 分页列出入库记录
func (s *IngestionService) ListRuns(ctx context.Context, offset, limit int, status models.RunStatus) ([]*models.IngestionRun, int64, error) {
	return s.runs.List(ctx, offset, limit, status)
}

// saveImages 把上传的图片写入本次入库的图片目录
func saveImages(dir string, images []Upload) error {
	if len(images) == 0 {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create image dir: %w", err)
	}
	for _, img := range images {
		name := filepath.Base(img.Name)
		if vision.MimeForPath(name) == "" {
			return &models.ValidationError{Category: "image", Reason: "unsupported image type: " + img.Name}
		}
		f, err := os.Create(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("save image: %w", err)
		}
		_, err = io.Copy(f, img.Reader)
		f.Close()
		if err != nil {
			return fmt.Errorf("save image: %w", err)
		}
	}
	return nil
}
