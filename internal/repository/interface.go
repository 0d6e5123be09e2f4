package repository

import (
	"context"

	"github.com/fyerfyer/multirep-qa/internal/models"
)

// RunRepository 入库记录仓储接口
type RunRepository interface {
	// Create 创建入库记录
	Create(ctx context.Context, run *models.IngestionRun) error

	// Save 保存整条记录
	Save(ctx context.Context, run *models.IngestionRun) error

	// GetByID 根据ID获取记录，不存在时返回 models.ErrRunNotFound
	GetByID(ctx context.Context, id string) (*models.IngestionRun, error)

	// List 分页列出记录，status为空表示不过滤
	List(ctx context.Context, offset, limit int, status models.RunStatus) ([]*models.IngestionRun, int64, error)

	// UpdateStatus 更新状态，终态时记录完成时间
	UpdateStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error

	// SetTaskID 关联异步任务ID
	SetTaskID(ctx context.Context, id, taskID string) error

	// Delete 删除记录
	Delete(ctx context.Context, id string) error
}
