package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/fyerfyer/multirep-qa/internal/database"
	"github.com/fyerfyer/multirep-qa/internal/models"
)

// runRepository 入库记录仓储实现
type runRepository struct {
	db *gorm.DB
}

// NewRunRepository 使用全局数据库连接创建仓储
func NewRunRepository() RunRepository {
	return &runRepository{db: database.MustDB()}
}

// NewRunRepositoryWithDB 使用指定的数据库连接创建仓储
func NewRunRepositoryWithDB(db *gorm.DB) RunRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &runRepository{db: db}
}

// Create 创建入库记录
func (r *runRepository) Create(ctx context.Context, run *models.IngestionRun) error {
	if run.ID == "" {
		return errors.New("run ID cannot be empty")
	}
	return r.db.WithContext(ctx).Create(run).Error
}

// Save 保存整条记录
func (r *runRepository) Save(ctx context.Context, run *models.IngestionRun) error {
	if run.ID == "" {
		return errors.New("run ID cannot be empty")
	}
	return r.db.WithContext(ctx).Save(run).Error
}

// GetByID 根据ID获取记录
func (r *runRepository) GetByID(ctx context.Context, id string) (*models.IngestionRun, error) {
	var run models.IngestionRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
		}
		return nil, err
	}
	return &run, nil
}

// List 分页列出记录，按创建时间倒序
func (r *runRepository) List(ctx context.Context, offset, limit int, status models.RunStatus) ([]*models.IngestionRun, int64, error) {
	var (
		runs  []*models.IngestionRun
		total int64
	)

	query := r.db.WithContext(ctx).Model(&models.IngestionRun{})
	if status != "" {
		query = query.Where("status = ?", string(status))
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

// UpdateStatus 更新状态
func (r *runRepository) UpdateStatus(ctx context.Context, id string, status models.RunStatus, errorMsg string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	if errorMsg != "" {
		updates["error"] = errorMsg
	}
	if status == models.RunStatusCompleted || status == models.RunStatusFailed {
		now := time.Now()
		updates["finished_at"] = &now
	}

	result := r.db.WithContext(ctx).Model(&models.IngestionRun{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", models.ErrRunNotFound, id)
	}
	return nil
}

// SetTaskID 关联异步任务ID
func (r *runRepository) SetTaskID(ctx context.Context, id, taskID string) error {
	return r.db.WithContext(ctx).Model(&models.IngestionRun{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"task_id":    taskID,
			"updated_at": time.Now(),
		}).Error
}

// Delete 删除记录
func (r *runRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.IngestionRun{}).Error
}
