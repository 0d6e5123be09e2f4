package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RunStatus 入库任务状态
type RunStatus string

const (
	// RunStatusQueued 已提交到任务队列
	RunStatusQueued RunStatus = "queued"
	// RunStatusRunning 处理中
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted 处理完成，可能有被跳过的批次
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed 处理失败
	RunStatusFailed RunStatus = "failed"
)

// IngestionRun 一次文档入库的记录
// Report 保存完整的入库报告
type IngestionRun struct {
	ID                string         `gorm:"primaryKey;size:64"`
	FileName          string         `gorm:"not null"`
	FilePath          string         `gorm:"not null"`
	ImageDir          string         `gorm:"size:512"`
	Status            RunStatus      `gorm:"size:20;not null;index"`
	ElementsProcessed int            `gorm:"not null;default:0"`
	TextChunks        int            `gorm:"not null;default:0"`
	Tables            int            `gorm:"not null;default:0"`
	Images            int            `gorm:"not null;default:0"`
	Committed         int            `gorm:"not null;default:0"`
	Skipped           int            `gorm:"not null;default:0"`
	Report            datatypes.JSON `gorm:"type:json"`
	Error             string         `gorm:"type:text"`
	TaskID            string         `gorm:"size:64;index"`
	CreatedAt         time.Time      `gorm:"not null;index"`
	UpdatedAt         time.Time      `gorm:"not null"`
	FinishedAt        *time.Time
}

// BeforeCreate 创建前设置时间
func (r *IngestionRun) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	return nil
}

// BeforeUpdate 更新前刷新更新时间
func (r *IngestionRun) BeforeUpdate(tx *gorm.DB) error {
	r.UpdatedAt = time.Now()
	return nil
}

// TableName 指定表名
func (IngestionRun) TableName() string {
	return "ingestion_runs"
}

// ContentRecord 原始内容，按内容ID存储
type ContentRecord struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Content   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName 指定表名
func (ContentRecord) TableName() string {
	return "content_records"
}
