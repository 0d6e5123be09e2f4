package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/multirep-qa/internal/database"
	"github.com/fyerfyer/multirep-qa/internal/models"
	"gorm.io/gorm"
)

// GormStore 关系数据库存储，复用全局数据库连接
type GormStore struct {
	db *gorm.DB
}

// NewGormStore 使用全局连接创建存储，需先调用 database.Setup
func NewGormStore(config Config) (Store, error) {
	if database.DB == nil {
		return nil, errors.New("database not initialized")
	}
	return NewGormStoreWithDB(database.DB), nil
}

// NewGormStoreWithDB 使用指定连接创建存储
func NewGormStoreWithDB(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Set 写入单条记录
func (s *GormStore) Set(ctx context.Context, key, value string) error {
	return s.BulkSet(ctx, []Item{{Key: key, Value: value}})
}

// BulkSet 在一个事务内批量写入
func (s *GormStore) BulkSet(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := validateItems(items); err != nil {
		return err
	}

	now := time.Now()
	records := make([]models.ContentRecord, len(items))
	for i, item := range items {
		records[i] = models.ContentRecord{ID: item.Key, Content: item.Value, CreatedAt: now}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(records, 100).Error; err != nil {
			return fmt.Errorf("insert content records: %w", err)
		}
		return nil
	})
}

// Get 读取记录
func (s *GormStore) Get(ctx context.Context, key string) (string, bool, error) {
	var record models.ContentRecord
	err := s.db.WithContext(ctx).Where("id = ?", key).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return record.Content, true, nil
}

// deleteChunk 单条 DELETE 语句绑定的最大键数，低于 sqlite 的变量数上限
const deleteChunk = 500

// Delete 分段删除记录，全部段在一个事务内完成
func (s *GormStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for start := 0; start < len(keys); start += deleteChunk {
			end := min(start+deleteChunk, len(keys))
			if err := tx.Where("id IN ?", keys[start:end]).Delete(&models.ContentRecord{}).Error; err != nil {
				return fmt.Errorf("delete content records: %w", err)
			}
		}
		return nil
	})
}

// Count 记录总数
func (s *GormStore) Count(ctx context.Context) (int, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.ContentRecord{}).Count(&n).Error
	return int(n), err
}

// Keys 全部键，按字典序
func (s *GormStore) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&models.ContentRecord{}).Order("id").Pluck("id", &keys).Error
	return keys, err
}

// Close 连接由 database 包统一关闭
func (s *GormStore) Close() error {
	return nil
}

func init() {
	RegisterStore("sqlite", NewGormStore)
}
