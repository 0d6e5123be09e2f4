package docstore

import (
	"context"
	"sort"
	"sync"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryStore 基于go-cache的内存存储，条目永不过期
type MemoryStore struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

// NewMemoryStore 创建内存存储
func NewMemoryStore(config Config) (Store, error) {
	return &MemoryStore{
		cache: gocache.New(gocache.NoExpiration, 0),
	}, nil
}

// Set 写入单条记录
func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	return m.BulkSet(ctx, []Item{{Key: key, Value: value}})
}

// BulkSet 批量写入
func (m *MemoryStore) BulkSet(ctx context.Context, items []Item) error {
	if err := validateItems(items); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		m.cache.Set(item.Key, item.Value, gocache.NoExpiration)
	}
	return nil
}

// Get 读取记录
func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, found := m.cache.Get(key)
	if !found {
		return "", false, nil
	}
	str, ok := value.(string)
	return str, ok, nil
}

// Delete 删除记录，不存在的键忽略
func (m *MemoryStore) Delete(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		m.cache.Delete(key)
	}
	return nil
}

// Count 记录总数
func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	return m.cache.ItemCount(), nil
}

// Keys 全部键，按字典序
func (m *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	items := m.cache.Items()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close 关闭存储
func (m *MemoryStore) Close() error {
	m.cache.Flush()
	return nil
}

func init() {
	RegisterStore("memory", NewMemoryStore)
}
