package docstore

import (
	"context"
	"errors"
	"strings"
)

// ErrEmptyKey 键为空
var ErrEmptyKey = errors.New("docstore: empty key")

// Item 一条键值记录
type Item struct {
	Key   string
	Value string
}

// Store 原始内容存储接口
// BulkSet 要么全部写入要么全部不写入
type Store interface {
	Set(ctx context.Context, key, value string) error
	BulkSet(ctx context.Context, items []Item) error
	Get(ctx context.Context, key string) (string, bool, error)
	Delete(ctx context.Context, keys ...string) error
	Count(ctx context.Context) (int, error)
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Config 内容存储配置
type Config struct {
	Type          string // memory, redis, sqlite
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisKey      string // redis 哈希表名
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Type:     "memory",
		RedisKey: "multirep:docstore",
	}
}

// Factory 存储工厂函数类型
type Factory func(config Config) (Store, error)

var registry = make(map[string]Factory)

// RegisterStore 注册存储实现
func RegisterStore(name string, factory Factory) {
	registry[name] = factory
}

// NewStore 根据配置创建存储，未知类型使用内存实现
func NewStore(config Config) (Store, error) {
	if factory, ok := registry[config.Type]; ok {
		return factory(config)
	}
	return NewMemoryStore(config)
}

func validateItems(items []Item) error {
	for _, item := range items {
		if strings.TrimSpace(item.Key) == "" {
			return ErrEmptyKey
		}
	}
	return nil
}
