package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"
)

// RedisStore 基于Redis哈希表的存储
// 所有内容放在一个哈希表中，批量写入用单条 HSET 完成
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore 创建Redis存储
func NewRedisStore(config Config) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.RedisAddr,
		Password: config.RedisPassword,
		DB:       config.RedisDB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect redis docstore: %w", err)
	}
	return NewRedisStoreWithClient(client, config.RedisKey), nil
}

// NewRedisStoreWithClient 使用已有的Redis客户端创建存储
func NewRedisStoreWithClient(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultConfig().RedisKey
	}
	return &RedisStore{client: client, key: key}
}

// Set 写入单条记录
func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	return r.BulkSet(ctx, []Item{{Key: key, Value: value}})
}

// BulkSet 批量写入
func (r *RedisStore) BulkSet(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	if err := validateItems(items); err != nil {
		return err
	}

	values := make([]interface{}, 0, len(items)*2)
	for _, item := range items {
		values = append(values, item.Key, item.Value)
	}
	return r.client.HSet(ctx, r.key, values...).Err()
}

// Get 读取记录
func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.HGet(ctx, r.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Delete 删除记录
func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.HDel(ctx, r.key, keys...).Err()
}

// Count 记录总数
func (r *RedisStore) Count(ctx context.Context) (int, error) {
	n, err := r.client.HLen(ctx, r.key).Result()
	return int(n), err
}

// Keys 全部键，按字典序
func (r *RedisStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := r.client.HKeys(ctx, r.key).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}

// Close 关闭连接
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func init() {
	RegisterStore("redis", NewRedisStore)
}
