package models

import (
	"errors"
	"fmt"
)

var (
	// ErrRunNotFound 入库记录不存在
	ErrRunNotFound = errors.New("ingestion run not found")

	// ErrNotReady 尚未有任何成功入库的内容
	ErrNotReady = errors.New("no content has been ingested yet")
)

// ValidationError 某个类别没有可用的内容或摘要
type ValidationError struct {
	Category string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Category, e.Reason)
}

// RateLimitError 可重试的限流错误
type RateLimitError struct {
	Err error
}

func (e *RateLimitError) Error() string {
	if e.Err == nil {
		return "rate limited"
	}
	return fmt.Sprintf("rate limited: %v", e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// TransientServiceError 非限流类的外部服务错误，入库层不重试
type TransientServiceError struct {
	Err error
}

func (e *TransientServiceError) Error() string {
	return fmt.Sprintf("service error: %v", e.Err)
}

func (e *TransientServiceError) Unwrap() error { return e.Err }

// ConsistencyError 向量索引与内容存储不一致
// 查询时检测到，只报告不中断
type ConsistencyError struct {
	ID string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("content missing for indexed id %s", e.ID)
}

// NotReadyError 在任何成功入库之前发起查询
type NotReadyError struct{}

func (e *NotReadyError) Error() string { return ErrNotReady.Error() }

// Is 让 errors.Is(err, ErrNotReady) 成立
func (e *NotReadyError) Is(target error) bool { return target == ErrNotReady }

// IsNotReady 判断错误是否为未就绪错误
func IsNotReady(err error) bool {
	return errors.Is(err, ErrNotReady)
}
