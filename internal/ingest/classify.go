package ingest

import (
	"errors"
	"strings"

	"github.com/fyerfyer/multirep-qa/internal/models"
)

// rateLimiter 客户端错误类型实现此接口以标记限流
type rateLimiter interface {
	RateLimited() bool
}

// IsRateLimit 判断错误是否为可重试的限流错误
// 依次检查类型化错误、客户端错误码和错误文本中的 429 或 quota
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}

	var rlErr *models.RateLimitError
	if errors.As(err, &rlErr) {
		return true
	}

	var limiter rateLimiter
	if errors.As(err, &limiter) && limiter.RateLimited() {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") || strings.Contains(msg, "quota")
}

// classify 将批次错误归类为领域错误
func classify(err error) error {
	if IsRateLimit(err) {
		var rlErr *models.RateLimitError
		if errors.As(err, &rlErr) {
			return rlErr
		}
		return &models.RateLimitError{Err: err}
	}
	return &models.TransientServiceError{Err: err}
}
