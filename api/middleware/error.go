package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/multirep-qa/api/model"
	"github.com/fyerfyer/multirep-qa/internal/document"
	"github.com/fyerfyer/multirep-qa/internal/llm"
	"github.com/fyerfyer/multirep-qa/internal/models"
	"github.com/fyerfyer/multirep-qa/pkg/taskqueue"
)

// 错误类型
const (
	ErrorTypeValidation  = "VALIDATION_ERROR"
	ErrorTypeNotFound    = "NOT_FOUND_ERROR"
	ErrorTypeNotReady    = "NOT_READY_ERROR"
	ErrorTypeRateLimited = "RATE_LIMITED_ERROR"
	ErrorTypeTimeout     = "TIMEOUT_ERROR"
	ErrorTypeInternal    = "INTERNAL_ERROR"
)

// AppError 应用错误结构体
type AppError struct {
	Type    string // 错误类型
	Message string // 错误消息
	Details string // 详细错误信息
	Code    int    // HTTP状态码
}

// Error 实现error接口
func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewValidationError 创建输入验证错误
func NewValidationError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeValidation,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusBadRequest,
	}
}

// NewNotFoundError 创建资源不存在错误
func NewNotFoundError(message string) AppError {
	return AppError{
		Type:    ErrorTypeNotFound,
		Message: message,
		Code:    http.StatusNotFound,
	}
}

// NewInternalError 创建内部服务器错误
func NewInternalError(message string, details ...string) AppError {
	return AppError{
		Type:    ErrorTypeInternal,
		Message: message,
		Details: strings.Join(details, "; "),
		Code:    http.StatusInternalServerError,
	}
}

// FromError 将领域错误映射为应用错误
func FromError(err error) AppError {
	var appErr AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	var validation *models.ValidationError
	var rateLimit *models.RateLimitError
	switch {
	case models.IsNotReady(err):
		return AppError{
			Type:    ErrorTypeNotReady,
			Message: "no content has been ingested yet",
			Code:    http.StatusConflict,
		}
	case errors.As(err, &validation):
		return NewValidationError(validation.Error())
	case errors.Is(err, document.ErrUnsupportedType):
		return NewValidationError("unsupported file type", err.Error())
	case errors.Is(err, models.ErrRunNotFound), errors.Is(err, taskqueue.ErrTaskNotFound):
		return NewNotFoundError(err.Error())
	case errors.As(err, &rateLimit), llm.IsRateLimited(err):
		return AppError{
			Type:    ErrorTypeRateLimited,
			Message: "upstream model rate limited",
			Details: err.Error(),
			Code:    http.StatusTooManyRequests,
		}
	case errors.Is(err, taskqueue.ErrTaskTimeout):
		return AppError{
			Type:    ErrorTypeTimeout,
			Message: err.Error(),
			Code:    http.StatusGatewayTimeout,
		}
	default:
		return NewInternalError("internal server error", err.Error())
	}
}

// ErrorHandler 统一错误处理中间件
// 恢复panic，并把处理器通过 c.Error 记录的最后一个错误写成响应
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.WithFields(logrus.Fields{
					FieldError:   rec,
					"stack":      string(debug.Stack()),
					FieldPath:    c.Request.URL.Path,
					FieldTraceID: c.GetString(traceIDKey),
				}).Error("Panic recovered in API request")

				resp := model.NewErrorResponse(http.StatusInternalServerError, "An unexpected error occurred")
				resp.TraceID = c.GetString(traceIDKey)
				c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
			}
		}()

		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		appErr := FromError(c.Errors.Last().Err)
		entry := log.WithFields(logrus.Fields{
			"error_type":  appErr.Type,
			FieldTraceID: c.GetString(traceIDKey),
			FieldPath:    c.Request.URL.Path,
		})
		if appErr.Code >= http.StatusInternalServerError {
			entry.WithField("details", appErr.Details).Error(appErr.Message)
		} else {
			entry.Warn(appErr.Message)
		}

		message := appErr.Message
		if gin.Mode() == gin.DebugMode && appErr.Details != "" {
			message = appErr.Message + ": " + appErr.Details
		}
		resp := model.NewErrorResponse(appErr.Code, message)
		resp.TraceID = c.GetString(traceIDKey)
		c.AbortWithStatusJSON(appErr.Code, resp)
	}
}

// HandleError 在处理器中使用的错误处理辅助函数
func HandleError(c *gin.Context, err error) {
	_ = c.Error(err)
}
