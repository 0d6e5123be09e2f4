package model

import (
	"encoding/json"
	"time"

	"github.com/fyerfyer/multirep-qa/internal/models"
	"github.com/fyerfyer/multirep-qa/internal/services"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// RunResponse 入库记录
type RunResponse struct {
	ID                string          `json:"id"`
	FileName          string          `json:"filename"`
	Status            string          `json:"status"`
	TaskID            string          `json:"task_id,omitempty"`
	Error             string          `json:"error,omitempty"`
	ElementsProcessed int             `json:"elements_processed"`
	TextChunks        int             `json:"text_chunks"`
	Tables            int             `json:"tables"`
	Images            int             `json:"images"`
	Committed         int             `json:"committed"`
	Skipped           int             `json:"skipped"`
	Report            json.RawMessage `json:"report,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	FinishedAt        *time.Time      `json:"finished_at,omitempty"`
}

// NewRunResponse 将入库记录转换为响应
// withReport 为假时省略完整报告
func NewRunResponse(run *models.IngestionRun, withReport bool) RunResponse {
	resp := RunResponse{
		ID:                run.ID,
		FileName:          run.FileName,
		Status:            string(run.Status),
		TaskID:            run.TaskID,
		Error:             run.Error,
		ElementsProcessed: run.ElementsProcessed,
		TextChunks:        run.TextChunks,
		Tables:            run.Tables,
		Images:            run.Images,
		Committed:         run.Committed,
		Skipped:           run.Skipped,
		CreatedAt:         run.CreatedAt,
		FinishedAt:        run.FinishedAt,
	}
	if withReport && len(run.Report) > 0 {
		resp.Report = json.RawMessage(run.Report)
	}
	return resp
}

// RunListResponse 入库记录列表响应
type RunListResponse struct {
	Total    int64         `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"page_size"`
	Runs     []RunResponse `json:"runs"`
}

// QAResponse 问答响应
type QAResponse struct {
	Question        string            `json:"question"`
	Answer          string            `json:"answer"`
	Sources         []services.Source `json:"sources"`
	Inconsistencies []string          `json:"inconsistencies,omitempty"`
	Cached          bool              `json:"cached"`
}

// RetrieveResponse 检索响应
type RetrieveResponse struct {
	Question        string            `json:"question"`
	Sources         []services.Source `json:"sources"`
	Inconsistencies []string          `json:"inconsistencies,omitempty"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Ready     bool   `json:"ready"`   // 是否已有可检索的内容
	Size      int    `json:"size"`    // 已入库的条目数
	AsyncMode bool   `json:"async"`   // 是否启用了异步队列
	Version   uint64 `json:"version"` // 存储版本号
}
