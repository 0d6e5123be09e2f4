package model

import (
	"mime/multipart"
)

// PaginationRequest 分页请求参数
type PaginationRequest struct {
	Page     int `form:"page" json:"page" binding:"omitempty,min=1"`           // 当前页码，从1开始
	PageSize int `form:"page_size" json:"page_size" binding:"omitempty,min=1"` // 每页记录数
}

// GetPage 获取页码，默认为1
func (p *PaginationRequest) GetPage() int {
	if p.Page <= 0 {
		return 1
	}
	return p.Page
}

// GetPageSize 获取每页记录数，默认为10，最大为100
func (p *PaginationRequest) GetPageSize() int {
	if p.PageSize <= 0 {
		return 10
	}
	if p.PageSize > 100 {
		return 100
	}
	return p.PageSize
}

// Offset 当前页的偏移量
func (p *PaginationRequest) Offset() int {
	return (p.GetPage() - 1) * p.GetPageSize()
}

// DocumentUploadRequest 文档上传请求
// images 为可选的图片文件，会作为该文档的图片目录参与入库
type DocumentUploadRequest struct {
	File   *multipart.FileHeader   `form:"file" binding:"required"`
	Images []*multipart.FileHeader `form:"images" binding:"omitempty"`
	Async  bool                    `form:"async" binding:"omitempty"` // 配置了队列时异步处理
}

// RunRequest 入库记录查询请求
type RunRequest struct {
	ID string `uri:"id" binding:"required"`
}

// RunListRequest 入库记录列表请求
type RunListRequest struct {
	PaginationRequest
	Status string `form:"status" binding:"omitempty,oneof=queued running completed failed"`
}

// QARequest 问答请求
type QARequest struct {
	Question string `json:"question" binding:"required"`
	K        int    `json:"k" binding:"omitempty,min=1,max=50"` // 检索数量，默认使用配置值
}
