package handler

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/multirep-qa/api/middleware"
	"github.com/fyerfyer/multirep-qa/api/model"
	"github.com/fyerfyer/multirep-qa/internal/models"
	"github.com/fyerfyer/multirep-qa/internal/services"
)

// DocumentHandler 处理文档上传和入库记录查询
type DocumentHandler struct {
	ingestion *services.IngestionService
	logger    *logrus.Logger
}

// NewDocumentHandler 创建新的文档处理器
func NewDocumentHandler(ingestion *services.IngestionService) *DocumentHandler {
	return &DocumentHandler{
		ingestion: ingestion,
		logger:    middleware.GetLogger(),
	}
}

// UploadDocument 上传文档并入库
// POST /api/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	var req model.DocumentUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid upload request", err.Error()))
		return
	}

	doc, err := req.File.Open()
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("failed to open uploaded file", err.Error()))
		return
	}
	defer doc.Close()

	images, closeAll, err := openImages(req.Images)
	defer closeAll()
	if err != nil {
		middleware.HandleError(c, middleware.NewInternalError("failed to open uploaded image", err.Error()))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"filename": req.File.Filename,
		"size":     req.File.Size,
		"images":   len(images),
		"async":    req.Async,
	}).Info("Document uploaded")

	run, err := h.ingestion.Submit(c.Request.Context(),
		services.Upload{Name: req.File.Filename, Reader: doc}, images, req.Async)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	status := http.StatusOK
	if run.Status == models.RunStatusQueued {
		status = http.StatusAccepted
	}
	c.JSON(status, model.NewSuccessResponse(model.NewRunResponse(run, true)))
}

// GetRun 查询入库记录和报告
// GET /api/runs/:id
func (h *DocumentHandler) GetRun(c *gin.Context) {
	var req model.RunRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid run id"))
		return
	}

	run, err := h.ingestion.GetRun(c.Request.Context(), req.ID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewRunResponse(run, true)))
}

// ListRuns 分页列出入库记录
// GET /api/runs
func (h *DocumentHandler) ListRuns(c *gin.Context) {
	var req model.RunListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid query parameters", err.Error()))
		return
	}

	runs, total, err := h.ingestion.ListRuns(c.Request.Context(),
		req.Offset(), req.GetPageSize(), models.RunStatus(req.Status))
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	resp := model.RunListResponse{
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
		Runs:     make([]model.RunResponse, len(runs)),
	}
	for i, run := range runs {
		resp.Runs[i] = model.NewRunResponse(run, false)
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// openImages 打开上传的图片，返回的关闭函数总是可以调用
func openImages(headers []*multipart.FileHeader) ([]services.Upload, func(), error) {
	var files []io.Closer
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}

	uploads := make([]services.Upload, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return nil, closeAll, err
		}
		files = append(files, f)
		uploads = append(uploads, services.Upload{Name: header.Filename, Reader: f})
	}
	return uploads, closeAll, nil
}
