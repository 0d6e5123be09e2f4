package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/multirep-qa/api/middleware"
	"github.com/fyerfyer/multirep-qa/api/model"
	"github.com/fyerfyer/multirep-qa/internal/multirep"
)

// StoreHandler 多表示存储的状态查询
type StoreHandler struct {
	store *multirep.Store
	async bool
}

// NewStoreHandler 创建存储处理器
func NewStoreHandler(store *multirep.Store, async bool) *StoreHandler {
	return &StoreHandler{store: store, async: async}
}

// Health 健康检查
// GET /api/health
func (h *StoreHandler) Health(c *gin.Context) {
	ctx := c.Request.Context()
	size, err := h.store.Size(ctx)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.HealthResponse{
		Status:    "ok",
		Ready:     size > 0,
		Size:      size,
		AsyncMode: h.async,
		Version:   h.store.Generation(),
	}))
}

// Verify 检查索引与内容存储的ID一一对应
// GET /api/store/verify
func (h *StoreHandler) Verify(c *gin.Context) {
	report, err := h.store.Verify(c.Request.Context())
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{
		"consistent": report.Consistent(),
		"report":     report,
	}))
}
