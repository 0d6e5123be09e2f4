package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/multirep-qa/api/middleware"
	"github.com/fyerfyer/multirep-qa/api/model"
	"github.com/fyerfyer/multirep-qa/pkg/taskqueue"
)

// TaskHandler 查询异步入库任务
type TaskHandler struct {
	queue  taskqueue.Queue
	logger *logrus.Logger
}

// NewTaskHandler 创建新的任务处理器
func NewTaskHandler(queue taskqueue.Queue) *TaskHandler {
	return &TaskHandler{
		queue:  queue,
		logger: middleware.GetLogger(),
	}
}

// GetTask 查询单个任务
// GET /api/tasks/:id
func (h *TaskHandler) GetTask(c *gin.Context) {
	taskID := c.Param("id")
	task, err := h.queue.GetTask(c.Request.Context(), taskID)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(task))
}

// GetRunTasks 查询一次入库关联的全部任务
// GET /api/runs/:id/tasks
func (h *TaskHandler) GetRunTasks(c *gin.Context) {
	var req model.RunRequest
	if err := c.ShouldBindUri(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid run id"))
		return
	}

	tasks, err := h.queue.GetTasksByRun(c.Request.Context(), req.ID)
	if err != nil {
		h.logger.WithError(err).WithField("run_id", req.ID).Error("Failed to list run tasks")
		middleware.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(tasks))
}
