package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/multirep-qa/api/middleware"
	"github.com/fyerfyer/multirep-qa/api/model"
	"github.com/fyerfyer/multirep-qa/internal/services"
)

// QAHandler 处理问答相关的API请求
type QAHandler struct {
	qaService *services.QAService
	logger    *logrus.Logger
}

// NewQAHandler 创建新的问答处理器
func NewQAHandler(qaService *services.QAService) *QAHandler {
	return &QAHandler{
		qaService: qaService,
		logger:    middleware.GetLogger(),
	}
}

// AnswerQuestion 处理问答请求
// POST /api/qa
func (h *QAHandler) AnswerQuestion(c *gin.Context) {
	var req model.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid question request", err.Error()))
		return
	}

	h.logger.WithFields(logrus.Fields{
		"question": req.Question,
		"k":        req.K,
	}).Info("Question received")

	result, err := h.qaService.Ask(c.Request.Context(), req.Question, req.K)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.QAResponse{
		Question:        req.Question,
		Answer:          result.Answer,
		Sources:         result.Sources,
		Inconsistencies: result.Inconsistencies,
		Cached:          result.Cached,
	}))
}

// RetrieveSources 只检索原始内容，不生成答案
// POST /api/retrieve
func (h *QAHandler) RetrieveSources(c *gin.Context) {
	var req model.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleError(c, middleware.NewValidationError("invalid retrieve request", err.Error()))
		return
	}

	result, err := h.qaService.Retrieve(c.Request.Context(), req.Question, req.K)
	if err != nil {
		middleware.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.RetrieveResponse{
		Question:        req.Question,
		Sources:         result.Sources,
		Inconsistencies: result.Inconsistencies,
	}))
}
