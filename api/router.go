package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/multirep-qa/api/handler"
	"github.com/fyerfyer/multirep-qa/api/middleware"
)

// Handlers 路由使用的处理器，TaskHandler 为空时不注册任务查询接口
type Handlers struct {
	Document *handler.DocumentHandler
	QA       *handler.QAHandler
	Store    *handler.StoreHandler
	Task     *handler.TaskHandler
}

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(h Handlers, allowOrigins []string) *gin.Engine {
	router := gin.New()

	router.Use(middleware.SetTraceID())
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorHandler())
	router.Use(Cors(allowOrigins))
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
	}

	api := router.Group("/api")
	{
		// 上传并入库 - POST /api/documents
		api.POST("/documents", h.Document.UploadDocument)

		runs := api.Group("/runs")
		{
			runs.GET("", h.Document.ListRuns)
			runs.GET("/:id", h.Document.GetRun)
			if h.Task != nil {
				runs.GET("/:id/tasks", h.Task.GetRunTasks)
			}
		}

		if h.Task != nil {
			api.GET("/tasks/:id", h.Task.GetTask)
		}

		// 问答 - POST /api/qa
		api.POST("/qa", h.QA.AnswerQuestion)
		// 仅检索 - POST /api/retrieve
		api.POST("/retrieve", h.QA.RetrieveSources)

		api.GET("/health", h.Store.Health)
		api.GET("/store/verify", h.Store.Verify)
	}

	return router
}

// Cors 跨域资源共享中间件
func Cors(allowOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Trace-ID"},
		ExposeHeaders: []string{"X-Trace-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(allowOrigins) == 0 || (len(allowOrigins) == 1 && allowOrigins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = allowOrigins
	}
	return cors.New(cfg)
}
